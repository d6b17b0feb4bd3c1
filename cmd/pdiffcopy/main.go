// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command pdiffcopy synchronizes a single large file between two hosts,
// transferring only the blocks that differ.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xolox/pdiffcopy"
)

var (
	flagBlockSize   int64
	flagHashMethod  string
	flagWholeFile   bool
	flagConcurrency int
	flagDryRun      bool
	flagListen      string
	flagVerbose     bool
	flagQuiet       bool
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdiffcopy [SOURCE] [TARGET]",
		Short: "Parallel block-delta file synchronization",
		Long: "pdiffcopy synchronizes a single large binary file between two hosts,\n" +
			"transferring only the blocks that differ. Exactly one of SOURCE or\n" +
			"TARGET must be a HOST:PORT/PATH location; the other is a local path.\n" +
			"With no arguments, pdiffcopy starts in server mode on --listen.",
		Args: cobra.MaximumNArgs(2),
		RunE: runMain,
	}

	flags := cmd.Flags()
	flags.Int64Var(&flagBlockSize, "block-size", pdiffcopy.DefaultBlockSize, "block size in bytes")
	flags.StringVar(&flagHashMethod, "hash-method", "sha256", "content digest algorithm (sha1, md5, sha256, xxhash, blake2b)")
	flags.BoolVar(&flagWholeFile, "whole-file", false, "skip hashing, transfer every block unconditionally")
	flags.IntVar(&flagConcurrency, "concurrency", pdiffcopy.DefaultConcurrency, "max in-flight hash/block operations per side")
	flags.BoolVar(&flagDryRun, "dry-run", false, "compute the diff and report it, but never write")
	flags.StringVar(&flagListen, "listen", ":8790", "address to listen on in server mode")
	flags.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVarP(&flagQuiet, "quiet", "q", false, "only log warnings and errors")

	return cmd
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	switch {
	case flagVerbose:
		log.SetLevel(logrus.DebugLevel)
	case flagQuiet:
		log.SetLevel(logrus.WarnLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}
	return log
}

func runMain(cmd *cobra.Command, args []string) error {
	log := newLogger()

	if len(args) == 0 {
		return runServer(cmd.Context(), log)
	}
	if len(args) != 2 {
		return fmt.Errorf("expected exactly two positional arguments, SOURCE and TARGET, got %d", len(args))
	}

	return runClient(cmd.Context(), args[0], args[1], log)
}

func runServer(ctx context.Context, log *logrus.Logger) error {
	srv := pdiffcopy.NewServer(flagConcurrency, log)

	httpServer := &http.Server{
		Addr:    flagListen,
		Handler: srv,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.WithField("listen", flagListen).Info("pdiffcopy server starting")
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func runClient(ctx context.Context, source, target string, log *logrus.Logger) error {
	src, err := pdiffcopy.ParseLocation(source)
	if err != nil {
		return err
	}
	dst, err := pdiffcopy.ParseLocation(target)
	if err != nil {
		return err
	}

	if src.Local == dst.Local {
		return fmt.Errorf("exactly one of SOURCE and TARGET must be a HOST:PORT/PATH location")
	}

	var localPath string
	var remote pdiffcopy.Location
	var dir pdiffcopy.Direction
	if src.Local {
		localPath, remote, dir = src.Path, dst, pdiffcopy.Push
	} else {
		localPath, remote, dir = dst.Path, src, pdiffcopy.Pull
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	params := pdiffcopy.Params{
		BlockSize:   flagBlockSize,
		HashMethod:  flagHashMethod,
		Concurrency: flagConcurrency,
		WholeFile:   flagWholeFile,
		DryRun:      flagDryRun,
		OnProgress:  newProgressPrinter(log),
	}

	stats, err := pdiffcopy.Run(ctx, localPath, remote, dir, params, log.WithField("component", "client"))
	if err != nil {
		return err
	}

	fmt.Printf(
		"similarity %.2f%%  diff %d/%d blocks  transferred %d bytes  in %s\n",
		stats.SimilarityIndex*100, stats.DiffBlocks, stats.TotalBlocks, stats.BytesTransferred, time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// newProgressPrinter throttles progress output to roughly once per 100ms,
// the way the client's OnProgress hook (§4.10) is meant to be consumed.
func newProgressPrinter(log *logrus.Logger) func(transferred, total int64) {
	var last time.Time
	return func(transferred, total int64) {
		now := time.Now()
		if total > 0 && transferred < total && now.Sub(last) < 100*time.Millisecond {
			return
		}
		last = now
		log.Debugf("progress: %d/%d bytes", transferred, total)
	}
}
