// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Direction is the copy direction of a transfer relative to the local side.
type Direction int

const (
	// Pull copies from the remote side to the local side.
	Pull Direction = iota
	// Push copies from the local side to the remote side.
	Push
)

// Run drives one end-to-end transfer (the client-side state machine of
// §4.7): DESCRIBE, HASHING, DELTA, TRANSFER (or REPORT for a dry run).
//
// localPath is always a local path; remote identifies the other endpoint.
// dir selects whether localPath is the source (Push) or the destination
// (Pull) of the copy.
func Run(ctx context.Context, localPath string, remote Location, dir Direction, params Params, log Logger) (Stats, error) {
	if remote.Local {
		return Stats{}, newErr(ErrProtocol, "Run", errors.New("remote location must not be local"))
	}

	writable := dir == Pull
	lf, err := OpenLocalFile(localPath, writable)
	if err != nil {
		return Stats{}, err
	}
	defer lf.Close()

	client := dialRemote(remote.Host, remote.Port, params.effectiveConcurrency())

	log.WithField("path", remote.Path).Debug("describing remote file")
	remoteSize, err := client.Describe(ctx, remote.Path)
	if err != nil {
		return Stats{}, err
	}

	if remoteSize != lf.Size {
		return Stats{}, newErr(ErrSizeMismatch, "Run", errors.Errorf("local size %d != remote size %d", lf.Size, remoteSize))
	}
	size := lf.Size
	blockSize := params.effectiveBlockSize()
	totalBlocks := len(blocksFor(size, blockSize))

	var diffBlocks []Block
	if params.WholeFile {
		log.Debug("whole-file mode: skipping hash phase")
		diffBlocks = WholeFileDiff(size, blockSize)
	} else {
		log.WithFields(map[string]interface{}{
			"size":       size,
			"block_size": blockSize,
			"method":     params.hashMethodName(),
		}).Debug("hashing both endpoints")

		hashCtx, cancelHash := context.WithCancel(ctx)
		localStream, localErrc := LocalHashStream(hashCtx, localPath, size, params)
		remoteStream, remoteErrc := client.HashStream(hashCtx, remote.Path, params)

		diffBlocks, err = Diff(hashCtx, localStream, remoteStream, size, blockSize)
		cancelHash()
		if err != nil {
			return Stats{}, err
		}
		if err := firstErr(localErrc, remoteErrc); err != nil {
			return Stats{}, err
		}
	}

	bytesTotal := int64(0)
	for _, b := range diffBlocks {
		bytesTotal += b.Length
	}

	stats := Stats{
		TotalBlocks:     totalBlocks,
		DiffBlocks:      len(diffBlocks),
		BytesTotal:      bytesTotal,
		SimilarityIndex: computeSimilarity(totalBlocks, len(diffBlocks)),
		WholeFile:       params.WholeFile,
		DryRun:          params.DryRun,
	}

	if params.DryRun {
		log.WithField("diff_blocks", len(diffBlocks)).Info("dry run: not transferring")
		return stats, nil
	}

	transferred, err := transferBlocks(ctx, client, lf, remote.Path, diffBlocks, dir, params)
	stats.BytesTransferred = transferred
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// firstErr drains zero or more error channels (each producing at most one
// value) and returns the first non-nil error seen, or nil if all are empty.
func firstErr(chans ...<-chan error) error {
	for _, c := range chans {
		if err, ok := <-c; ok && err != nil {
			return err
		}
	}
	return nil
}

// transferBlocks is C6: it drives the work pool with up to
// params.Concurrency in-flight block copies, each doing a remote GET +
// local write (Pull) or a local read + remote PUT (Push).
func transferBlocks(ctx context.Context, client *RemoteClient, lf *LocalFile, remotePath string, blocks []Block, dir Direction, params Params) (int64, error) {
	var transferred int64
	var bytesTotal int64
	for _, b := range blocks {
		bytesTotal += b.Length
	}

	tasks := make(chan Block)
	go func() {
		defer close(tasks)
		for _, b := range blocks {
			select {
			case tasks <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	results, g := runPool(ctx, params.effectiveConcurrency(), tasks, func(ctx context.Context, b Block) (struct{}, error) {
		switch dir {
		case Pull:
			data, err := client.GetBlock(ctx, remotePath, b.Offset, b.Length)
			if err != nil {
				return struct{}{}, err
			}
			if err := lf.WriteBlock(b.Offset, data); err != nil {
				return struct{}{}, err
			}
		case Push:
			data, err := lf.ReadBlock(b.Offset, b.Length)
			if err != nil {
				return struct{}{}, err
			}
			if err := client.PutBlock(ctx, remotePath, b.Offset, data); err != nil {
				return struct{}{}, err
			}
		}

		done := atomic.AddInt64(&transferred, b.Length)
		if params.OnProgress != nil {
			params.OnProgress(done, bytesTotal)
		}
		return struct{}{}, nil
	})

	for range results {
	}

	if err := g.Wait(); err != nil {
		return atomic.LoadInt64(&transferred), err
	}
	return atomic.LoadInt64(&transferred), nil
}
