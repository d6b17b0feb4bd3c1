// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"context"
	"math/rand"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/hooklift/assert"
)

var alpha = []byte("abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789")

// srand generates a deterministic pseudo-random byte slice, the same
// fixture style gsync_test.go used for its sync tests.
func srand(seed int64, size int) []byte {
	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = alpha[r.Intn(len(alpha))]
	}
	return buf
}

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	assert.Ok(t, os.WriteFile(path, data, 0640))
	return path
}

func startTestServer(t *testing.T) (host string, port int) {
	t.Helper()
	srv := NewServer(4, DiscardLogger())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	host, portStr, err := net.SplitHostPort(ts.Listener.Addr().String())
	assert.Ok(t, err)
	p, err := strconv.Atoi(portStr)
	assert.Ok(t, err)
	return host, p
}

func TestPullFullMatch(t *testing.T) {
	dir := t.TempDir()
	content := srand(1, 10*1024*1024)
	remotePath := writeTempFile(t, dir, "remote.bin", content)
	localPath := writeTempFile(t, dir, "local.bin", content)

	host, port := startTestServer(t)
	remote := Location{Host: host, Port: port, Path: remotePath}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := Run(ctx, localPath, remote, Pull, Params{BlockSize: 1 << 20, HashMethod: "sha1", Concurrency: 4}, DiscardLogger())
	assert.Ok(t, err)
	assert.Equals(t, 0, stats.DiffBlocks)
	assert.Equals(t, float64(1), stats.SimilarityIndex)
	assert.Equals(t, int64(0), stats.BytesTransferred)

	got, err := os.ReadFile(localPath)
	assert.Ok(t, err)
	assert.Cond(t, bytesEqualSlow(got, content), "target bytes should be unchanged")
}

func TestPullSingleBlockChange(t *testing.T) {
	dir := t.TempDir()
	size := 4 * 1024 * 1024
	source := srand(2, size)
	local := append([]byte(nil), source...)
	copy(local[2*1024*1024:2*1024*1024+16], srand(99, 16))

	remotePath := writeTempFile(t, dir, "remote.bin", source)
	localPath := writeTempFile(t, dir, "local.bin", local)

	host, port := startTestServer(t)
	remote := Location{Host: host, Port: port, Path: remotePath}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := Run(ctx, localPath, remote, Pull, Params{BlockSize: 1 << 20, HashMethod: "sha256", Concurrency: 4}, DiscardLogger())
	assert.Ok(t, err)
	assert.Equals(t, 1, stats.DiffBlocks)
	assert.Equals(t, int64(1<<20), stats.BytesTransferred)

	got, err := os.ReadFile(localPath)
	assert.Ok(t, err)
	assert.Cond(t, bytesEqualSlow(got, source), "target should equal source after pull")
}

func TestPullShortFinalBlock(t *testing.T) {
	dir := t.TempDir()
	size := 3*1024*1024 + 100
	source := srand(3, size)
	local := append([]byte(nil), source...)
	copy(local[size-50:], srand(7, 50))

	remotePath := writeTempFile(t, dir, "remote.bin", source)
	localPath := writeTempFile(t, dir, "local.bin", local)

	host, port := startTestServer(t)
	remote := Location{Host: host, Port: port, Path: remotePath}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := Run(ctx, localPath, remote, Pull, Params{BlockSize: 1 << 20, HashMethod: "md5", Concurrency: 2}, DiscardLogger())
	assert.Ok(t, err)
	assert.Equals(t, 1, stats.DiffBlocks)
	assert.Equals(t, int64(100), stats.BytesTransferred)

	got, err := os.ReadFile(localPath)
	assert.Ok(t, err)
	assert.Cond(t, bytesEqualSlow(got, source), "target should equal source after pull")
}

func TestPullWholeFile(t *testing.T) {
	dir := t.TempDir()
	size := 5 * 1024 * 1024
	source := srand(4, size)
	local := srand(5, size)

	remotePath := writeTempFile(t, dir, "remote.bin", source)
	localPath := writeTempFile(t, dir, "local.bin", local)

	host, port := startTestServer(t)
	remote := Location{Host: host, Port: port, Path: remotePath}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := Run(ctx, localPath, remote, Pull, Params{BlockSize: 1 << 20, WholeFile: true, Concurrency: 3}, DiscardLogger())
	assert.Ok(t, err)
	assert.Equals(t, 5, stats.DiffBlocks)

	got, err := os.ReadFile(localPath)
	assert.Ok(t, err)
	assert.Cond(t, bytesEqualSlow(got, source), "target should equal source after whole-file pull")
}

func TestSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	remotePath := writeTempFile(t, dir, "remote.bin", srand(8, 10*1024*1024))
	localPath := writeTempFile(t, dir, "local.bin", srand(9, 10*1024*1024+1))

	host, port := startTestServer(t)
	remote := Location{Host: host, Port: port, Path: remotePath}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	before, err := os.ReadFile(localPath)
	assert.Ok(t, err)

	_, err = Run(ctx, localPath, remote, Pull, Params{BlockSize: 1 << 20}, DiscardLogger())
	assert.Cond(t, err != nil, "expected an error")
	kind, ok := KindOf(err)
	assert.Cond(t, ok, "expected a TransferError")
	assert.Equals(t, ErrSizeMismatch, kind)

	after, err := os.ReadFile(localPath)
	assert.Ok(t, err)
	assert.Cond(t, bytesEqualSlow(before, after), "target should be untouched on size mismatch")
}

func TestDryRunPurity(t *testing.T) {
	dir := t.TempDir()
	size := 4 * 1024 * 1024
	source := srand(11, size)
	local := append([]byte(nil), source...)
	copy(local[2*1024*1024:2*1024*1024+16], srand(12, 16))

	remotePath := writeTempFile(t, dir, "remote.bin", source)
	localPath := writeTempFile(t, dir, "local.bin", local)

	host, port := startTestServer(t)
	remote := Location{Host: host, Port: port, Path: remotePath}

	before, err := os.ReadFile(localPath)
	assert.Ok(t, err)
	beforeInfo, err := os.Stat(localPath)
	assert.Ok(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := Run(ctx, localPath, remote, Pull, Params{BlockSize: 1 << 20, HashMethod: "sha256", DryRun: true}, DiscardLogger())
	assert.Ok(t, err)
	assert.Equals(t, 1, stats.DiffBlocks)
	assert.Equals(t, int64(0), stats.BytesTransferred)

	after, err := os.ReadFile(localPath)
	assert.Ok(t, err)
	afterInfo, err := os.Stat(localPath)
	assert.Ok(t, err)

	assert.Cond(t, bytesEqualSlow(before, after), "dry run must not modify target bytes")
	assert.Equals(t, beforeInfo.ModTime(), afterInfo.ModTime())
}

func TestEmptyFile(t *testing.T) {
	dir := t.TempDir()
	remotePath := writeTempFile(t, dir, "remote.bin", nil)
	localPath := writeTempFile(t, dir, "local.bin", nil)

	host, port := startTestServer(t)
	remote := Location{Host: host, Port: port, Path: remotePath}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := Run(ctx, localPath, remote, Pull, Params{BlockSize: 1 << 20}, DiscardLogger())
	assert.Ok(t, err)
	assert.Equals(t, 0, stats.TotalBlocks)
	assert.Equals(t, 0, stats.DiffBlocks)
	assert.Equals(t, float64(1), stats.SimilarityIndex)
}

func TestIdempotentSecondRun(t *testing.T) {
	dir := t.TempDir()
	size := 2 * 1024 * 1024
	source := srand(13, size)
	local := srand(14, size)

	remotePath := writeTempFile(t, dir, "remote.bin", source)
	localPath := writeTempFile(t, dir, "local.bin", local)

	host, port := startTestServer(t)
	remote := Location{Host: host, Port: port, Path: remotePath}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_, err := Run(ctx, localPath, remote, Pull, Params{BlockSize: 1 << 20, HashMethod: "xxhash"}, DiscardLogger())
	assert.Ok(t, err)

	stats, err := Run(ctx, localPath, remote, Pull, Params{BlockSize: 1 << 20, HashMethod: "xxhash"}, DiscardLogger())
	assert.Ok(t, err)
	assert.Equals(t, 0, stats.DiffBlocks)

	got, err := os.ReadFile(localPath)
	assert.Ok(t, err)
	assert.Cond(t, bytesEqualSlow(got, source), "second run should converge to source bytes")
}

func bytesEqualSlow(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
