// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"context"

	"github.com/pkg/errors"
)

// Diff computes the set of blocks whose content differs, given two
// ascending hash streams of equal length produced by the same Params. It
// advances both streams in lock-step (C5): a mismatch anywhere in a pair's
// digests puts that offset in the result. If either stream ends before the
// other, or the two entries of a pair carry different offsets, Diff returns
// a PROTOCOL_ERROR: both sides hash the same, equal-size file, so their
// offset sequences must be identical.
func Diff(ctx context.Context, local, remote <-chan HashEntry, size, blockSize int64) ([]Block, error) {
	var diffs []Block

	for {
		select {
		case <-ctx.Done():
			return nil, newErr(ErrCancelled, "Diff", ctx.Err())
		default:
		}

		l, lok := <-local
		r, rok := <-remote

		if !lok && !rok {
			return diffs, nil
		}
		if lok != rok {
			return nil, newErr(ErrProtocol, "Diff", errors.New("hash streams ended at different lengths"))
		}
		if l.Offset != r.Offset {
			return nil, newErr(ErrProtocol, "Diff", errors.Errorf("offset mismatch: local=%d remote=%d", l.Offset, r.Offset))
		}
		if !digestsEqual(l.Digest, r.Digest) {
			diffs = append(diffs, Block{Offset: l.Offset, Length: blockLength(l.Offset, size, blockSize)})
		}
	}
}

func blockLength(offset, size, blockSize int64) int64 {
	remaining := size - offset
	if remaining < blockSize {
		return remaining
	}
	return blockSize
}

// WholeFileDiff synthesizes the diff set for whole_file mode: every block
// offset in [0, size) unconditionally, bypassing C5 entirely.
func WholeFileDiff(size, blockSize int64) []Block {
	return blocksFor(size, blockSize)
}
