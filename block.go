// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
)

// DefaultBlockSize is used when Params.BlockSize is left at zero.
const DefaultBlockSize = 1 << 20 // 1 MiB

// Block is a fixed-size, offset-aligned slice of a file: the unit of
// hashing and transfer.
type Block struct {
	Offset int64
	Length int64
}

// blocksFor splits a file of the given size into offset-aligned blocks of
// blockSize, with a possibly-short final block. It never returns a block
// for a zero-size file.
func blocksFor(size int64, blockSize int64) []Block {
	if size <= 0 {
		return nil
	}
	n := size / blockSize
	rem := size % blockSize
	blocks := make([]Block, 0, n+1)
	var offset int64
	for i := int64(0); i < n; i++ {
		blocks = append(blocks, Block{Offset: offset, Length: blockSize})
		offset += blockSize
	}
	if rem > 0 {
		blocks = append(blocks, Block{Offset: offset, Length: rem})
	}
	return blocks
}

// HashEntry is one record of a hash stream: the digest of the block at Offset.
type HashEntry struct {
	Offset int64
	Digest []byte
}

// hashBlock is C1: it opens path independently (no shared file descriptor),
// seeks to offset, reads exactly length bytes and returns their digest under
// method. It is safe to call concurrently from many goroutines against the
// same path.
func hashBlock(path string, offset, length int64, method HashMethod) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(ErrIO, "hashBlock: open", err)
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(f, offset, length), buf); err != nil {
		return nil, newErr(ErrIO, "hashBlock: read", errors.Wrapf(err, "offset=%d length=%d", offset, length))
	}

	h := method.NewHash()
	h.Write(buf)
	return h.Sum(nil), nil
}

// digestsEqual compares two digests byte-for-byte.
func digestsEqual(a, b []byte) bool {
	return bytes.Equal(a, b)
}
