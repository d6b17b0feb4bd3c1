// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// The hash stream wire format is a sequence of fixed-width records, each a
// big-endian uint64 offset followed by a digest whose length is implied by
// the hash_method both endpoints already agree on (never sent on the
// wire). This is self-delimiting, ascending by construction, and streamable
// a record at a time, satisfying the framing freedom spec left open in
// favor of the simplest encoding that meets all three constraints.

func writeHashEntry(w io.Writer, e HashEntry) error {
	var hdr [8]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(e.Offset))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(e.Digest)
	return err
}

func readHashEntry(r io.Reader, digestSize int) (HashEntry, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return HashEntry{}, io.EOF
		}
		return HashEntry{}, errors.Wrap(err, "readHashEntry: offset")
	}
	digest := make([]byte, digestSize)
	if _, err := io.ReadFull(r, digest); err != nil {
		return HashEntry{}, errors.Wrap(err, "readHashEntry: digest")
	}
	return HashEntry{Offset: int64(binary.BigEndian.Uint64(hdr[:])), Digest: digest}, nil
}

// decodeHashStream reads successive records from r until EOF, enforcing the
// ascending-offset contract, and forwards them on the returned channel. It
// is the client half of the remote case of C4 (§4.4).
func decodeHashStream(ctx context.Context, r io.Reader, digestSize int) (<-chan HashEntry, <-chan error) {
	out := make(chan HashEntry)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		last := int64(-1)
		for {
			select {
			case <-ctx.Done():
				errc <- newErr(ErrCancelled, "decodeHashStream", ctx.Err())
				return
			default:
			}

			entry, err := readHashEntry(r, digestSize)
			if err == io.EOF {
				return
			}
			if err != nil {
				errc <- newErr(ErrProtocol, "decodeHashStream", err)
				return
			}
			if entry.Offset <= last {
				errc <- newErr(ErrProtocol, "decodeHashStream", errors.Errorf("out-of-order hash entry: %d after %d", entry.Offset, last))
				return
			}
			last = entry.Offset

			select {
			case out <- entry:
			case <-ctx.Done():
				errc <- newErr(ErrCancelled, "decodeHashStream", ctx.Err())
				return
			}
		}
	}()

	return out, errc
}
