// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"container/heap"
	"context"

	"github.com/pkg/errors"
)

// offsetHeap is a min-heap of HashEntry ordered by Offset, used to turn C2's
// completion-order stream back into the ascending-offset order the hash
// stream contract requires.
type offsetHeap []HashEntry

func (h offsetHeap) Len() int            { return len(h) }
func (h offsetHeap) Less(i, j int) bool  { return h[i].Offset < h[j].Offset }
func (h offsetHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *offsetHeap) Push(x interface{}) { *h = append(*h, x.(HashEntry)) }
func (h *offsetHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// LocalHashStream is C4's local case: it drives C2 with worker f = C1 over
// every block of path and emits the resulting hash entries in strictly
// ascending offset order on the returned channel. The channel is closed
// when the whole file has been emitted or an error occurs; in the error
// case errc receives exactly one error before being closed.
func LocalHashStream(ctx context.Context, path string, size int64, params Params) (<-chan HashEntry, <-chan error) {
	out := make(chan HashEntry)
	errc := make(chan error, 1)

	method, ok := LookupHash(params.hashMethodName())
	if !ok {
		errc <- newErr(ErrUnknownHash, "LocalHashStream", errors.Errorf("unknown hash method %q", params.hashMethodName()))
		close(out)
		close(errc)
		return out, errc
	}

	blocks := blocksFor(size, params.effectiveBlockSize())
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

	results, g := runPool(ctx, params.effectiveConcurrency(), tasks, func(ctx context.Context, b Block) (HashEntry, error) {
		digest, err := hashBlock(path, b.Offset, b.Length, method)
		if err != nil {
			return HashEntry{}, err
		}
		return HashEntry{Offset: b.Offset, Digest: digest}, nil
	})

	go func() {
		defer close(out)
		defer close(errc)

		h := &offsetHeap{}
		heap.Init(h)
		next := int64(0)

		for r := range results {
			if r.Err != nil {
				errc <- r.Err
				return
			}
			heap.Push(h, r.Res)
			for h.Len() > 0 && (*h)[0].Offset == next {
				entry := heap.Pop(h).(HashEntry)
				select {
				case out <- entry:
				case <-ctx.Done():
					errc <- newErr(ErrCancelled, "LocalHashStream", ctx.Err())
					return
				}
				next += params.effectiveBlockSize()
			}
		}

		if err := g.Wait(); err != nil && ctx.Err() == nil {
			errc <- err
			return
		}
		if h.Len() != 0 {
			errc <- newErr(ErrProtocol, "LocalHashStream", errors.New("hash pipeline left unordered entries after drain"))
		}
	}()

	return out, errc
}
