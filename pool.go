// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pdiffcopy

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// poolResult pairs a completed task with its result or error.
type poolResult[T, R any] struct {
	Task T
	Res  R
	Err  error
}

// runPool is C2: it fans tasks out to concurrency goroutines, each calling
// f once per task, and streams back (task, result) pairs on the returned
// channel in completion order, not input order.
//
// The task source is itself a channel so producers can be slower than
// consumers without pdiffcopy buffering the whole file in memory; runPool
// only ever holds `concurrency` tasks in flight plus one pending result per
// worker, bounding memory the way a bounded channel should.
//
// On the first worker error, runPool stops dispatching new tasks, lets
// in-flight ones finish, and returns that error from Wait(). Cancelling ctx
// has the same effect: errgroup's derived context is cancelled, which ends
// both the dispatch loop and f's own ctx.Done() checks.
func runPool[T, R any](ctx context.Context, concurrency int, tasks <-chan T, f func(context.Context, T) (R, error)) (<-chan poolResult[T, R], *errgroup.Group) {
	if concurrency < 1 {
		concurrency = 1
	}

	out := make(chan poolResult[T, R], concurrency)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case task, ok := <-tasks:
					if !ok {
						return nil
					}
					res, err := f(gctx, task)
					select {
					case out <- poolResult[T, R]{Task: task, Res: res, Err: err}:
					case <-gctx.Done():
						return gctx.Err()
					}
					if err != nil {
						return err
					}
				}
			}
		})
	}

	go func() {
		g.Wait()
		close(out)
	}()

	return out, g
}
