// Package pool runs an ordered sequence of tasks under a fixed parallelism,
// preserving the index→result mapping. Execution order is nondeterministic;
// result order is not.
package pool

import (
	"context"
	"sync"
)

// Result is the unit-level outcome of one task. A skipped unit carries its
// stage-specific sentinel in Value and the skip cause in Err.
type Result[T any] struct {
	Value   T
	Skipped bool
	Err     error
}

// Map applies fn to every item with at most concurrency tasks in flight and
// returns results aligned by index. Cancellation mid-sequence is not
// supported; a started sequence runs to completion, and per-item failure
// handling is fn's responsibility (return a Result, not a panic).
func Map[In, Out any](ctx context.Context, items []In, concurrency int, fn func(ctx context.Context, index int, item In) Result[Out]) []Result[Out] {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]Result[Out], len(items))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item In) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(ctx, i, item)
		}(i, item)
	}
	wg.Wait()

	return results
}
