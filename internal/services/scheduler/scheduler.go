// Package scheduler runs independent units of work under a concurrency ceiling.
//
// Go Pattern: A fixed set of worker goroutines claims task indexes from a
// shared atomic counter. Each worker writes its result into a pre-sized slice
// at the claimed index, so the output lines up with the input no matter which
// task finishes first. Nothing is appended, so there is nothing to lock.
package scheduler

import (
	"sync"
	"sync/atomic"
)

// Task is one unit of work. Tasks that need cancellation should close over a
// context and check it themselves; the scheduler never abandons a task.
type Task[T any] func() (T, error)

// Outcome is the result of the task at the same index.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Run executes every task exactly once using min(limit, len(tasks)) workers
// and returns outcomes index-aligned with tasks. A limit below 1 is treated
// as 1. Run does not interpret errors: failure policy belongs to the caller.
func Run[T any](tasks []Task[T], limit int) []Outcome[T] {
	outcomes := make([]Outcome[T], len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	workers := max(1, min(limit, len(tasks)))

	var next atomic.Int64
	var wg sync.WaitGroup
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= len(tasks) {
					return
				}
				v, err := tasks[i]()
				outcomes[i] = Outcome[T]{Value: v, Err: err}
			}
		}()
	}

	wg.Wait()
	return outcomes
}

// FirstError returns the lowest-index error among outcomes, or -1 and nil.
func FirstError[T any](outcomes []Outcome[T]) (int, error) {
	for i, o := range outcomes {
		if o.Err != nil {
			return i, o.Err
		}
	}
	return -1, nil
}
