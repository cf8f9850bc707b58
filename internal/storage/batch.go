package storage

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BatchResult contains the outcome of a batch stat.
type BatchResult struct {
	Objects map[string]ObjectInfo
	Errors  map[string]error
}

// StatAll stats many objects with at most concurrency requests in flight.
// Failures are reported per object; the returned error is only set when the
// context ends before every object was attempted.
func StatAll(ctx context.Context, store ObjectStorage, paths []string, concurrency int) (*BatchResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	result := &BatchResult{
		Objects: make(map[string]ObjectInfo, len(paths)),
		Errors:  make(map[string]error),
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range paths {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return result, fmt.Errorf("stat %s: %w", p, err)
		}

		wg.Add(1)
		go func(path string) {
			defer sem.Release(1)
			defer wg.Done()

			info, err := store.Stat(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[path] = err
				return
			}
			result.Objects[path] = info
		}(p)
	}

	wg.Wait()
	return result, nil
}
