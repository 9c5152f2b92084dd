package translate

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// translates one request-sized batch
type batchFunc func(ctx context.Context, items []TranslationItem) ([]TranslationResult, error)

func splitBatches(items []TranslationItem, size int) [][]TranslationItem {
	var batches [][]TranslationItem
	for i := 0; i < len(items); i += size {
		end := min(i+size, len(items))
		batches = append(batches, items[i:end])
	}
	return batches
}

// runBatches splits items into batches of batchSize. Each batch becomes one
// API request; up to concurrency workers pull batches from a shared queue.
// The first failure cancels the remaining batches. Results come back
// sorted by index.
func runBatches(
	ctx context.Context,
	items []TranslationItem,
	batchSize int,
	concurrency int,
	translate batchFunc,
) ([]TranslationResult, error) {
	if len(items) == 0 {
		return []TranslationResult{}, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	batches := splitBatches(items, batchSize)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type batchResult struct {
		Index   int
		Results []TranslationResult
		Error   error
	}

	workChan := make(chan int)
	resultChan := make(chan batchResult, len(batches))

	var wg sync.WaitGroup
	for i := 0; i < concurrency && i < len(batches); i++ {
		wg.Go(func() {
			for batchIdx := range workChan {
				if ctx.Err() != nil {
					return
				}

				results, err := translate(ctx, batches[batchIdx])
				if err == nil {
					err = checkResults(batches[batchIdx], results)
				}
				if err != nil {
					cancel()
				}
				resultChan <- batchResult{
					Index:   batchIdx,
					Results: results,
					Error:   err,
				}
			}
		})
	}

	go func() {
		defer close(workChan)
		for i := range batches {
			select {
			case <-ctx.Done():
				return
			case workChan <- i:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var (
		allResults []TranslationResult
		firstErr   error
	)
	for result := range resultChan {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("batch %d failed: %w", result.Index, result.Error)
			}
			continue
		}
		allResults = append(allResults, result.Results...)
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil && len(allResults) != len(items) {
		return nil, err
	}

	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].Index < allResults[j].Index
	})

	return allResults, nil
}

// checkResults requires exactly one result per requested index.
func checkResults(items []TranslationItem, results []TranslationResult) error {
	if len(results) != len(items) {
		return fmt.Errorf("expected %d results, got %d", len(items), len(results))
	}

	want := make(map[int]bool, len(items))
	for _, it := range items {
		want[it.Index] = true
	}
	for _, r := range results {
		if !want[r.Index] {
			return fmt.Errorf("unexpected or duplicate index %d in response", r.Index)
		}
		delete(want, r.Index)
	}
	return nil
}
