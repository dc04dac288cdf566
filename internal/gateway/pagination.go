package gateway

import (
	"context"
	"time"
)

// pageLimits bounds one paginated walk.
type pageLimits struct {
	PageCap int
	ItemCap int
	PerPage int
	Since   time.Time
}

// pageFunc fetches the 1-based page of a listing.
type pageFunc[T any] func(ctx context.Context, page int) ([]T, error)

// paginate requests pages strictly in sequence and stops as soon as one of these holds,
// checked in order after each page:
//  1. the page was empty
//  2. the item cap is reached
//  3. the page cap is reached
//  4. the page was short, so it was the last one
//  5. the last item on the page was created before Since
//
// Condition 5 assumes pages come in descending creation order. If the API ever returns
// items out of order the walk can stop early and under-fetch; this is accepted.
// A nil createdAt disables time filtering and condition 5.
func paginate[T any](ctx context.Context, limits pageLimits, fetch pageFunc[T], createdAt func(T) time.Time) ([]T, int, error) {
	items := make([]T, 0)
	requests := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, requests, err
		}
		batch, err := fetch(ctx, page)
		requests++
		if err != nil {
			return nil, requests, err
		}
		if len(batch) == 0 {
			break
		}
		for _, item := range batch {
			if createdAt != nil && createdAt(item).Before(limits.Since) {
				continue
			}
			items = append(items, item)
		}
		if limits.ItemCap > 0 && len(items) >= limits.ItemCap {
			items = items[:limits.ItemCap]
			break
		}
		if page >= limits.PageCap {
			break
		}
		if len(batch) < limits.PerPage {
			break
		}
		if createdAt != nil && createdAt(batch[len(batch)-1]).Before(limits.Since) {
			break
		}
	}
	return items, requests, nil
}
