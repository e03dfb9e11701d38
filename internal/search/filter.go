package search

import (
	"context"
	"strings"

	"golang.org/x/time/rate"
)

// Filtered drops results that point into the deny-list.
type Filtered struct {
	next Provider
	deny DenyList
}

func NewFiltered(next Provider, deny DenyList) *Filtered {
	return &Filtered{next: next, deny: deny}
}

func (f *Filtered) Search(ctx context.Context, query string) ([]Result, error) {
	results, err := f.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return FilterDenied(results, f.deny), nil
}

func FilterDenied(results []Result, deny DenyList) []Result {
	filtered := make([]Result, 0, len(results))
	for _, result := range results {
		if deny.Matches(result.Link) {
			continue
		}
		filtered = append(filtered, result)
	}
	return filtered
}

// ExcludeLinks drops results whose link is in the given set.
func ExcludeLinks(results []Result, links map[string]struct{}) []Result {
	if len(links) == 0 {
		return results
	}
	filtered := make([]Result, 0, len(results))
	for _, result := range results {
		if _, tried := links[strings.TrimSpace(result.Link)]; tried {
			continue
		}
		filtered = append(filtered, result)
	}
	return filtered
}

// Limited throttles calls to the wrapped provider.
type Limited struct {
	next    Provider
	limiter *rate.Limiter
}

func NewLimited(next Provider, perSecond float64, burst int) *Limited {
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limited) Search(ctx context.Context, query string) ([]Result, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.next.Search(ctx, query)
}
