package pagination

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/interfaces"
)

// strategy is one pagination style. detect reports whether the current
// page uses it, advance moves to the next page, totalPages returns the
// page count when the markup exposes it (0 = unknown).
type strategy interface {
	name() string
	detect(ctx context.Context, page interfaces.BrowserPage) (bool, error)
	advance(ctx context.Context, page interfaces.BrowserPage, pageNum int) (bool, error)
	totalPages(ctx context.Context, page interfaces.BrowserPage) (int, error)

	// accumulates is true for styles that grow one list in place
	// (load more, infinite scroll) instead of replacing the page.
	accumulates() bool
}

// firstExisting returns the first selector present on the page
func firstExisting(ctx context.Context, page interfaces.BrowserPage, selectors []string) (string, error) {
	for _, sel := range selectors {
		exists, err := page.ElementExists(ctx, sel)
		if err != nil {
			return "", err
		}
		if exists {
			return sel, nil
		}
	}
	return "", nil
}
