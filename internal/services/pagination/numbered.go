package pagination

import (
	"context"
	"fmt"

	"github.com/hoistscout/hoistscout/internal/interfaces"
)

var numberedDetectSelectors = []string{
	`.pagination a`,
	`nav[aria-label*="pagination"] a`,
	`a[href*="page="]`,
}

var numberedNextSelectors = []string{
	`.pagination a[rel="next"]`,
	`.pagination .next a`,
	`a[rel="next"]`,
	`a.next`,
}

// numberedStrategy follows classic numbered page links
type numberedStrategy struct{}

func (n *numberedStrategy) name() string      { return "numbered" }
func (n *numberedStrategy) accumulates() bool { return false }

func (n *numberedStrategy) detect(ctx context.Context, page interfaces.BrowserPage) (bool, error) {
	sel, err := firstExisting(ctx, page, numberedDetectSelectors)
	return sel != "", err
}

func (n *numberedStrategy) advance(ctx context.Context, page interfaces.BrowserPage, pageNum int) (bool, error) {
	next, err := firstExisting(ctx, page, numberedNextSelectors)
	if err != nil {
		return false, err
	}
	if next != "" {
		if err := page.Click(ctx, next); err == nil {
			return true, nil
		}
	}

	// No next link, look for the anchor whose text is the next page number
	js := fmt.Sprintf(`(() => {
		const target = "%d";
		const links = document.querySelectorAll('.pagination a, nav[aria-label*="pagination"] a, a[href*="page="]');
		for (const a of links) {
			if (a.textContent.trim() === target) { a.click(); return true; }
		}
		return false;
	})()`, pageNum+1)

	var clicked bool
	if err := page.Evaluate(ctx, js, &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}

func (n *numberedStrategy) totalPages(ctx context.Context, page interfaces.BrowserPage) (int, error) {
	js := `(() => {
		let max = 0;
		const links = document.querySelectorAll('.pagination a, nav[aria-label*="pagination"] a');
		for (const a of links) {
			const num = parseInt(a.textContent.trim(), 10);
			if (!isNaN(num) && num > max) { max = num; }
		}
		return max;
	})()`

	var total int
	if err := page.Evaluate(ctx, js, &total); err != nil {
		return 0, err
	}
	return total, nil
}

var _ strategy = (*numberedStrategy)(nil)
