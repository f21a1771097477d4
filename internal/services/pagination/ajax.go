package pagination

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/interfaces"
)

var ajaxDetectSelectors = []string{
	`[data-ajax-pagination]`,
	`[data-page-url]`,
}

var ajaxNextSelectors = []string{
	`[data-ajax-pagination] a.next`,
	`[data-ajax-pagination] .next`,
	`a[data-page-url]`,
	`[data-page-url]`,
}

// ajaxStrategy drives pagination controls that swap content in place
// without a navigation.
type ajaxStrategy struct{}

func (a *ajaxStrategy) name() string      { return "ajax" }
func (a *ajaxStrategy) accumulates() bool { return false }

func (a *ajaxStrategy) detect(ctx context.Context, page interfaces.BrowserPage) (bool, error) {
	sel, err := firstExisting(ctx, page, ajaxDetectSelectors)
	return sel != "", err
}

func (a *ajaxStrategy) advance(ctx context.Context, page interfaces.BrowserPage, pageNum int) (bool, error) {
	next, err := firstExisting(ctx, page, ajaxNextSelectors)
	if err != nil {
		return false, err
	}
	if next == "" {
		return false, nil
	}
	if err := page.Click(ctx, next); err != nil {
		return false, nil
	}
	return true, nil
}

func (a *ajaxStrategy) totalPages(ctx context.Context, page interfaces.BrowserPage) (int, error) {
	var total int
	js := `(() => {
		const el = document.querySelector('[data-total-pages]');
		return el ? parseInt(el.getAttribute('data-total-pages'), 10) || 0 : 0;
	})()`
	if err := page.Evaluate(ctx, js, &total); err != nil {
		return 0, err
	}
	return total, nil
}

var _ strategy = (*ajaxStrategy)(nil)
