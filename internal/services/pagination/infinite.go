package pagination

import (
	"context"
	"time"

	"github.com/hoistscout/hoistscout/internal/interfaces"
)

const infiniteDetectJS = `(() => {
	if (document.querySelector('[data-infinite-scroll]')) { return true; }
	return typeof window.onscroll === 'function' || typeof document.onscroll === 'function';
})()`

const scrollHeightJS = `document.body.scrollHeight`

const loadingIndicatorJS = `(() => {
	const el = document.querySelector('.loading, .spinner, [data-loading]');
	if (!el) { return false; }
	const style = window.getComputedStyle(el);
	return style.display !== 'none' && style.visibility !== 'hidden';
})()`

// scrollSettleTimeout caps how long one scroll waits for new content
const scrollSettleTimeout = 10 * time.Second

// infiniteStrategy scrolls to the bottom and waits for the document to
// grow or the loading indicator to clear.
type infiniteStrategy struct{}

func (i *infiniteStrategy) name() string      { return "infinite" }
func (i *infiniteStrategy) accumulates() bool { return true }

func (i *infiniteStrategy) detect(ctx context.Context, page interfaces.BrowserPage) (bool, error) {
	var found bool
	if err := page.Evaluate(ctx, infiniteDetectJS, &found); err != nil {
		return false, err
	}
	return found, nil
}

func (i *infiniteStrategy) advance(ctx context.Context, page interfaces.BrowserPage, pageNum int) (bool, error) {
	var before int
	if err := page.Evaluate(ctx, scrollHeightJS, &before); err != nil {
		return false, err
	}
	if err := page.ScrollToBottom(ctx); err != nil {
		return false, err
	}

	deadline := time.Now().Add(scrollSettleTimeout)
	for time.Now().Before(deadline) {
		var after int
		if err := page.Evaluate(ctx, scrollHeightJS, &after); err != nil {
			return false, err
		}
		if after > before {
			return true, nil
		}
		var loading bool
		if err := page.Evaluate(ctx, loadingIndicatorJS, &loading); err != nil {
			return false, err
		}
		if !loading && after <= before {
			// Give slow responses one more poll before concluding
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			if err := page.Evaluate(ctx, scrollHeightJS, &after); err != nil {
				return false, err
			}
			return after > before, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
	return false, nil
}

func (i *infiniteStrategy) totalPages(ctx context.Context, page interfaces.BrowserPage) (int, error) {
	return 0, nil
}

var _ strategy = (*infiniteStrategy)(nil)
