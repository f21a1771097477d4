package pagination

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/interfaces"
)

const loadMoreDetectJS = `(() => {
	const pattern = /(load|show|view)\s+more/i;
	const candidates = document.querySelectorAll('button, a.button, a.btn, [role="button"]');
	for (const el of candidates) {
		if (pattern.test(el.textContent)) { return true; }
	}
	return false;
})()`

const loadMoreClickJS = `(() => {
	const pattern = /(load|show|view)\s+more/i;
	const candidates = document.querySelectorAll('button, a.button, a.btn, [role="button"]');
	for (const el of candidates) {
		if (pattern.test(el.textContent) && !el.disabled) { el.click(); return true; }
	}
	return false;
})()`

// loadMoreStrategy clicks "load more" style buttons. Whether the click
// actually produced new items is judged by the engine from extraction
// counts, not from the button state.
type loadMoreStrategy struct{}

func (l *loadMoreStrategy) name() string      { return "load_more" }
func (l *loadMoreStrategy) accumulates() bool { return true }

func (l *loadMoreStrategy) detect(ctx context.Context, page interfaces.BrowserPage) (bool, error) {
	var found bool
	if err := page.Evaluate(ctx, loadMoreDetectJS, &found); err != nil {
		return false, err
	}
	return found, nil
}

func (l *loadMoreStrategy) advance(ctx context.Context, page interfaces.BrowserPage, pageNum int) (bool, error) {
	var clicked bool
	if err := page.Evaluate(ctx, loadMoreClickJS, &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}

func (l *loadMoreStrategy) totalPages(ctx context.Context, page interfaces.BrowserPage) (int, error) {
	return 0, nil
}

var _ strategy = (*loadMoreStrategy)(nil)
