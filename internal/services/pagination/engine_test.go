package pagination

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

func newTestEngine() *Engine {
	config := common.NewDefaultConfig()
	config.Scraper.DefaultMaxPages = 100
	engine := NewEngine(&config.Scraper, common.GetLogger())
	engine.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return engine
}

// fakeNumbered simulates a numbered listing with a rel=next link
type fakeNumbered struct {
	total       int
	reportTotal int
	loop        bool
	index       int
}

func (f *fakeNumbered) hasNext() bool {
	return f.index+1 < f.total || f.loop
}

func (f *fakeNumbered) Navigate(ctx context.Context, url string) error { return nil }

func (f *fakeNumbered) URL(ctx context.Context) (string, error) {
	return fmt.Sprintf("https://example.com/list?page=%d", f.index+1), nil
}

func (f *fakeNumbered) Content(ctx context.Context) (string, error) {
	return fmt.Sprintf("<html><body>page %d</body></html>", f.index+1), nil
}

func (f *fakeNumbered) Click(ctx context.Context, selector string) error {
	if selector == `.pagination a[rel="next"]` && f.hasNext() {
		f.index++
		if f.loop && f.index >= f.total {
			f.index = 0
		}
		return nil
	}
	return errors.New("nothing to click")
}

func (f *fakeNumbered) Fill(ctx context.Context, selector, value string) error { return nil }
func (f *fakeNumbered) PressEnter(ctx context.Context, selector string) error  { return nil }

func (f *fakeNumbered) Evaluate(ctx context.Context, js string, out interface{}) error {
	switch v := out.(type) {
	case *int:
		*v = f.reportTotal
	case *bool:
		*v = false
	}
	return nil
}

func (f *fakeNumbered) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (f *fakeNumbered) ElementExists(ctx context.Context, selector string) (bool, error) {
	switch selector {
	case `.pagination a`:
		return true, nil
	case `.pagination a[rel="next"]`:
		return f.hasNext(), nil
	}
	return false, nil
}

func (f *fakeNumbered) ScrollToBottom(ctx context.Context) error { return nil }
func (f *fakeNumbered) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	return nil
}
func (f *fakeNumbered) CaptureState(ctx context.Context, siteID string) (*models.BrowserState, error) {
	return nil, nil
}
func (f *fakeNumbered) Close() error { return nil }

func countingHandler(perPage int) (interfaces.PageHandler, *int) {
	calls := new(int)
	return func(ctx context.Context, pageNum int, html, pageURL string) (int, error) {
		*calls++
		return perPage, nil
	}, calls
}

func TestRun_NumberedStopsAtTotalPages(t *testing.T) {
	page := &fakeNumbered{total: 3, reportTotal: 3}
	handler, calls := countingHandler(10)

	result, err := newTestEngine().Run(context.Background(), page, models.ScrapingConfig{}, handler)
	require.NoError(t, err)

	assert.Equal(t, "numbered", result.Strategy)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 30, result.Items)
	assert.Equal(t, "total_pages", result.StopReason)
	assert.Equal(t, 3, *calls)
}

func TestRun_MaxPagesCapsEndlessListing(t *testing.T) {
	page := &fakeNumbered{total: 1000}
	handler, _ := countingHandler(5)
	config := models.ScrapingConfig{Pagination: models.PaginationConfig{MaxPages: 5}}

	result, err := newTestEngine().Run(context.Background(), page, config, handler)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Pages)
	assert.Equal(t, "max_pages", result.StopReason)
}

func TestRun_ThreeEmptyPagesStop(t *testing.T) {
	page := &fakeNumbered{total: 1000}
	handler, _ := countingHandler(0)

	result, err := newTestEngine().Run(context.Background(), page, models.ScrapingConfig{}, handler)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 0, result.Items)
	assert.Equal(t, "empty_pages", result.StopReason)
}

func TestRun_URLRevisitStops(t *testing.T) {
	page := &fakeNumbered{total: 4, loop: true}
	handler, _ := countingHandler(10)

	result, err := newTestEngine().Run(context.Background(), page, models.ScrapingConfig{}, handler)
	require.NoError(t, err)

	assert.Equal(t, "url_revisit", result.StopReason)
	assert.Equal(t, 4, result.Pages)
}

func TestRun_NoNextLinkStops(t *testing.T) {
	page := &fakeNumbered{total: 2}
	handler, _ := countingHandler(10)

	result, err := newTestEngine().Run(context.Background(), page, models.ScrapingConfig{}, handler)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, 20, result.Items)
	assert.Equal(t, "no_next_page", result.StopReason)
}

func TestRun_HandlerErrorAborts(t *testing.T) {
	page := &fakeNumbered{total: 10}
	boom := errors.New("extraction exploded")
	handler := func(ctx context.Context, pageNum int, html, pageURL string) (int, error) {
		if pageNum == 2 {
			return 0, boom
		}
		return 10, nil
	}

	result, err := newTestEngine().Run(context.Background(), page, models.ScrapingConfig{}, handler)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, result.Pages, "the failed page does not count as processed")
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := &fakeNumbered{total: 10}
	handler, _ := countingHandler(10)

	_, err := newTestEngine().Run(ctx, page, models.ScrapingConfig{}, handler)
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeAccumulating simulates a load-more list growing in place
type fakeAccumulating struct {
	fakeNumbered
	clicksLeft int
	items      int
	perClick   int
}

func (f *fakeAccumulating) ElementExists(ctx context.Context, selector string) (bool, error) {
	return false, nil
}

func (f *fakeAccumulating) URL(ctx context.Context) (string, error) {
	return "https://example.com/list", nil
}

func (f *fakeAccumulating) Evaluate(ctx context.Context, js string, out interface{}) error {
	if clicked, ok := out.(*bool); ok && strings.Contains(js, "el.click()") {
		if f.clicksLeft > 0 {
			f.clicksLeft--
			f.items += f.perClick
			*clicked = true
		} else {
			*clicked = false
		}
		return nil
	}
	switch v := out.(type) {
	case *bool:
		*v = true
	case *int:
		*v = 0
	}
	return nil
}

func TestRun_LoadMoreCountsNewItemsOnly(t *testing.T) {
	page := &fakeAccumulating{clicksLeft: 2, items: 10, perClick: 10}
	handler := func(ctx context.Context, pageNum int, html, pageURL string) (int, error) {
		return page.items, nil
	}
	config := models.ScrapingConfig{Pagination: models.PaginationConfig{Hint: models.PaginationHintLoadMore}}

	result, err := newTestEngine().Run(context.Background(), page, config, handler)
	require.NoError(t, err)

	assert.Equal(t, "load_more", result.Strategy)
	assert.Equal(t, 3, result.Pages)
	assert.Equal(t, 30, result.Items, "accumulated list counted once")
	assert.Equal(t, "no_next_page", result.StopReason)
}

// fakeInert answers no to every pagination probe
type fakeInert struct {
	fakeNumbered
}

func (f *fakeInert) ElementExists(ctx context.Context, selector string) (bool, error) {
	return false, nil
}

func (f *fakeInert) Evaluate(ctx context.Context, js string, out interface{}) error {
	switch v := out.(type) {
	case *bool:
		*v = false
	case *int:
		*v = 0
	}
	return nil
}

func TestRun_SinglePageWhenNothingDetected(t *testing.T) {
	page := &fakeInert{}
	handler := func(ctx context.Context, pageNum int, html, pageURL string) (int, error) {
		return 7, nil
	}

	result, err := newTestEngine().Run(context.Background(), page, models.ScrapingConfig{}, handler)
	require.NoError(t, err)

	assert.Equal(t, "single", result.Strategy)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 7, result.Items)
	assert.Equal(t, "single_page", result.StopReason)
}
