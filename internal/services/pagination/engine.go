package pagination

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// Consecutive pages with no new items before the run is declared done
const emptyPageLimit = 3

// Engine detects the pagination style of the current page and drives it,
// yielding every page to the handler. Detection order: ajax, numbered,
// load more, infinite scroll. No match means the page stands alone.
type Engine struct {
	config     *common.ScraperConfig
	logger     arbor.ILogger
	strategies []strategy

	// sleep is replaceable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates the pagination engine
func NewEngine(config *common.ScraperConfig, logger arbor.ILogger) *Engine {
	return &Engine{
		config: config,
		logger: logger,
		strategies: []strategy{
			&ajaxStrategy{},
			&numberedStrategy{},
			&loadMoreStrategy{},
			&infiniteStrategy{},
		},
		sleep: sleepCtx,
	}
}

// Run pages through the site until a stop condition is met
func (e *Engine) Run(ctx context.Context, page interfaces.BrowserPage, config models.ScrapingConfig, handler interfaces.PageHandler) (*interfaces.PaginationResult, error) {
	strat, err := e.pick(ctx, page, config.Pagination.Hint)
	if err != nil {
		return nil, err
	}

	maxPages := config.EffectiveMaxPages(e.config.DefaultMaxPages)
	result := &interfaces.PaginationResult{Strategy: "single"}
	if strat != nil {
		result.Strategy = strat.name()
	}

	total := 0
	if strat != nil {
		if total, err = strat.totalPages(ctx, page); err != nil {
			return result, err
		}
	}

	seen := make(map[string]bool)
	lastCount := 0
	emptyStreak := 0

	for pageNum := 1; ; pageNum++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pageURL, err := page.URL(ctx)
		if err != nil {
			return result, err
		}
		html, err := page.Content(ctx)
		if err != nil {
			return result, err
		}

		count, err := handler(ctx, pageNum, html, pageURL)
		if err != nil {
			return result, err
		}
		result.Pages = pageNum
		seen[pageURL] = true

		newItems := count
		if strat != nil && strat.accumulates() {
			newItems = count - lastCount
			if newItems < 0 {
				newItems = 0
			}
		}
		lastCount = count
		result.Items += newItems

		if newItems == 0 {
			emptyStreak++
		} else {
			emptyStreak = 0
		}

		e.logger.Debug().
			Int("page", pageNum).
			Int("new_items", newItems).
			Str("strategy", result.Strategy).
			Msg("Page processed")

		switch {
		case strat == nil:
			result.StopReason = "single_page"
			return result, nil
		case emptyStreak >= emptyPageLimit:
			result.StopReason = "empty_pages"
			return result, nil
		case total > 0 && pageNum >= total:
			result.StopReason = "total_pages"
			return result, nil
		case pageNum >= maxPages:
			result.StopReason = "max_pages"
			return result, nil
		}

		advanced, err := strat.advance(ctx, page, pageNum)
		if err != nil {
			return result, fmt.Errorf("failed to advance past page %d: %w", pageNum, err)
		}
		if !advanced {
			result.StopReason = "no_next_page"
			return result, nil
		}

		// Jittered politeness delay between pages
		if err := e.sleep(ctx, time.Duration(800+rand.Intn(1600))*time.Millisecond); err != nil {
			return result, err
		}

		nextURL, err := page.URL(ctx)
		if err != nil {
			return result, err
		}
		if nextURL != pageURL && seen[nextURL] {
			result.StopReason = "url_revisit"
			return result, nil
		}
	}
}

// pick returns the strategy for the configured hint, or probes in
// detection order when the hint is auto.
func (e *Engine) pick(ctx context.Context, page interfaces.BrowserPage, hint models.PaginationHint) (strategy, error) {
	if hint != "" && hint != models.PaginationHintAuto {
		for _, strat := range e.strategies {
			if strat.name() == string(hint) {
				return strat, nil
			}
		}
		return nil, fmt.Errorf("unknown pagination hint %q", hint)
	}
	for _, strat := range e.strategies {
		detected, err := strat.detect(ctx, page)
		if err != nil {
			return nil, err
		}
		if detected {
			return strat, nil
		}
	}
	return nil, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

var _ interfaces.PaginationEngine = (*Engine)(nil)
