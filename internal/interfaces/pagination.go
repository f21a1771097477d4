package interfaces

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/models"
)

// PageHandler is invoked once per yielded page. It returns the number of
// items extracted so the engine can detect empty-page streaks.
type PageHandler func(ctx context.Context, pageNum int, html string, pageURL string) (itemCount int, err error)

// PaginationResult summarizes one pagination run
type PaginationResult struct {
	Pages      int    `json:"pages"`
	Items      int    `json:"items"`
	Strategy   string `json:"strategy"`
	StopReason string `json:"stop_reason"`
}

// PaginationEngine detects the pagination style of a page and drives it,
// yielding every page to the handler until a stop condition is met.
type PaginationEngine interface {
	Run(ctx context.Context, page BrowserPage, config models.ScrapingConfig, handler PageHandler) (*PaginationResult, error)
}
