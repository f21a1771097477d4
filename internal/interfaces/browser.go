package interfaces

import (
	"context"
	"time"

	"github.com/hoistscout/hoistscout/internal/models"
)

// BrowserPage is one live page inside a browser context. Implementations
// apply the anti-detection baseline (stealth scripts, rotated user agent
// and viewport) before any navigation.
type BrowserPage interface {
	// Navigate loads url and waits for the page to settle
	Navigate(ctx context.Context, url string) error

	// URL returns the current page location
	URL(ctx context.Context) (string, error)

	// Content returns the rendered HTML of the page
	Content(ctx context.Context) (string, error)

	// Click clicks the first element matching selector
	Click(ctx context.Context, selector string) error

	// Fill types value into the element matching selector with human-like
	// inter-key delays.
	Fill(ctx context.Context, selector string, value string) error

	// PressEnter sends the Enter key to the element matching selector
	PressEnter(ctx context.Context, selector string) error

	// Evaluate runs js in the page and unmarshals the result into out.
	// Pass nil to discard the result.
	Evaluate(ctx context.Context, js string, out interface{}) error

	// WaitVisible waits until selector is visible, up to timeout
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// ElementExists reports whether selector matches anything on the page
	ElementExists(ctx context.Context, selector string) (bool, error)

	// ScrollToBottom scrolls the window to the bottom of the document
	ScrollToBottom(ctx context.Context) error

	// SetCookies injects cookies into the browser context
	SetCookies(ctx context.Context, cookies []models.Cookie) error

	// CaptureState snapshots cookies, localStorage and sessionStorage
	CaptureState(ctx context.Context, siteID string) (*models.BrowserState, error)

	// Close releases the page and its browser context
	Close() error
}

// BrowserService creates browser pages. Each scrape run gets its own page
// in a fresh context; pages are never shared between runs.
type BrowserService interface {
	NewPage(ctx context.Context) (BrowserPage, error)
	Close() error
}
