package interfaces

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/models"
)

// ExtractorService turns rendered HTML into opportunity records. It tries
// the LLM path first and falls back to configured CSS selectors when the
// LLM is unavailable or returns unparseable output.
type ExtractorService interface {
	Extract(ctx context.Context, html string, pageURL string, site *models.Site) (*models.ExtractedPage, error)
}

// LLMProvider is the injectable extraction backend
type LLMProvider interface {
	// Complete sends a prompt and returns the raw completion text
	Complete(ctx context.Context, prompt string) (string, error)

	// Name identifies the provider for logging
	Name() string
}
