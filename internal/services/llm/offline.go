package llm

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// OfflineProvider is the no-backend provider. Every call fails with
// ErrExtractionFailed so the extractor falls through to selector mode.
type OfflineProvider struct{}

// NewOfflineProvider creates the offline provider
func NewOfflineProvider() *OfflineProvider {
	return &OfflineProvider{}
}

// Complete always fails; offline deployments extract via selectors only
func (p *OfflineProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return "", models.ErrExtractionFailed
}

// Name identifies the provider for logging
func (p *OfflineProvider) Name() string {
	return "offline"
}

var _ interfaces.LLMProvider = (*OfflineProvider)(nil)
