package llm

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
)

// NewProvider creates the configured extraction provider, wrapped with
// transient-error retries.
func NewProvider(ctx context.Context, config *common.Config, logger arbor.ILogger) (interfaces.LLMProvider, error) {
	var (
		provider interfaces.LLMProvider
		err      error
	)

	switch config.LLM.Provider {
	case common.LLMProviderClaude:
		provider, err = NewClaudeProvider(&config.Claude, logger)
	case common.LLMProviderGemini:
		provider, err = NewGeminiProvider(ctx, &config.Gemini, logger)
	case common.LLMProviderOffline, "":
		provider = NewOfflineProvider()
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", config.LLM.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info().Str("provider", provider.Name()).Msg("LLM provider configured")
	return WithRetry(provider, defaultRetries, logger), nil
}
