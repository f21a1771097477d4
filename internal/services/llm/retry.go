package llm

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

const defaultRetries = 2

// retryProvider wraps a provider with retries for transient failures.
// Structural failures (ErrExtractionFailed) are not retried; a bad model
// answer stays bad.
type retryProvider struct {
	inner   interfaces.LLMProvider
	retries int
	backoff time.Duration
	logger  arbor.ILogger
}

// WithRetry wraps provider with up to retries additional attempts
func WithRetry(provider interfaces.LLMProvider, retries int, logger arbor.ILogger) interfaces.LLMProvider {
	return &retryProvider{
		inner:   provider,
		retries: retries,
		backoff: time.Second,
		logger:  logger,
	}
}

func (p *retryProvider) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(p.backoff << (attempt - 1)):
			}
			p.logger.Debug().
				Str("provider", p.inner.Name()).
				Int("attempt", attempt+1).
				Msg("Retrying LLM completion")
		}

		response, err := p.inner.Complete(ctx, prompt)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if errors.Is(err, models.ErrExtractionFailed) || errors.Is(err, context.Canceled) {
			return "", err
		}
	}
	return "", lastErr
}

func (p *retryProvider) Name() string {
	return p.inner.Name()
}

var _ interfaces.LLMProvider = (*retryProvider)(nil)
