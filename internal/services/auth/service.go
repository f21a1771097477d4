package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// Auth types that cannot run without stored credentials. Cookie auth
// reads its cookies from the site config instead.
var credentialBearing = map[models.AuthType]bool{
	models.AuthTypeForm:   true,
	models.AuthTypeBasic:  true,
	models.AuthTypeAPIKey: true,
	models.AuthTypeOAuth:  true,
}

// Service dispatches authentication to the strategy matching the site's
// auth type. Credentials pass through in memory only and are never logged.
type Service struct {
	strategies map[models.AuthType]interfaces.AuthStrategy
	config     *common.ScraperConfig
	logger     arbor.ILogger
}

// NewService creates the auth service with every supported strategy registered
func NewService(config *common.Config, logger arbor.ILogger) *Service {
	client := &http.Client{Timeout: config.Scraper.AuthTimeout}
	solver := newCaptchaSolver(config.Browser.SolverURL, config.Browser.CaptchaKey, client)

	s := &Service{
		strategies: make(map[models.AuthType]interfaces.AuthStrategy),
		config:     &config.Scraper,
		logger:     logger,
	}
	for _, strategy := range []interfaces.AuthStrategy{
		&formStrategy{solver: solver, logger: logger},
		&basicStrategy{client: client},
		&apiKeyStrategy{client: client},
		&cookieStrategy{},
		&oauthStrategy{},
	} {
		s.strategies[strategy.Type()] = strategy
	}
	return s
}

// Authenticate runs the strategy for the site's auth type under the
// configured timeout. A deadline overrun surfaces as ErrAuthTimeout.
func (s *Service) Authenticate(ctx context.Context, page interfaces.BrowserPage, site *models.Site, creds *models.Credentials) (*models.AuthOutcome, error) {
	if site.AuthType == models.AuthTypeNone || site.AuthType == "" {
		return &models.AuthOutcome{OK: true}, nil
	}

	strategy, ok := s.strategies[site.AuthType]
	if !ok {
		return nil, fmt.Errorf("no auth strategy for type %q: %w", site.AuthType, models.ErrAuthFailure)
	}
	if creds == nil && credentialBearing[site.AuthType] {
		return nil, fmt.Errorf("site %s uses %s auth but has no stored credentials: %w",
			site.ID, site.AuthType, models.ErrAuthFailure)
	}

	authCtx := ctx
	if s.config.AuthTimeout > 0 {
		var cancel context.CancelFunc
		authCtx, cancel = context.WithTimeout(ctx, s.config.AuthTimeout)
		defer cancel()
	}

	s.logger.Info().
		Str("site_id", site.ID).
		Str("auth_type", string(site.AuthType)).
		Msg("Authenticating")

	outcome, err := strategy.Authenticate(authCtx, page, site, creds)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("authentication timed out for site %s: %w", site.ID, models.ErrAuthTimeout)
		}
		return nil, err
	}
	if !outcome.OK {
		s.logger.Warn().
			Str("site_id", site.ID).
			Str("auth_type", string(site.AuthType)).
			Msg("Authentication rejected")
	}
	return outcome, nil
}

var _ interfaces.AuthService = (*Service)(nil)
