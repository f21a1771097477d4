package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

const keyPrefix = "hoist:session:"

// Store persists authenticated browser state in Redis with a TTL. Writes
// are last-writer-wins per site; expiry is enforced both by the Redis TTL
// and a capture-timestamp check on load.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger arbor.ILogger
}

// NewStore creates a session store over a Redis client
func NewStore(client *redis.Client, ttl time.Duration, logger arbor.ILogger) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Save stores the browser state for a site, stamping the capture time if
// the caller has not.
func (s *Store) Save(ctx context.Context, siteID string, state *models.BrowserState) error {
	if siteID == "" {
		return fmt.Errorf("site id is required")
	}
	if state == nil {
		return fmt.Errorf("browser state is required")
	}
	if state.CapturedAt.IsZero() {
		state.CapturedAt = time.Now()
	}
	state.SiteID = siteID

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize browser state: %w", err)
	}

	if err := s.client.Set(ctx, keyPrefix+siteID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Debug().
		Str("site_id", siteID).
		Int("cookies", len(state.Cookies)).
		Msg("Session saved")
	return nil
}

// Load returns the cached browser state for a site, or (nil, nil) when no
// valid session exists and the caller must run full authentication.
func (s *Store) Load(ctx context.Context, siteID string) (*models.BrowserState, error) {
	data, err := s.client.Get(ctx, keyPrefix+siteID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var state models.BrowserState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt entry: drop it and force re-authentication
		s.logger.Warn().Str("site_id", siteID).Err(err).Msg("Dropping corrupt session entry")
		_ = s.client.Del(ctx, keyPrefix+siteID).Err()
		return nil, nil
	}

	if state.Expired(time.Now(), s.ttl) {
		_ = s.client.Del(ctx, keyPrefix+siteID).Err()
		return nil, nil
	}
	return &state, nil
}

// Invalidate drops the cached session for a site
func (s *Store) Invalidate(ctx context.Context, siteID string) error {
	if err := s.client.Del(ctx, keyPrefix+siteID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	s.logger.Debug().Str("site_id", siteID).Msg("Session invalidated")
	return nil
}

// Close releases the Redis client
func (s *Store) Close() error {
	return s.client.Close()
}

var _ interfaces.SessionService = (*Store)(nil)
