package models

import "time"

// Cookie is a captured browser cookie, serializable into the session store
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"http_only"`
	Secure   bool      `json:"secure"`
	SameSite string    `json:"same_site,omitempty"`
}

// BrowserState is the authenticated browser session persisted per site
// and reused across jobs until its TTL lapses.
type BrowserState struct {
	SiteID         string            `json:"site_id"`
	Cookies        []Cookie          `json:"cookies"`
	LocalStorage   map[string]string `json:"local_storage,omitempty"`
	SessionStorage map[string]string `json:"session_storage,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	CapturedAt     time.Time         `json:"captured_at"`
}

// Expired reports whether the state is older than ttl at the given instant
func (s *BrowserState) Expired(now time.Time, ttl time.Duration) bool {
	return s == nil || now.Sub(s.CapturedAt) >= ttl
}

// AuthOutcome is the result of one authentication attempt
type AuthOutcome struct {
	OK       bool              `json:"ok"`
	State    *BrowserState     `json:"state,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Messages []string          `json:"messages,omitempty"` // Visible error text harvested on failure
	Error    string            `json:"error,omitempty"`
}
