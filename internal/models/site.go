package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AuthType identifies how a site expects authentication
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeForm   AuthType = "form"
	AuthTypeOAuth  AuthType = "oauth"
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeCookie AuthType = "cookie"
)

// Valid reports whether t is a known auth type
func (t AuthType) Valid() bool {
	switch t {
	case AuthTypeNone, AuthTypeBasic, AuthTypeForm, AuthTypeOAuth, AuthTypeAPIKey, AuthTypeCookie:
		return true
	}
	return false
}

// Site is a pre-registered source website. Credentials are stored only as
// ciphertext; plaintext exists transiently in worker memory.
type Site struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	URL                  string         `json:"url"` // Unique across the system
	Category             string         `json:"category,omitempty"`
	AuthType             AuthType       `json:"auth_type"`
	EncryptedCredentials []byte         `json:"-"` // Never serialized outward
	ScrapingConfig       ScrapingConfig `json:"scraping_config"`
	Active               bool           `json:"active"`
	LegalBlocked         bool           `json:"legal_blocked"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// ScrapingConfig is the declarative per-site scrape configuration,
// persisted as JSON on the Site row.
type ScrapingConfig struct {
	Auth            AuthConfig        `json:"auth"`
	Pagination      PaginationConfig  `json:"pagination"`
	Selectors       SelectorConfig    `json:"selectors"`
	RateLimitMS     int               `json:"rate_limit_ms,omitempty"`
	ExtractionHints string            `json:"extraction_hints,omitempty"`
	StartURL        string            `json:"start_url,omitempty"` // Defaults to the site URL
	Headers         map[string]string `json:"headers,omitempty"`
}

// AuthConfig drives the auth engine for one site
type AuthConfig struct {
	Type             AuthType          `json:"type"`
	LoginURL         string            `json:"login_url,omitempty"`
	UsernameSelector string            `json:"username_selector,omitempty"`
	PasswordSelector string            `json:"password_selector,omitempty"`
	SubmitSelector   string            `json:"submit_selector,omitempty"`
	SuccessIndicator string            `json:"success_indicator,omitempty"` // CSS selector proving login worked
	TestEndpoint     string            `json:"test_endpoint,omitempty"`     // Probe target for basic / api_key
	KeyPlacement     string            `json:"key_placement,omitempty"`     // "header", "query" or "cookie"
	KeyName          string            `json:"key_name,omitempty"`
	Cookies          map[string]string `json:"cookies,omitempty"` // Injected verbatim for cookie auth
}

// PaginationHint narrows strategy detection for one site
type PaginationHint string

const (
	PaginationHintAuto     PaginationHint = "auto"
	PaginationHintNumbered PaginationHint = "numbered"
	PaginationHintAjax     PaginationHint = "ajax"
	PaginationHintLoadMore PaginationHint = "load_more"
	PaginationHintInfinite PaginationHint = "infinite"
)

// PaginationConfig bounds the pagination engine
type PaginationConfig struct {
	Hint     PaginationHint `json:"hint,omitempty"`
	MaxPages int            `json:"max_pages,omitempty"`
}

// SelectorConfig is the CSS selector map for fallback extraction
type SelectorConfig struct {
	OpportunityContainer string `json:"opportunity_container,omitempty"`
	Title                string `json:"title,omitempty"`
	Description          string `json:"description,omitempty"`
	Deadline             string `json:"deadline,omitempty"`
	Value                string `json:"value,omitempty"`
	Reference            string `json:"reference,omitempty"`
	Link                 string `json:"link,omitempty"`
	Documents            string `json:"documents,omitempty"`
}

// ParseScrapingConfig decodes the JSON scraping config stored on a site row
func ParseScrapingConfig(data []byte) (ScrapingConfig, error) {
	var config ScrapingConfig
	if len(data) == 0 {
		return config, nil
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse scraping config: %w", err)
	}
	return config, nil
}

// EffectiveMaxPages returns the configured page cap or the given default
func (c ScrapingConfig) EffectiveMaxPages(defaultMax int) int {
	if c.Pagination.MaxPages > 0 {
		return c.Pagination.MaxPages
	}
	return defaultMax
}

// Credentials is the decrypted credential map for one site. It is never
// persisted and never logged.
type Credentials struct {
	Username string            `json:"username,omitempty"`
	Password string            `json:"password,omitempty"`
	APIKey   string            `json:"api_key,omitempty"`
	Token    string            `json:"token,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Wipe overwrites credential fields in place. Callers invoke it once the
// credentials have been used.
func (c *Credentials) Wipe() {
	if c == nil {
		return
	}
	c.Username = ""
	c.Password = ""
	c.APIKey = ""
	c.Token = ""
	for k := range c.Extra {
		c.Extra[k] = ""
	}
	c.Extra = nil
}

// Fields returns every non-empty secret value, used to scrub log output
func (c *Credentials) Fields() []string {
	if c == nil {
		return nil
	}
	var fields []string
	for _, v := range []string{c.Username, c.Password, c.APIKey, c.Token} {
		if v != "" {
			fields = append(fields, v)
		}
	}
	for _, v := range c.Extra {
		if v != "" {
			fields = append(fields, v)
		}
	}
	return fields
}
