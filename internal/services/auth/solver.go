package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// captchaSolver delegates CAPTCHA challenges to an external solving
// service. Unconfigured means every challenge is a hard block.
type captchaSolver struct {
	url    string
	apiKey string
	client *http.Client
}

func newCaptchaSolver(url, apiKey string, client *http.Client) *captchaSolver {
	return &captchaSolver{url: url, apiKey: apiKey, client: client}
}

func (s *captchaSolver) configured() bool {
	return s.url != ""
}

// Solve submits the page URL and returns the challenge response token
func (s *captchaSolver) Solve(ctx context.Context, pageURL string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"page_url": pageURL,
		"api_key":  s.apiKey,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("solver request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("solver returned %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode solver response: %w", err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("solver returned no token")
	}
	return result.Token, nil
}
