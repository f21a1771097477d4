package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// Probe lists for form fields, tried after any explicitly configured
// selector. Ordered from most to least specific.
var (
	usernameSelectors = []string{
		`input[name="username"]`,
		`input[name="email"]`,
		`input[type="email"]`,
		`input[name="user"]`,
		`input[name="login"]`,
		`#username`,
		`#email`,
	}
	passwordSelectors = []string{
		`input[name="password"]`,
		`input[type="password"]`,
		`#password`,
	}
	submitSelectors = []string{
		`button[type="submit"]`,
		`input[type="submit"]`,
		`button[name="login"]`,
		`form button`,
	}
	captchaSelectors = []string{
		`iframe[src*="recaptcha"]`,
		`iframe[src*="hcaptcha"]`,
		`iframe[src*="turnstile"]`,
		`.g-recaptcha`,
		`.h-captcha`,
		`#cf-challenge-running`,
	}
	logoutSelectors = []string{
		`a[href*="logout"]`,
		`a[href*="signout"]`,
		`a[href*="sign-out"]`,
	}
	errorMessageSelectors = []string{
		`.error`,
		`.alert-danger`,
		`.login-error`,
		`[role="alert"]`,
	}
)

// formStrategy drives a username/password login form
type formStrategy struct {
	solver *captchaSolver
	logger arbor.ILogger
}

func (f *formStrategy) Type() models.AuthType { return models.AuthTypeForm }

func (f *formStrategy) Authenticate(ctx context.Context, page interfaces.BrowserPage, site *models.Site, creds *models.Credentials) (*models.AuthOutcome, error) {
	cfg := site.ScrapingConfig.Auth

	loginURL := cfg.LoginURL
	if loginURL == "" {
		loginURL = site.URL
	}
	if err := page.Navigate(ctx, loginURL); err != nil {
		return nil, fmt.Errorf("failed to open login page: %w", err)
	}

	userSel, err := f.probe(ctx, page, cfg.UsernameSelector, usernameSelectors)
	if err != nil {
		return nil, err
	}
	passSel, err := f.probe(ctx, page, cfg.PasswordSelector, passwordSelectors)
	if err != nil {
		return nil, err
	}
	if userSel == "" || passSel == "" {
		return nil, fmt.Errorf("no login form at %s: %w", loginURL, models.ErrLoginFormNotFound)
	}

	if err := page.Fill(ctx, userSel, creds.Username); err != nil {
		return nil, fmt.Errorf("failed to fill username field: %w", err)
	}
	if err := page.Fill(ctx, passSel, creds.Password); err != nil {
		return nil, fmt.Errorf("failed to fill password field: %w", err)
	}

	if err := f.handleCaptcha(ctx, page, loginURL); err != nil {
		return nil, err
	}

	if err := f.submit(ctx, page, cfg.SubmitSelector, passSel); err != nil {
		return nil, err
	}

	ok, err := f.confirmSuccess(ctx, page, cfg.SuccessIndicator, loginURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		messages, _ := f.harvestErrors(ctx, page)
		return &models.AuthOutcome{
			OK:       false,
			Messages: messages,
			Error:    "login rejected",
		}, nil
	}

	state, err := page.CaptureState(ctx, site.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to capture session after login: %w", err)
	}
	return &models.AuthOutcome{OK: true, State: state}, nil
}

// probe returns the first selector present on the page, trying the
// explicitly configured one before the common patterns.
func (f *formStrategy) probe(ctx context.Context, page interfaces.BrowserPage, explicit string, candidates []string) (string, error) {
	tries := candidates
	if explicit != "" {
		tries = append([]string{explicit}, candidates...)
	}
	for _, sel := range tries {
		exists, err := page.ElementExists(ctx, sel)
		if err != nil {
			return "", err
		}
		if exists {
			return sel, nil
		}
	}
	return "", nil
}

// handleCaptcha detects a CAPTCHA widget before submit. With a solver
// configured the token is injected into the response field; otherwise the
// attempt fails as blocked.
func (f *formStrategy) handleCaptcha(ctx context.Context, page interfaces.BrowserPage, pageURL string) error {
	var found bool
	for _, sel := range captchaSelectors {
		exists, err := page.ElementExists(ctx, sel)
		if err != nil {
			return err
		}
		if exists {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	if !f.solver.configured() {
		return fmt.Errorf("captcha present and no solver configured: %w", models.ErrCaptchaBlocked)
	}

	token, err := f.solver.Solve(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("captcha solver failed: %w", models.ErrCaptchaBlocked)
	}
	quoted, _ := json.Marshal(token)
	js := fmt.Sprintf(`(() => {
		const field = document.querySelector('textarea[name="g-recaptcha-response"], textarea[name="h-captcha-response"]');
		if (field) { field.value = %s; }
	})()`, quoted)
	return page.Evaluate(ctx, js, nil)
}

func (f *formStrategy) submit(ctx context.Context, page interfaces.BrowserPage, explicit, passSel string) error {
	submitSel, err := f.probe(ctx, page, explicit, submitSelectors)
	if err != nil {
		return err
	}
	if submitSel != "" {
		if err := page.Click(ctx, submitSel); err == nil {
			return nil
		}
	}
	// No clickable submit found, Enter in the password field works on most forms
	return page.PressEnter(ctx, passSel)
}

// confirmSuccess checks, in order: the configured success indicator, a URL
// change away from the login page, and the presence of a logout link.
func (f *formStrategy) confirmSuccess(ctx context.Context, page interfaces.BrowserPage, indicator, loginURL string) (bool, error) {
	if indicator != "" {
		if err := page.WaitVisible(ctx, indicator, 10*time.Second); err == nil {
			return true, nil
		}
		return false, nil
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		current, err := page.URL(ctx)
		if err != nil {
			return false, err
		}
		if current != loginURL && !strings.Contains(strings.ToLower(current), "login") {
			return true, nil
		}
		for _, sel := range logoutSelectors {
			exists, err := page.ElementExists(ctx, sel)
			if err != nil {
				return false, err
			}
			if exists {
				return true, nil
			}
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return false, nil
}

// harvestErrors collects visible error text so the outcome can explain a
// rejected login without another page fetch.
func (f *formStrategy) harvestErrors(ctx context.Context, page interfaces.BrowserPage) ([]string, error) {
	html, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	var messages []string
	seen := make(map[string]bool)
	for _, sel := range errorMessageSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if text != "" && !seen[text] {
				seen[text] = true
				messages = append(messages, text)
			}
		})
	}
	return messages, nil
}

var _ interfaces.AuthStrategy = (*formStrategy)(nil)
