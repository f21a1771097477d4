package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

// chromedpPage is one live page in a dedicated browser context
type chromedpPage struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	userAgent   string
	proxy       string
	loadTimeout time.Duration
	solver      *challengeSolver
	logger      arbor.ILogger
}

// applyStealth installs the stealth script to run before any page script
func (p *chromedpPage) applyStealth() error {
	return chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := cdppage.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	}))
}

// Navigate loads url, waits for the document body, and resolves any
// challenge interstitial before returning.
func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	if err := p.navigate(ctx, url); err != nil {
		return err
	}
	if p.challenged(ctx) {
		return p.passChallenge(ctx, url)
	}
	return nil
}

func (p *chromedpPage) navigate(ctx context.Context, url string) error {
	runCtx, cancel := p.withTimeout(ctx, p.loadTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// URL returns the current page location
func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	var location string
	runCtx, cancel := p.withTimeout(ctx, p.loadTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return location, nil
}

// Content returns the rendered HTML of the page
func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var html string
	runCtx, cancel := p.withTimeout(ctx, p.loadTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return html, nil
}

// Click clicks the first element matching selector
func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	runCtx, cancel := p.withTimeout(ctx, p.loadTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Click(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

// Fill focuses the element and types value with human-like inter-key
// delays of 40-120ms.
func (p *chromedpPage) Fill(ctx context.Context, selector string, value string) error {
	runCtx, cancel := p.withTimeout(ctx, p.loadTimeout+time.Duration(len(value))*200*time.Millisecond)
	defer cancel()

	if err := chromedp.Run(runCtx,
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to focus %s: %w", selector, err)
	}

	for _, r := range value {
		if err := chromedp.Run(runCtx, chromedp.SendKeys(selector, string(r), chromedp.ByQuery)); err != nil {
			return fmt.Errorf("failed to type into %s: %w", selector, err)
		}
		select {
		case <-runCtx.Done():
			return runCtx.Err()
		case <-time.After(time.Duration(40+rand.Intn(80)) * time.Millisecond):
		}
	}
	return nil
}

// PressEnter sends the Enter key to the element matching selector
func (p *chromedpPage) PressEnter(ctx context.Context, selector string) error {
	runCtx, cancel := p.withTimeout(ctx, p.loadTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to press enter in %s: %w", selector, err)
	}
	return nil
}

// Evaluate runs js in the page and unmarshals the result into out
func (p *chromedpPage) Evaluate(ctx context.Context, js string, out interface{}) error {
	runCtx, cancel := p.withTimeout(ctx, p.loadTimeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("failed to evaluate script: %w", err)
	}
	return nil
}

// WaitVisible waits until selector is visible, up to timeout
func (p *chromedpPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	runCtx, cancel := p.withTimeout(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("element %s not visible: %w", selector, err)
	}
	return nil
}

// ElementExists reports whether selector matches anything on the page
func (p *chromedpPage) ElementExists(ctx context.Context, selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := p.Evaluate(ctx, fmt.Sprintf("document.querySelector(%s) !== null", quoted), &exists); err != nil {
		return false, err
	}
	return exists, nil
}

// ScrollToBottom scrolls the window to the bottom of the document
func (p *chromedpPage) ScrollToBottom(ctx context.Context) error {
	return p.Evaluate(ctx, "window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight", nil)
}

// SetCookies injects cookies into the browser context
func (p *chromedpPage) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	runCtx, cancel := p.withTimeout(ctx, p.loadTimeout)
	defer cancel()

	return chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			param := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if !c.Expires.IsZero() {
				expires := cdp.TimeSinceEpoch(c.Expires)
				param = param.WithExpires(&expires)
			}
			if err := param.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// CaptureState snapshots cookies, localStorage and sessionStorage
func (p *chromedpPage) CaptureState(ctx context.Context, siteID string) (*models.BrowserState, error) {
	runCtx, cancel := p.withTimeout(ctx, p.loadTimeout)
	defer cancel()

	state := &models.BrowserState{
		SiteID:     siteID,
		CapturedAt: time.Now(),
	}

	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := network.GetCookies().Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to read cookies: %w", err)
			}
			for _, c := range cookies {
				cookie := models.Cookie{
					Name:     c.Name,
					Value:    c.Value,
					Domain:   c.Domain,
					Path:     c.Path,
					HTTPOnly: c.HTTPOnly,
					Secure:   c.Secure,
					SameSite: string(c.SameSite),
				}
				if c.Expires > 0 {
					cookie.Expires = time.Unix(int64(c.Expires), 0)
				}
				state.Cookies = append(state.Cookies, cookie)
			}
			return nil
		}),
		chromedp.Evaluate("JSON.parse(JSON.stringify(Object.assign({}, window.localStorage)))", &state.LocalStorage),
		chromedp.Evaluate("JSON.parse(JSON.stringify(Object.assign({}, window.sessionStorage)))", &state.SessionStorage),
	)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Close releases the page and its browser context
func (p *chromedpPage) Close() error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.allocCancel != nil {
		p.allocCancel()
	}
	return nil
}

// withTimeout derives the run context from the page's browser context
// while honoring the caller's cancellation.
func (p *chromedpPage) withTimeout(caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.ctx)
	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		prev := cancel
		cancel = func() { tcancel(); prev() }
	}
	stop := context.AfterFunc(caller, cancel)
	prev := cancel
	return runCtx, func() { stop(); prev() }
}

var _ interfaces.BrowserPage = (*chromedpPage)(nil)
