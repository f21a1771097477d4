package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/common"
	"github.com/hoistscout/hoistscout/internal/interfaces"
)

// Service creates chromedp-backed pages. Each page gets its own allocator
// and browser context so scrape runs never share state. The anti-detection
// baseline (stealth script, rotated user agent and viewport, optional
// proxy) is applied before the first navigation.
type Service struct {
	config  *common.BrowserConfig
	logger  arbor.ILogger
	proxies *proxyPool

	mu     sync.Mutex
	closed bool
	pages  []*chromedpPage
}

// NewService creates the browser service
func NewService(config *common.BrowserConfig, logger arbor.ILogger) *Service {
	return &Service{
		config:  config,
		logger:  logger,
		proxies: newProxyPool(config.Proxies),
	}
}

// NewPage opens a fresh browser context with the anti-detection baseline
func (s *Service) NewPage(ctx context.Context) (interfaces.BrowserPage, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("browser service is closed")
	}
	s.mu.Unlock()

	userAgent := userAgents[0]
	if s.config.UserAgentRotation {
		userAgent = randomUserAgent()
	}
	vp := randomViewport()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Headless),
		chromedp.Flag("disable-gpu", s.config.DisableGPU),
		chromedp.Flag("no-sandbox", s.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(vp.width, vp.height),
	)

	proxy := s.proxies.next()
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	page := &chromedpPage{
		ctx:         browserCtx,
		cancel:      browserCancel,
		allocCancel: allocCancel,
		userAgent:   userAgent,
		proxy:       proxy,
		loadTimeout: s.config.PageLoadTimeout,
		solver:      newChallengeSolver(s.config.SolverURL, s.config.CaptchaKey),
		logger:      s.logger,
	}

	if err := page.applyStealth(); err != nil {
		page.Close()
		if proxy != "" {
			s.proxies.markUnhealthy(proxy)
			s.logger.Warn().Str("proxy", proxy).Err(err).Msg("Proxy marked unhealthy")
		}
		return nil, fmt.Errorf("failed to initialize browser context: %w", err)
	}

	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()

	s.logger.Debug().
		Str("user_agent", userAgent).
		Int("viewport_w", vp.width).
		Int("viewport_h", vp.height).
		Str("proxy", proxy).
		Msg("Browser context created")
	return page, nil
}

// Close shuts down every outstanding page
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, page := range s.pages {
		page.Close()
	}
	s.pages = nil
	return nil
}

// proxyPool rotates through configured proxies, skipping ones marked
// unhealthy after a failed context start.
type proxyPool struct {
	mu        sync.Mutex
	proxies   []string
	unhealthy map[string]bool
	index     int
}

func newProxyPool(proxies []string) *proxyPool {
	return &proxyPool{
		proxies:   proxies,
		unhealthy: make(map[string]bool),
	}
}

// next returns the next healthy proxy, or "" when none are configured or
// all are unhealthy (direct connection).
func (p *proxyPool) next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < len(p.proxies); i++ {
		proxy := p.proxies[p.index%len(p.proxies)]
		p.index++
		if !p.unhealthy[proxy] {
			return proxy
		}
	}
	return ""
}

func (p *proxyPool) markUnhealthy(proxy string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unhealthy[proxy] = true
}

var _ interfaces.BrowserService = (*Service)(nil)
