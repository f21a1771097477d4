package browser

import "math/rand"

// Curated desktop user agents rotated across browser contexts
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
}

// viewport is a browser window size
type viewport struct {
	width  int
	height int
}

var viewports = []viewport{
	{1920, 1080},
	{1366, 768},
	{1440, 900},
	{1536, 864},
}

// randomUserAgent picks a user agent from the curated list
func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// randomViewport picks a viewport from the curated list
func randomViewport() viewport {
	return viewports[rand.Intn(len(viewports))]
}

// stealthScript runs before any page script in every context. It removes
// the webdriver flag, normalizes navigator.plugins/languages and exposes
// a non-trivial chrome object.
const stealthScript = `
(() => {
  Object.defineProperty(navigator, 'webdriver', {
    get: () => undefined,
  });

  Object.defineProperty(navigator, 'languages', {
    get: () => ['en-US', 'en'],
  });

  Object.defineProperty(navigator, 'plugins', {
    get: () => {
      const plugins = [
        { name: 'PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
        { name: 'Chrome PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
        { name: 'Chromium PDF Viewer', filename: 'internal-pdf-viewer', description: 'Portable Document Format' },
      ];
      plugins.item = (i) => plugins[i] || null;
      plugins.namedItem = (name) => plugins.find((p) => p.name === name) || null;
      return plugins;
    },
  });

  if (!window.chrome) {
    window.chrome = {};
  }
  window.chrome.runtime = window.chrome.runtime || {
    connect: () => ({ onMessage: { addListener: () => {} }, postMessage: () => {}, disconnect: () => {} }),
    sendMessage: () => {},
    id: undefined,
  };
  window.chrome.loadTimes = window.chrome.loadTimes || (() => ({
    requestTime: Date.now() / 1000,
    startLoadTime: Date.now() / 1000,
    commitLoadTime: Date.now() / 1000,
    finishDocumentLoadTime: Date.now() / 1000,
  }));
  window.chrome.csi = window.chrome.csi || (() => ({ onloadT: Date.now(), startE: Date.now(), tran: 15 }));

  const originalQuery = window.navigator.permissions.query;
  window.navigator.permissions.query = (parameters) =>
    parameters.name === 'notifications'
      ? Promise.resolve({ state: Notification.permission })
      : originalQuery(parameters);
})();
`
