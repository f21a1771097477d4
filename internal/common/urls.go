package common

import (
	"fmt"
	"net/url"
	"strings"
)

// ExtractDomain returns the lowercase host of rawURL without port or
// a leading "www." prefix. Returns an error for unparseable or
// schemeless URLs.
func ExtractDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", rawURL, err)
	}
	host := parsed.Hostname()
	if host == "" {
		return "", fmt.Errorf("URL %q has no host", rawURL)
	}
	host = strings.ToLower(host)
	host = strings.TrimPrefix(host, "www.")
	return host, nil
}

// govSuffixes covers government TLDs and second-level domains that get
// the conservative crawl delay.
var govSuffixes = []string{
	".gov",
	".mil",
	".gov.au",
	".gov.uk",
	".gov.nz",
	".gov.sg",
	".gc.ca",
	".europa.eu",
}

// IsGovernmentDomain reports whether the domain belongs to a government
// body. Matches exact TLD suffixes, not substrings.
func IsGovernmentDomain(domain string) bool {
	domain = strings.ToLower(domain)
	for _, suffix := range govSuffixes {
		if strings.HasSuffix(domain, suffix) || domain == strings.TrimPrefix(suffix, ".") {
			return true
		}
	}
	return false
}

// ResolveURL resolves ref against base, returning an absolute URL.
// Already-absolute refs pass through unchanged.
func ResolveURL(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL %q: %w", base, err)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", ref, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// RobotsTxtURL builds the robots.txt URL for the host of rawURL
func RobotsTxtURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("URL %q has no scheme or host", rawURL)
	}
	return fmt.Sprintf("%s://%s/robots.txt", parsed.Scheme, parsed.Host), nil
}
