package compliance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// robotsData is a parsed robots.txt file
type robotsData struct {
	agents   map[string]*robotsAgent
	sitemaps []string
}

// robotsAgent holds the rules for one user-agent section
type robotsAgent struct {
	name       string
	allow      []string
	disallow   []string
	crawlDelay time.Duration
}

// fetchRobotsTxt downloads and parses robots.txt for a base URL. A missing
// or unreachable robots.txt returns (nil, nil): absence means allowed.
func (s *Service) fetchRobotsTxt(ctx context.Context, baseURL string) (*robotsData, error) {
	robotsURL := strings.TrimSuffix(baseURL, "/") + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", robotsURL).Msg("Could not fetch robots.txt, assuming allowed")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read robots.txt: %w", err)
	}
	return parseRobotsTxt(string(body)), nil
}

// parseRobotsTxt parses robots.txt content. Consecutive User-agent lines
// share the rule group that follows them.
func parseRobotsTxt(content string) *robotsData {
	data := &robotsData{agents: make(map[string]*robotsAgent)}

	var current []*robotsAgent
	inAgentHeader := false

	for _, line := range strings.Split(content, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		field := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch field {
		case "user-agent":
			name := strings.ToLower(value)
			agent, ok := data.agents[name]
			if !ok {
				agent = &robotsAgent{name: name}
				data.agents[name] = agent
			}
			if inAgentHeader {
				current = append(current, agent)
			} else {
				current = []*robotsAgent{agent}
			}
			inAgentHeader = true
		case "disallow":
			for _, agent := range current {
				agent.disallow = append(agent.disallow, value)
			}
			inAgentHeader = false
		case "allow":
			for _, agent := range current {
				agent.allow = append(agent.allow, value)
			}
			inAgentHeader = false
		case "crawl-delay":
			if seconds, err := strconv.ParseFloat(value, 64); err == nil && seconds > 0 {
				delay := time.Duration(seconds * float64(time.Second))
				for _, agent := range current {
					agent.crawlDelay = delay
				}
			}
			inAgentHeader = false
		case "sitemap":
			data.sitemaps = append(data.sitemaps, value)
		default:
			inAgentHeader = false
		}
	}
	return data
}

// agentFor returns the rules applying to userAgent: an exact section if
// present, else the wildcard section, else nil.
func (d *robotsData) agentFor(userAgent string) *robotsAgent {
	if d == nil {
		return nil
	}
	name := strings.ToLower(robotsProductToken(userAgent))
	if agent, ok := d.agents[name]; ok {
		return agent
	}
	if agent, ok := d.agents["*"]; ok {
		return agent
	}
	return nil
}

// robotsProductToken trims a full User-Agent header down to the product
// token robots.txt sections match on ("HoistScoutBot/1.0 (+url)" ->
// "HoistScoutBot").
func robotsProductToken(userAgent string) string {
	token := userAgent
	if i := strings.IndexAny(token, " /("); i > 0 {
		token = token[:i]
	}
	return token
}

// pathAllowed reports whether path may be fetched under these rules.
// Explicit allows win over disallows, matching by longest pattern.
func (d *robotsData) pathAllowed(userAgent, path string) bool {
	agent := d.agentFor(userAgent)
	if agent == nil {
		return true
	}
	if path == "" {
		path = "/"
	}

	bestAllow := longestMatch(agent.allow, path)
	bestDisallow := longestMatch(agent.disallow, path)
	if bestDisallow < 0 {
		return true
	}
	return bestAllow >= bestDisallow
}

// crawlDelayFor returns the crawl delay applying to userAgent, or zero
func (d *robotsData) crawlDelayFor(userAgent string) time.Duration {
	agent := d.agentFor(userAgent)
	if agent == nil {
		return 0
	}
	return agent.crawlDelay
}

// longestMatch returns the length of the longest pattern matching path,
// or -1 when none match.
func longestMatch(patterns []string, path string) int {
	best := -1
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if matchesRobotsPattern(pattern, path) && len(pattern) > best {
			best = len(pattern)
		}
	}
	return best
}

// matchesRobotsPattern matches a robots.txt pattern against a path,
// supporting the * wildcard and $ end anchor.
func matchesRobotsPattern(pattern, path string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	if anchored {
		pattern = strings.TrimSuffix(pattern, "$")
	}

	segments := strings.Split(pattern, "*")
	pos := 0
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		idx := strings.Index(path[pos:], seg)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			// First segment must match at the start
			return false
		}
		pos += idx + len(seg)
	}
	if anchored {
		return pos == len(path) || (len(segments) > 0 && segments[len(segments)-1] == "")
	}
	return true
}
