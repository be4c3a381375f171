package fragment

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"

	"fragment-loader/internal/fetchqueue"
)

// RobotsRules holds the Disallow prefixes that apply to our user-agent.
// Disallow: /fragments/drafts forbids /fragments/drafts.html and anything under it.
type RobotsRules struct {
	disallowPrefixes []string
}

// Allowed reports whether path may be fetched. Nil or empty rules allow everything.
func (r *RobotsRules) Allowed(path string) bool {
	if r == nil || len(r.disallowPrefixes) == 0 {
		return true
	}
	path = normalizePath(path)
	for _, prefix := range r.disallowPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		return "/" + p
	}
	return p
}

// FetchRobots fetches /robots.txt from the origin of pageURL.
func FetchRobots(ctx context.Context, client *http.Client, pageURL string) ([]byte, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	u.Path = "/robots.txt"
	u.RawQuery = ""
	u.Fragment = ""
	return FetchWithClient(ctx, client, u.String(), DefaultUserAgent)
}

// IsRobotsMissing reports whether a robots.txt fetch failed only because the
// origin has none, which means everything is allowed.
func IsRobotsMissing(err error) bool {
	code := fetchqueue.StatusCode(err)
	return code == http.StatusNotFound || code == http.StatusGone
}

// ParseRobots returns the rules of the first User-agent block matching
// userAgent or "*".
func ParseRobots(body []byte, userAgent string) *RobotsRules {
	r := &RobotsRules{}
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	var inMatchingBlock, matched, prevAgent bool
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "user-agent:") {
			// Consecutive User-agent lines share one group.
			if !prevAgent {
				inMatchingBlock = false
			}
			agent := strings.TrimSpace(line[len("user-agent:"):])
			if !matched && (agent == "*" || strings.EqualFold(agent, userAgent)) {
				inMatchingBlock = true
			}
			prevAgent = true
			continue
		}
		prevAgent = false
		if !inMatchingBlock {
			continue
		}
		matched = true
		if strings.HasPrefix(lower, "disallow:") {
			path := strings.TrimSpace(line[len("disallow:"):])
			if path != "" {
				r.disallowPrefixes = append(r.disallowPrefixes, normalizePath(path))
			}
		}
	}
	return r
}

// PathFromURL returns the path component of rawURL, or "" if it does not parse.
func PathFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return normalizePath(u.Path)
}
