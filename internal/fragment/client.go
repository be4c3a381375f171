package fragment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"fragment-loader/internal/fetchqueue"
)

// DefaultUserAgent is sent with every fragment and robots.txt request.
const DefaultUserAgent = "FragmentLoader/1.0 (+https://github.com/fragment-loader)"

// Client fetches fragments relative to a base URL. It satisfies fetchqueue.Fetcher.
type Client struct {
	http      *http.Client
	base      *url.URL
	userAgent string
}

// NewClient builds a Client for base, which is either an http(s) URL or a local
// directory. Directories are served through a file transport, so a missing
// fragment surfaces as a 404 status the same way it would over HTTP.
// A nil client means http.DefaultClient for URL bases.
func NewClient(base string, client *http.Client) (*Client, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil, fmt.Errorf("empty fragment base")
	}
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse fragment base: %w", err)
		}
		if client == nil {
			client = http.DefaultClient
		}
		return &Client{http: client, base: u, userAgent: DefaultUserAgent}, nil
	}

	dir, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve fragment dir: %w", err)
	}
	transport := &http.Transport{}
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir(dir)))
	return &Client{
		http:      &http.Client{Transport: transport},
		base:      &url.URL{Scheme: "file", Path: "/"},
		userAgent: DefaultUserAgent,
	}, nil
}

// Base returns the URL locators are resolved against.
func (c *Client) Base() string {
	return c.base.String()
}

// Resolve turns a locator such as fragments/intro.html into an absolute URL.
func (c *Client) Resolve(locator string) (string, error) {
	ref, err := url.Parse(locator)
	if err != nil {
		return "", err
	}
	return c.base.ResolveReference(ref).String(), nil
}

// Fetch retrieves the fragment behind locator.
func (c *Client) Fetch(ctx context.Context, locator string) ([]byte, error) {
	target, err := c.Resolve(locator)
	if err != nil {
		return nil, &fetchqueue.TransportError{Locator: locator, Err: err}
	}
	return FetchWithClient(ctx, c.http, target, c.userAgent)
}

// FetchWithClient GETs rawURL and returns the full body. Non-2xx responses
// are *fetchqueue.HTTPStatusError, everything else that fails is
// *fetchqueue.TransportError.
func FetchWithClient(ctx context.Context, client *http.Client, rawURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &fetchqueue.TransportError{Locator: rawURL, Err: err}
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &fetchqueue.TransportError{Locator: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &fetchqueue.HTTPStatusError{Locator: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &fetchqueue.TransportError{Locator: rawURL, Err: err}
	}
	return body, nil
}
