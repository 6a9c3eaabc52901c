// Package httputil provides a hardened HTTP client and input validation helpers
// shared by the provider, extraction and domain-probing code.
package httputil

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/121.0"
	acceptLanguage = "en-US,en;q=0.5"

	// MaxPageSize caps embed page bodies.
	MaxPageSize = 5 * 1024 * 1024
	// MaxJSONSize caps provider and intermediary JSON bodies.
	MaxJSONSize = 10 * 1024 * 1024
)

// NewClient creates a hardened HTTP client with secure defaults.
// Per-request deadlines come from the caller's context; the client timeout is only a backstop.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        20,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConnsPerHost: 5,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
}

// StatusError reports a non-OK HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

func newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)
	return req, nil
}

// GetPage fetches a page and returns its body as text.
// A non-empty referer is forwarded since many embed hosts check it.
func GetPage(ctx context.Context, client *http.Client, pageURL, referer string) (string, error) {
	req, err := newRequest(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	body, err := do(client, req, MaxPageSize)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// GetJSON performs a GET request with JSON accept header and returns the raw body.
func GetJSON(ctx context.Context, client *http.Client, apiURL string) ([]byte, error) {
	req, err := newRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	return do(client, req, MaxJSONSize)
}

// PostJSON encodes payload as the request body and returns the raw response body.
// Extra headers are applied verbatim (e.g. an API key).
func PostJSON(ctx context.Context, client *http.Client, apiURL string, payload any, headers map[string]string) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := newRequest(ctx, http.MethodPost, apiURL, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return do(client, req, MaxJSONSize)
}

// Head issues a HEAD request and returns the status code.
// Any response, whatever its status, means the host answered.
func Head(ctx context.Context, client *http.Client, rawURL string) (int, error) {
	req, err := newRequest(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	resp.Body.Close()

	return resp.StatusCode, nil
}

func do(client *http.Client, req *http.Request, limit int64) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, URL: req.URL.String()}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return body, nil
}
