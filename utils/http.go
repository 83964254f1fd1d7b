package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"uptofetch/internal"
)

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterPercent float64
}

// DefaultRetryConfig returns a single-attempt configuration. The link
// continuation token is single use, so API calls are not replayed unless the
// caller opts in.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   1,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.1,
	}
}

// RetryConfigFor builds a retry configuration allowing maxRetries retries
func RetryConfigFor(maxRetries int) *RetryConfig {
	rc := DefaultRetryConfig()
	if maxRetries > 0 {
		rc.MaxAttempts = maxRetries + 1
	}
	return rc
}

// HTTPClientConfig contains configuration for the HTTP client
type HTTPClientConfig struct {
	Timeout     time.Duration
	ProxyURL    string
	UserAgent   string
	RetryConfig *RetryConfig
}

// HTTPClient wraps net/http with proxy support, optional retries and the
// mapping of HTTP failures onto UptoboxError.
type HTTPClient struct {
	client      *http.Client
	userAgent   string
	retryConfig *RetryConfig
}

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 6.2; WOW64; rv:34.0) Gecko/20100101 Firefox/34.0"

// NewHTTPClient creates a new HTTP client with default configuration
func NewHTTPClient() *HTTPClient {
	return NewHTTPClientWithConfig(&HTTPClientConfig{
		Timeout: 30 * time.Second,
	})
}

// NewHTTPClientWithConfig creates a new HTTP client with custom configuration.
// Timeout bounds API calls only; streaming uploads and downloads go through
// a client without an overall deadline.
func NewHTTPClientWithConfig(config *HTTPClientConfig) *HTTPClient {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig()
	}
	if config.RetryConfig.MaxAttempts < 1 {
		config.RetryConfig.MaxAttempts = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig:       &tls.Config{},
	}

	if config.ProxyURL != "" {
		if err := configureProxy(transport, config.ProxyURL); err != nil {
			internal.GetLogger().Warn("Failed to configure proxy %s: %v", config.ProxyURL, err)
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPClient{
		client:      client,
		userAgent:   config.UserAgent,
		retryConfig: config.RetryConfig,
	}
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

// UserAgent returns the user agent sent with every request
func (c *HTTPClient) UserAgent() string {
	return c.userAgent
}

// Streaming returns a copy of the client without the overall request
// timeout, for bodies whose transfer time depends on file size.
func (c *HTTPClient) Streaming() *HTTPClient {
	inner := *c.client
	inner.Timeout = 0
	return &HTTPClient{
		client:      &inner,
		userAgent:   c.userAgent,
		retryConfig: &RetryConfig{MaxAttempts: 1},
	}
}

// GetWithContext performs a GET request, retrying transient failures up to
// the configured attempt count. The returned response always has a 2xx status.
func (c *HTTPClient) GetWithContext(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error) {
	return c.executeWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		req.Header.Set("Accept", "application/json, text/plain, */*")
		return req, nil
	})
}

// PostWithContext sends body exactly once. Streaming bodies cannot be
// replayed, so there is no retry.
func (c *HTTPClient) PostWithContext(ctx context.Context, rawURL, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, body)
	if err != nil {
		return nil, internal.NewRemoteUnavailableError("failed to create request", err).WithURL(rawURL)
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Do sends req once and maps transport and status failures
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)

	logger := internal.GetLogger()
	logger.LogHTTPRequest(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(req.Context(), req.URL.String(), err)
	}
	logger.LogHTTPResponse(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, StatusError(resp.StatusCode, req.URL.String())
	}
	return resp, nil
}

func (c *HTTPClient) executeWithRetry(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.calculateDelay(attempt)
			internal.GetLogger().Debug("Retrying request in %v (attempt %d/%d)", delay, attempt+1, c.retryConfig.MaxAttempts)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, internal.NewCanceledError("").WithCause(ctx.Err())
			}
		}

		req, err := build()
		if err != nil {
			return nil, internal.NewRemoteUnavailableError("failed to create request", err)
		}

		resp, err := c.Do(req)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// calculateDelay calculates the delay for the next retry attempt
func (c *HTTPClient) calculateDelay(attempt int) time.Duration {
	delay := float64(c.retryConfig.BaseDelay) * math.Pow(c.retryConfig.Multiplier, float64(attempt-1))

	// -jitterPercent to +jitterPercent
	jitter := delay * c.retryConfig.JitterPercent * (rand.Float64()*2 - 1)
	delay += jitter

	if delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}
	if delay < 0 {
		delay = float64(c.retryConfig.BaseDelay)
	}

	return time.Duration(delay)
}

// StatusError maps a non-2xx HTTP status onto the error taxonomy
func StatusError(status int, rawURL string) *internal.UptoboxError {
	var err *internal.UptoboxError
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		err = internal.NewAuthError(status, "authentication rejected by the service")
	case status == http.StatusNotFound:
		err = internal.NewUptoboxError(status, "resource not found", internal.ErrNotFound)
	case status == http.StatusTooManyRequests:
		err = internal.NewUptoboxError(status, "rate limited by the service", internal.ErrRemoteUnavailable)
	case status >= 500:
		err = internal.NewUptoboxError(status, "service error", internal.ErrRemoteUnavailable)
	default:
		err = internal.NewUptoboxError(status, fmt.Sprintf("unexpected HTTP status %d", status), internal.ErrRemoteUnavailable)
	}
	return err.WithURL(rawURL)
}

func transportError(ctx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil {
		return internal.NewCanceledError("").WithCause(ctx.Err()).WithURL(rawURL)
	}
	return internal.NewRemoteUnavailableError("request failed", err).WithURL(rawURL)
}

// isRetryableError reports whether a failed request may be sent again
func isRetryableError(err error) bool {
	var ue *internal.UptoboxError
	if !errors.As(err, &ue) {
		return false
	}
	if ue.Type != internal.ErrRemoteUnavailable {
		return false
	}
	return ue.Code == 0 || ue.Code == http.StatusTooManyRequests || ue.Code >= 500
}
