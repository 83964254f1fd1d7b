// Package uptobox talks to the Uptobox REST API: account tier, file
// metadata, search, the free-tier link negotiation and uploads.
package uptobox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"uptofetch/internal"
	"uptofetch/utils"
)

// DefaultAPIURL is the public Uptobox API root
const DefaultAPIURL = "https://uptobox.com/api"

// Service status codes carried in the response envelope
const (
	statusSuccess        = 0
	statusBadCredentials = 2
	statusInvalidToken   = 13
	statusWaitingNeeded  = 16
	statusPremiumOnly    = 17
	statusFileNotFound   = 28
)

// maxResponseSize bounds API response bodies
const maxResponseSize = 4 << 20

// Config holds everything a Client needs. Nothing is read from the
// environment.
type Config struct {
	Token      string
	APIURL     string
	HTTPClient *utils.HTTPClient
	Limiter    internal.RateLimiter
	Logger     *internal.SecureLogger
}

// Client implements internal.LinkResolver and internal.Uploader
type Client struct {
	token   string
	apiURL  *url.URL
	http    *utils.HTTPClient
	stream  *utils.HTTPClient
	limiter internal.RateLimiter
	logger  *internal.SecureLogger
	sleep   func(ctx context.Context, d time.Duration) error
}

var (
	_ internal.LinkResolver = (*Client)(nil)
	_ internal.Uploader     = (*Client)(nil)
)

// NewClient creates a Client from cfg
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	apiURL, err := url.Parse(strings.TrimRight(cfg.APIURL, "/"))
	if err != nil || apiURL.Scheme == "" || apiURL.Host == "" {
		return nil, internal.NewValidationErrorWithValue("api_url", "API URL must be absolute", cfg.APIURL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = utils.NewHTTPClient()
	}
	if cfg.Logger == nil {
		cfg.Logger = internal.GetLogger()
	}

	return &Client{
		token:   cfg.Token,
		apiURL:  apiURL,
		http:    cfg.HTTPClient,
		stream:  cfg.HTTPClient.Streaming(),
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
		sleep:   sleepContext,
	}, nil
}

// envelope is the common shape of every API answer
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

func (c *Client) endpoint(path string, params url.Values) string {
	u := *c.apiURL
	u.Path = u.Path + "/" + path
	u.RawQuery = params.Encode()
	return u.String()
}

func (c *Client) requireToken() error {
	if c.token == "" {
		return internal.NewAuthError(0, "no API token configured")
	}
	return nil
}

// call performs a GET on path and decodes the envelope's data into out. When
// once is set the request is sent a single time regardless of the retry
// configuration.
func (c *Client) call(ctx context.Context, path string, params url.Values, out interface{}, once bool) (int, error) {
	rawURL := c.endpoint(path, params)

	var resp *http.Response
	var err error
	if once {
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, internal.NewRemoteUnavailableError("failed to create request", err)
		}
		req.Header.Set("Accept", "application/json")
		resp, err = c.http.Do(req)
	} else {
		resp, err = c.http.GetWithContext(ctx, rawURL, nil)
	}
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return 0, internal.NewRemoteUnavailableError("failed to read response body", err).WithURL(rawURL)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, internal.NewRemoteUnavailableError("malformed response", err).WithURL(rawURL)
	}

	if err := statusError(env); err != nil {
		return env.StatusCode, err.WithURL(rawURL)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return env.StatusCode, internal.NewRemoteUnavailableError("response has no data", nil).WithURL(rawURL)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return env.StatusCode, internal.NewRemoteUnavailableError("unexpected data in response", err).WithURL(rawURL)
	}

	return env.StatusCode, nil
}

// statusError maps a non-success envelope onto the error taxonomy
func statusError(env envelope) *internal.UptoboxError {
	message := env.Message
	if message == "" {
		message = fmt.Sprintf("service status %d", env.StatusCode)
	}

	switch env.StatusCode {
	case statusSuccess, statusWaitingNeeded:
		return nil
	case statusBadCredentials, statusInvalidToken:
		return internal.NewAuthError(env.StatusCode, message)
	case statusPremiumOnly:
		return internal.NewAuthError(env.StatusCode, message).
			WithSuggestion("This operation requires a premium account")
	case statusFileNotFound:
		return internal.NewUptoboxError(env.StatusCode, message, internal.ErrNotFound)
	default:
		return internal.NewUptoboxError(env.StatusCode, message, internal.ErrRemoteUnavailable)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
