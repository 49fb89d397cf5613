// Package dropbox implements remote.Store against a Dropbox-style HTTP API:
// bearer tokens with refresh, JSON RPC endpoints on an api host, and
// content upload/download endpoints on a separate content host.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediasync/internal/remote"
)

const (
	defaultAPIBase     = "https://api.dropboxapi.com/2"
	defaultContentBase = "https://content.dropboxapi.com/2"

	// maxAttempts bounds every request loop: rate limits, auth refreshes
	// and transport timeouts all share it.
	maxAttempts = 3

	// defaultRetryAfter is used when a 429 carries no Retry-After hint.
	defaultRetryAfter = 2 * time.Second

	// baseTimeout is the first attempt's budget; each retry adds the same
	// amount again so slow transfers get progressively more room.
	baseTimeout = 30 * time.Second
)

// TokenSaver persists a refreshed access token so later processes reuse it.
type TokenSaver func(accessToken string) error

// Options configures a Client.
type Options struct {
	APIBase      string // empty = Dropbox production api host
	ContentBase  string // empty = Dropbox production content host
	AppKey       string
	AppSecret    string
	AccessToken  string
	RefreshToken string
	Saver        TokenSaver
	Logger       *slog.Logger
}

// Client is a resilient typed wrapper over the remote store's HTTP API.
type Client struct {
	apiBase     string
	contentBase string
	appKey      string
	appSecret   string
	saver       TokenSaver
	httpClient  *http.Client
	logger      *slog.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// New creates a client. The transport mirrors the settings used for large
// object uploads elsewhere in this codebase.
func New(opts Options) *Client {
	if opts.APIBase == "" {
		opts.APIBase = defaultAPIBase
	}
	if opts.ContentBase == "" {
		opts.ContentBase = defaultContentBase
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		apiBase:      strings.TrimRight(opts.APIBase, "/"),
		contentBase:  strings.TrimRight(opts.ContentBase, "/"),
		appKey:       opts.AppKey,
		appSecret:    opts.AppSecret,
		saver:        opts.Saver,
		httpClient:   &http.Client{Transport: tr},
		logger:       opts.Logger.With("component", "dropbox"),
		accessToken:  opts.AccessToken,
		refreshToken: opts.RefreshToken,
	}
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// RefreshAccessToken exchanges the refresh token for a new access token and
// persists it through the configured saver.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshToken
	c.mu.Unlock()
	if refresh == "" {
		return errors.New("dropbox: no refresh token configured")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
		"client_id":     {c.appKey},
		"client_secret": {c.appSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dropbox: token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("dropbox: token refresh failed: %s: %s", resp.Status, body)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("dropbox: token refresh decode: %w", err)
	}
	if out.AccessToken == "" {
		return errors.New("dropbox: token refresh returned empty token")
	}

	c.mu.Lock()
	c.accessToken = out.AccessToken
	c.mu.Unlock()

	if c.saver != nil {
		if err := c.saver(out.AccessToken); err != nil {
			return fmt.Errorf("dropbox: refreshed but failed to persist token: %w", err)
		}
	}
	c.logger.Debug("access token refreshed")
	return nil
}

// apiError is the JSON error envelope returned by the API host.
type apiError struct {
	Summary string `json:"error_summary"`
}

func isNotFoundSummary(s string) bool {
	return strings.Contains(s, "not_found")
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// MakeRequest posts params as JSON to an api-host endpoint and returns the
// response body. It retries on 429 (honoring Retry-After), refreshes the
// access token once on 401, and retries ambiguous transport timeouts with
// an increasing timeout budget. All of it is capped at three attempts.
func (c *Client) MakeRequest(ctx context.Context, endpoint string, params any, method string) ([]byte, error) {
	if method == "" {
		method = http.MethodPost
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("dropbox: encode %s: %w", endpoint, err)
	}

	refreshed := false
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(attempt)*baseTimeout)
		res, err := c.doJSON(attemptCtx, method, endpoint, payload)
		cancel()

		switch {
		case err == nil && res.status == http.StatusOK:
			return res.body, nil

		case err == nil && res.status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("dropbox: %s rate limited", endpoint)
			c.logger.Warn("rate limited, backing off", "endpoint", endpoint, "wait", res.retryAfter)
			select {
			case <-time.After(res.retryAfter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		case err == nil && res.status == http.StatusUnauthorized && !refreshed:
			refreshed = true
			if rerr := c.RefreshAccessToken(ctx); rerr != nil {
				return nil, rerr
			}

		case err == nil:
			var envelope apiError
			_ = json.Unmarshal(res.body, &envelope)
			if isNotFoundSummary(envelope.Summary) {
				return nil, fmt.Errorf("dropbox: %s: %w", endpoint, remote.ErrNotFound)
			}
			return nil, fmt.Errorf("dropbox: %s: HTTP %d: %s", endpoint, res.status, envelope.Summary)

		case isTimeout(err):
			lastErr = err
			c.logger.Warn("request timed out, retrying", "endpoint", endpoint, "attempt", attempt)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}

		default:
			return nil, fmt.Errorf("dropbox: %s: %w", endpoint, err)
		}
	}
	return nil, fmt.Errorf("dropbox: %s: attempts exhausted: %w", endpoint, lastErr)
}

type jsonResult struct {
	body       []byte
	status     int
	retryAfter time.Duration
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, payload []byte) (jsonResult, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+endpoint, bytes.NewReader(payload))
	if err != nil {
		return jsonResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jsonResult{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return jsonResult{status: resp.StatusCode}, err
	}
	res := jsonResult{body: body, status: resp.StatusCode, retryAfter: defaultRetryAfter}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		res.retryAfter = time.Duration(secs) * time.Second
	}
	return res, nil
}

// IsConnected performs a lightweight authenticated probe.
func (c *Client) IsConnected(ctx context.Context) bool {
	_, err := c.MakeRequest(ctx, "/users/get_current_account", nil, http.MethodPost)
	return err == nil
}
