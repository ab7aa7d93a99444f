// Package nse fetches the index option chain from the NSE India website.
package nse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/oidelta/internal/logger"
	"github.com/rewired-gh/oidelta/internal/models"
)

var (
	// ErrNoExpiry is returned when no expiry date can be discovered.
	ErrNoExpiry = errors.New("no expiry date available")
	// ErrEmptyChain is returned when the chain payload holds no usable strikes.
	ErrEmptyChain = errors.New("option chain is empty")
)

const (
	DefaultBaseURL = "https://www.nseindia.com"

	contractInfoPath = "/api/option-chain-contract-info"
	chainV3Path      = "/api/option-chain-v3"
	chainIndicesPath = "/api/option-chain-indices"

	maxBodyBytes = 16 << 20
)

var warmUpPaths = []string{"/", "/option-chain"}

var browserHeaders = map[string]string{
	"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":             "*/*",
	"Accept-Language":    "en-US,en;q=0.9",
	"Connection":         "keep-alive",
	"Sec-Fetch-Dest":     "empty",
	"Sec-Fetch-Mode":     "cors",
	"Sec-Fetch-Site":     "same-origin",
	"sec-ch-ua":          `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
	"sec-ch-ua-mobile":   "?0",
	"sec-ch-ua-platform": `"Windows"`,
}

// Options configures a Client. Zero values fall back to production defaults.
type Options struct {
	BaseURL           string
	Symbol            string
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	WarmUpDelay       time.Duration
	RequestsPerSecond float64
}

// Client is an NSE session: a cookie-carrying HTTP client that looks enough
// like a browser for the public option chain API to answer.
type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *rate.Limiter
	warmed     bool
}

// NewClient creates a Client. No request is made until FetchChain.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if opts.Symbol == "" {
		opts.Symbol = "NIFTY"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Client{
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout, Jar: jar},
		limiter:    rate.NewLimiter(limit, 1),
	}, nil
}

// FetchChain discovers the nearest expiry and returns its option chain.
func (c *Client) FetchChain(ctx context.Context) (*models.OptionChain, error) {
	if !c.warmed {
		if err := c.warmUp(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize NSE session: %w", err)
		}
	}

	expiry, err := c.discoverExpiry(ctx)
	if errors.Is(err, ErrNoExpiry) {
		logger.Info("Retrying expiry discovery with a fresh session")
		if err := c.resetSession(ctx); err != nil {
			return nil, fmt.Errorf("failed to refresh NSE session: %w", err)
		}
		expiry, err = c.discoverExpiry(ctx)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Using expiry %s", expiry)

	q := url.Values{}
	q.Set("type", "Indices")
	q.Set("symbol", c.opts.Symbol)
	q.Set("expiry", expiry)
	payload, err := c.getJSON(ctx, chainV3Path, q)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Option chain for %s failed, falling back to all expiries: %v", expiry, err)
		payload, err = c.getJSON(ctx, chainIndicesPath, url.Values{"symbol": {c.opts.Symbol}})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch option chain: %w", err)
		}
	}

	obs, spot := parseChain(payload, expiry)
	if len(obs) == 0 {
		return nil, ErrEmptyChain
	}
	logger.Info("Parsed %d strikes (spot %.2f)", len(obs), spot)

	return &models.OptionChain{
		Symbol:       c.opts.Symbol,
		Expiry:       expiry,
		Spot:         spot,
		FetchedAt:    time.Now(),
		Observations: obs,
	}, nil
}

// discoverExpiry asks the contract-info endpoint first and then the
// all-expiries chain.
func (c *Client) discoverExpiry(ctx context.Context) (string, error) {
	sym := url.Values{"symbol": {c.opts.Symbol}}

	if payload, err := c.getJSON(ctx, contractInfoPath, sym); err == nil {
		if expiry := firstExpiry(payload); expiry != "" {
			return expiry, nil
		}
		logger.Warn("Contract info response carried no expiry dates")
	} else if ctx.Err() != nil {
		return "", ctx.Err()
	} else {
		logger.Warn("Contract info request failed: %v", err)
	}

	if payload, err := c.getJSON(ctx, chainIndicesPath, sym); err == nil {
		if expiry := payload.Get("records.expiryDates.0").String(); expiry != "" {
			return expiry, nil
		}
	} else if ctx.Err() != nil {
		return "", ctx.Err()
	} else {
		logger.Warn("Option chain expiry lookup failed: %v", err)
	}

	return "", ErrNoExpiry
}

func (c *Client) resetSession(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	c.httpClient.Jar = jar
	c.warmed = false
	return c.warmUp(ctx)
}

// warmUp visits the public pages that hand out the session cookies the API
// requires.
func (c *Client) warmUp(ctx context.Context) error {
	for i, path := range warmUpPaths {
		if i > 0 {
			if err := sleep(ctx, c.opts.WarmUpDelay); err != nil {
				return err
			}
		}
		req, err := c.newRequest(ctx, c.opts.BaseURL+path)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes)) //nolint:errcheck
		resp.Body.Close()
	}
	c.warmed = true
	logger.Debug("NSE session cookies obtained")
	return nil
}

// getJSON fetches path with retry. Forbidden responses refresh the session
// cookies, rate-limit responses wait an extra delay, and every other failure
// is retried after a jittered linear backoff.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	var lastErr error
	for attempt := 0; attempt < c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			jitter := 0.5 + rand.Float64()
			delay := time.Duration(float64(c.opts.RetryDelay) * (float64(attempt) + jitter))
			logger.Debug("Retry %d/%d for %s after %s", attempt+1, c.opts.MaxRetries, path, delay)
			if err := sleep(ctx, delay); err != nil {
				return gjson.Result{}, err
			}
		}

		result, retryable, err := c.getOnce(ctx, path, query)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return gjson.Result{}, ctx.Err()
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return gjson.Result{}, fmt.Errorf("failed to fetch %s after %d attempts: %w", path, c.opts.MaxRetries, lastErr)
}

func (c *Client) getOnce(ctx context.Context, path string, query url.Values) (gjson.Result, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, false, err
	}

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("_", strconv.FormatInt(time.Now().UnixMilli(), 10))

	req, err := c.newRequest(ctx, c.opts.BaseURL+path+"?"+q.Encode())
	if err != nil {
		return gjson.Result{}, false, err
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, true, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()
	if err != nil {
		return gjson.Result{}, true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusForbidden:
		logger.Warn("Access forbidden for %s, refreshing cookies", path)
		if err := c.warmUp(ctx); err != nil {
			logger.Warn("Cookie refresh failed: %v", err)
		}
		return gjson.Result{}, true, fmt.Errorf("forbidden: %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		logger.Warn("Rate limited on %s, waiting longer", path)
		if err := sleep(ctx, 2*c.opts.RetryDelay); err != nil {
			return gjson.Result{}, false, err
		}
		return gjson.Result{}, true, fmt.Errorf("rate limited: %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return gjson.Result{}, false, fmt.Errorf("not found: %d", resp.StatusCode)
	default:
		return gjson.Result{}, true, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, true, fmt.Errorf("invalid JSON response: %.100s", body)
	}
	result := gjson.ParseBytes(body)
	if isEmpty(result) {
		return gjson.Result{}, true, errors.New("empty JSON response")
	}
	return result, false, nil
}

func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("Referer", c.opts.BaseURL+"/option-chain")
	return req, nil
}

func isEmpty(r gjson.Result) bool {
	switch {
	case r.IsObject():
		return len(r.Map()) == 0
	case r.IsArray():
		return len(r.Array()) == 0
	}
	return !r.Exists() || r.Type == gjson.Null
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
