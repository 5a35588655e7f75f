package moysklad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultBaseURL is the JSON API 1.2 root.
const DefaultBaseURL = "https://api.moysklad.ru/api/remap/1.2"

const contentTypeJSON = "application/json;charset=utf-8"

// Config holds credentials and transport settings.
type Config struct {
	BaseURL  string
	Token    string
	Login    string
	Password string
	Timeout  time.Duration

	// HTTPClient is the transport to use; nil creates a default one.
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is the MoySklad REST client. Stock and counterparty group lookups
// go through their own RateGuards.
type Client struct {
	cfg  Config
	http *resty.Client
	log  *zap.Logger

	stockGuard       *RateGuard
	singleStockGuard *RateGuard
	groupGuard       *RateGuard
}

// Option customises a Client.
type Option func(*Client)

// WithStockGuard sets the guard for the batch stock report.
func WithStockGuard(g *RateGuard) Option { return func(c *Client) { c.stockGuard = g } }

// WithSingleStockGuard sets the guard for single-item stock lookups.
func WithSingleStockGuard(g *RateGuard) Option { return func(c *Client) { c.singleStockGuard = g } }

// WithGroupGuard sets the guard for counterparty group lookups.
func WithGroupGuard(g *RateGuard) Option { return func(c *Client) { c.groupGuard = g } }

// NewClient creates a client. Guards not supplied through options get the defaults
// (2s batch stock, 1s single stock, 1s groups; latch never resets).
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", contentTypeJSON).
		SetHeader("Accept", contentTypeJSON)

	c := &Client{
		cfg:  cfg,
		http: rc,
		log:  cfg.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.stockGuard == nil {
		c.stockGuard = NewRateGuard(DefaultGuardConfig("stock_batch", 2*time.Second))
	}
	if c.singleStockGuard == nil {
		c.singleStockGuard = NewRateGuard(DefaultGuardConfig("stock_single", time.Second))
	}
	if c.groupGuard == nil {
		c.groupGuard = NewRateGuard(DefaultGuardConfig("groups", time.Second))
	}
	return c
}

// BaseURL returns the API root used to build references.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// IsConfigured reports whether a token or a login/password pair is set.
func (c *Client) IsConfigured() bool {
	return c.cfg.Token != "" || (c.cfg.Login != "" && c.cfg.Password != "")
}

// ResetGuards closes every rate-limit latch.
func (c *Client) ResetGuards() {
	c.stockGuard.Reset()
	c.singleStockGuard.Reset()
	c.groupGuard.Reset()
}

// ==================== 请求核心 ====================

// Request performs an API call against path (relative to the base URL, may
// carry a query string). body is JSON-encoded for POST/PUT; out, when not
// nil, receives the decoded response.
func (c *Client) Request(ctx context.Context, method, path string, body, out interface{}) error {
	raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// do sends the request with bearer auth, retrying once with basic auth on 401.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	if !c.IsConfigured() {
		c.log.Error("[MoySklad] API not configured")
		return nil, ErrAPINotConfigured
	}

	useBasic := c.cfg.Token == ""
	for retried := false; ; retried = true {
		req := c.http.R().SetContext(ctx)
		if useBasic {
			if c.cfg.Login == "" || c.cfg.Password == "" {
				c.log.Error("[MoySklad] cannot retry request: no login/password for fallback")
				return nil, ErrAuthFailed
			}
			req.SetBasicAuth(c.cfg.Login, c.cfg.Password)
		} else {
			req.SetAuthToken(c.cfg.Token)
		}
		if body != nil && (method == http.MethodPost || method == http.MethodPut) {
			req.SetBody(body)
		}

		c.log.Debug("[MoySklad] request", zap.String("method", method), zap.String("path", path))
		resp, err := req.Execute(method, path)
		if err != nil {
			c.log.Error("[MoySklad] request failed", zap.String("path", path), zap.Error(err))
			return nil, fmt.Errorf("%s %s: %w", method, path, err)
		}

		if resp.StatusCode() == http.StatusUnauthorized && !retried && !useBasic {
			c.log.Info("[MoySklad] token rejected, falling back to login/password")
			useBasic = true
			continue
		}

		if resp.StatusCode() >= 400 {
			apiErr := decodeError(resp.StatusCode(), resp.Body())
			c.log.Error("[MoySklad] api error",
				zap.String("path", path),
				zap.Int("response_code", apiErr.StatusCode),
				zap.Int("error_code", apiErr.Code),
				zap.String("message", apiErr.Message),
			)
			return nil, apiErr
		}
		return resp.Body(), nil
	}
}

func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: body}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && len(eb.Errors) > 0 {
		first := eb.Errors[0]
		apiErr.Code = first.Code
		apiErr.MoreInfo = first.MoreInfo
		apiErr.Message = describe(first.Code, first.Error, first.MoreInfo)
		return apiErr
	}
	apiErr.Message = describe(0, "", "")
	return apiErr
}

// ==================== 文件下载 ====================

// Download fetches an absolute URL (e.g. an image downloadHref) with the same
// credentials as API calls.
func (c *Client) Download(ctx context.Context, href string) ([]byte, string, error) {
	if !c.IsConfigured() {
		return nil, "", ErrAPINotConfigured
	}
	send := func(basic bool) (*resty.Response, error) {
		req := c.http.R().SetContext(ctx).SetHeader("Accept", "*/*")
		if basic {
			req.SetBasicAuth(c.cfg.Login, c.cfg.Password)
		} else {
			req.SetAuthToken(c.cfg.Token)
		}
		return req.Get(href)
	}

	basic := c.cfg.Token == ""
	resp, err := send(basic)
	if err == nil && resp.StatusCode() == http.StatusUnauthorized && !basic {
		if c.cfg.Login == "" || c.cfg.Password == "" {
			return nil, "", ErrAuthFailed
		}
		resp, err = send(true)
	}
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", href, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, "", decodeError(resp.StatusCode(), resp.Body())
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// guarded runs call under g; a latched guard is reported as (false, nil).
func (c *Client) guarded(ctx context.Context, g *RateGuard, call func(ctx context.Context) error) (bool, error) {
	err := g.Execute(ctx, call)
	if errors.Is(err, ErrLimitLatched) {
		c.log.Warn("[MoySklad] rate limit latch open, returning empty result", zap.String("guard", g.cfg.Name))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
