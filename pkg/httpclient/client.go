package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"alert-dispatch/pkg/ratelimit"
)

// ErrPoolTimeout is returned when no connection slot frees up within the
// acquire timeout.
var ErrPoolTimeout = errors.New("timed out waiting for a pooled connection")

const defaultCharset = "utf-8"

// Config contains the process-wide connection pool settings
type Config struct {
	MaxTotal       int           `yaml:"max_total" env:"MAX_TOTAL"`
	MaxPerRoute    int           `yaml:"max_per_route" env:"MAX_PER_ROUTE"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" env:"ACQUIRE_TIMEOUT"`
	SocketTimeout  time.Duration `yaml:"socket_timeout" env:"SOCKET_TIMEOUT"`
	QPS            int           `yaml:"qps" env:"QPS"`
}

// DefaultConfig returns the default pool settings
func DefaultConfig() Config {
	return Config{
		MaxTotal:       50,
		MaxPerRoute:    50,
		ConnectTimeout: 120 * time.Second,
		AcquireTimeout: 10 * time.Second,
		SocketTimeout:  300 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxTotal <= 0 {
		c.MaxTotal = def.MaxTotal
	}
	if c.MaxPerRoute <= 0 {
		c.MaxPerRoute = def.MaxPerRoute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = def.AcquireTimeout
	}
	if c.SocketTimeout <= 0 {
		c.SocketTimeout = def.SocketTimeout
	}
	return c
}

// Header is a single request header
type Header struct {
	Name  string
	Value string
}

// Param is a single form parameter
type Param struct {
	Name  string
	Value string
}

// Request describes one outbound call.
// When Form is set it is url-encoded and takes precedence over Body.
type Request struct {
	Method  string
	URL     string
	Headers []Header
	Form    []Param
	Body    []byte
	Charset string
}

// Response is the result of a call. Non-200 status codes are not errors.
type Response struct {
	StatusCode int
	Body       string
	Location   string
}

// OK reports whether the response status is 200
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Client is a pooled HTTP client shared by the whole process.
// It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	noRedirect *http.Client
	slots      *semaphore.Weighted
	limiter    *ratelimit.Limiter
}

// New creates a pooled client
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxTotal,
		MaxIdleConnsPerHost:   cfg.MaxPerRoute,
		MaxConnsPerHost:       cfg.MaxPerRoute,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.SocketTimeout,
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.SocketTimeout,
		},
		noRedirect: &http.Client{
			Transport: transport,
			Timeout:   cfg.SocketTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		slots:   semaphore.NewWeighted(int64(cfg.MaxTotal)),
		limiter: ratelimit.NewLimiter(cfg.QPS),
	}
}

// Config returns the effective pool settings
func (c *Client) Config() Config {
	return c.cfg
}

// Do performs the request, following redirects
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	return c.do(ctx, c.httpClient, req)
}

// DoNoRedirect performs the request without following redirects.
// For 301 and 302 responses Location holds the redirect target.
func (c *Client) DoNoRedirect(ctx context.Context, req Request) (*Response, error) {
	return c.do(ctx, c.noRedirect, req)
}

// Get is a shorthand for a GET request with headers
func (c *Client) Get(ctx context.Context, rawURL string, headers ...Header) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Headers: headers})
}

// PostJSON posts body with a JSON content type
func (c *Client) PostJSON(ctx context.Context, rawURL string, body []byte, headers ...Header) (*Response, error) {
	headers = append([]Header{{Name: "Content-Type", Value: "application/json; charset=utf-8"}}, headers...)
	return c.Do(ctx, Request{Method: http.MethodPost, URL: rawURL, Body: body, Headers: headers})
}

func (c *Client) do(ctx context.Context, hc *http.Client, req Request) (*Response, error) {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", httpReq.Method, req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", req.URL, err)
	}

	out := &Response{StatusCode: resp.StatusCode, Body: string(body)}
	if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound {
		out.Location = resp.Header.Get("Location")
	}
	return out, nil
}

func (c *Client) acquire(ctx context.Context) (func(), error) {
	acquireCtx, cancel := context.WithTimeout(ctx, c.cfg.AcquireTimeout)
	defer cancel()

	if err := c.slots.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrPoolTimeout
	}
	return func() { c.slots.Release(1) }, nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost && method != http.MethodPut {
		return nil, fmt.Errorf("unsupported method: %s", req.Method)
	}

	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", req.URL, err)
	}

	charset := req.Charset
	if charset == "" {
		charset = defaultCharset
	}

	var body io.Reader
	contentType := ""
	switch {
	case len(req.Form) > 0:
		body = strings.NewReader(encodeForm(req.Form))
		contentType = "application/x-www-form-urlencoded; charset=" + charset
	case len(req.Body) > 0:
		body = bytes.NewReader(req.Body)
		contentType = "text/plain; charset=" + charset
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for _, h := range req.Headers {
		if http.CanonicalHeaderKey(h.Name) == "Content-Type" {
			httpReq.Header.Set(h.Name, h.Value)
			continue
		}
		httpReq.Header.Add(h.Name, h.Value)
	}

	return httpReq, nil
}

// encodeForm url-encodes params keeping their order
func encodeForm(params []Param) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}
