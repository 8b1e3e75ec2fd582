// Package transport performs single HTTP exchanges for the extraction strategies.
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/law-makers/harvest/internal/fault"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

// MaxTimeout caps any per-request timeout
const MaxTimeout = 5 * time.Minute

// Request describes one HTTP exchange
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Form    url.Values
	Timeout time.Duration

	// RaiseForStatus turns any status >= 400 into a NON_SUCCESS_STATUS error
	RaiseForStatus bool
}

// Response is a fully read HTTP response
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
	URL     string
}

// Doer is what strategies need from a client
type Doer interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Options configures a Client
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Proxy     string
	Headers   map[string]string
}

// Client performs requests without retries; retry policy belongs to the caller.
// The base client carries no cookies. Use NewSession for cookie persistence.
type Client struct {
	http *resty.Client
	opts Options
}

// New creates a Client with no cookie jar
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{http: newResty(opts, nil), opts: opts}
}

func newResty(opts Options, jar http.CookieJar) *resty.Client {
	client := resty.New()
	client.SetCookieJar(jar)
	client.SetRetryCount(0)
	client.SetTimeout(MaxTimeout)
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}
	if opts.Proxy != "" {
		client.SetProxy(opts.Proxy)
	}
	return client
}

// SessionFactory is implemented by clients that can open cookie sessions
type SessionFactory interface {
	NewSession() (*Session, error)
}

// Session is a Client with its own cookie jar. Sessions are not shared between targets.
type Session struct {
	*Client
	jar http.CookieJar
}

// NewSession returns a client whose cookies persist across its requests
func (c *Client) NewSession() (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &Session{
		Client: &Client{http: newResty(c.opts, jar), opts: c.opts},
		jar:    jar,
	}, nil
}

// Cookies returns the cookies the session would send to rawURL
func (s *Session) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return s.jar.Cookies(u)
}

// Fetch performs one request and reads the whole body
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fault.Transport(fault.KindUnknown, "unsupported method "+method, nil)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := c.http.R().SetContext(ctx)
	for k, v := range req.Headers {
		r.SetHeader(k, v)
	}
	if req.Form != nil {
		r.SetFormDataFromValues(req.Form)
	}

	start := time.Now()
	resp, err := r.Execute(method, req.URL)
	if err != nil {
		log.Debug().
			Str("method", method).
			Str("url", req.URL).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("Request failed")
		return nil, classify(err, req.URL)
	}

	out := &Response{
		Status:  resp.StatusCode(),
		Headers: resp.Header(),
		Body:    resp.Body(),
		URL:     req.URL,
	}
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		out.URL = resp.RawResponse.Request.URL.String()
	}

	log.Debug().
		Str("method", method).
		Str("url", req.URL).
		Int("status", out.Status).
		Int("bytes", len(out.Body)).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")

	if req.RaiseForStatus && out.Status >= 400 {
		return out, fault.NonSuccess(out.Status, req.URL)
	}
	return out, nil
}

// Close releases idle connections
func (c *Client) Close() {
	c.http.GetClient().CloseIdleConnections()
}

func classify(err error, rawURL string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fault.Transport(fault.KindCanceled, "request to "+rawURL+" canceled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fault.Transport(fault.KindTimeout, "request to "+rawURL+" timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fault.Transport(fault.KindTimeout, "request to "+rawURL+" timed out", err)
	}
	return fault.Transport(fault.KindConnectionFailed, "request to "+rawURL+" failed", err)
}
