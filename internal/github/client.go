// Package github implements hosting.Gateway against the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"folio/api/internal/hosting"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Gateway talks to a single owner/repo pair.
type Gateway struct {
	gh        *gh.Client
	owner     string
	repo      string
	limiter   *Limiter
	protected hosting.ProtectedSet
}

var _ hosting.Gateway = (*Gateway)(nil)

type options struct {
	baseURL   string
	rate      rate.Limit
	burst     int
	protected []string
	verbose   io.Writer
	transport http.RoundTripper
}

type Option func(*options)

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithRate overrides the proactive request rate.
func WithRate(r rate.Limit, burst int) Option {
	return func(o *options) {
		o.rate = r
		o.burst = burst
	}
}

// WithProtected marks branches as protected in addition to what GitHub reports.
func WithProtected(names ...string) Option {
	return func(o *options) { o.protected = append(o.protected, names...) }
}

// WithVerbose logs every request and response line to w.
func WithVerbose(w io.Writer) Option {
	return func(o *options) { o.verbose = w }
}

// WithTransport replaces the base HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// loggingRoundTripper emits one line per request and one per response.
type loggingRoundTripper struct {
	base http.RoundTripper
	w    io.Writer
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	_, _ = fmt.Fprintf(t.w, "github api: %s %s\n", req.Method, req.URL.String())
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		_, _ = fmt.Fprintf(t.w, "github api: error after %s: %v\n", dur, err)
	} else {
		_, _ = fmt.Fprintf(t.w, "github api: %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), dur)
	}
	return resp, err
}

// NewGateway builds a gateway for owner/repo authenticated with token.
func NewGateway(token, owner, repo string, opts ...Option) (*Gateway, error) {
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(repo) == "" {
		return nil, fmt.Errorf("github gateway: owner and repo are required")
	}

	o := &options{rate: rate.Limit(DefaultRate), burst: DefaultBurst}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}

	transport := o.transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if o.verbose != nil {
		transport = &loggingRoundTripper{base: transport, w: o.verbose}
	}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}
	client := gh.NewClient(&http.Client{Transport: transport, Timeout: DefaultTimeout})

	if o.baseURL != "" {
		base := o.baseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github gateway: parse base url: %w", err)
		}
		client.BaseURL = parsed
	}

	return &Gateway{
		gh:        client,
		owner:     owner,
		repo:      repo,
		limiter:   NewLimiter(o.rate, o.burst),
		protected: hosting.NewProtectedSet(o.protected...),
	}, nil
}

// Ping checks that the repository is reachable with the configured token.
func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	_, resp, err := g.gh.Repositories.Get(ctx, g.owner, g.repo)
	g.track(resp)
	if err != nil {
		return g.wrapError(err, "get repository")
	}
	return nil
}

func (g *Gateway) track(resp *gh.Response) {
	if resp == nil || resp.Response == nil {
		return
	}
	g.limiter.Update(resp.Response)
}

// wrapError converts go-github errors to APIError and RateLimitError.
func (g *Gateway) wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		snapshot := g.limiter.snapshot()
		return &snapshot
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		snapshot := g.limiter.snapshot()
		if abuseErr.RetryAfter != nil {
			snapshot.ResetAt = time.Now().Add(*abuseErr.RetryAfter)
		}
		return &snapshot
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{
			StatusCode: ghErr.Response.StatusCode,
			Message:    ghErr.Message,
		}
		if ghErr.Response.Request != nil && ghErr.Response.Request.URL != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		if apiErr.StatusCode >= 500 {
			log.Printf("github %s failed: %v", operation, apiErr)
		}
		return apiErr
	}

	log.Printf("github %s failed: %v", operation, err)
	return fmt.Errorf("%s: %w: %v", operation, hosting.ErrUnavailable, err)
}
