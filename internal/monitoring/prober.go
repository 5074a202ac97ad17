// internal/monitoring/prober.go
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HealthProber probes one domain. Implementations never fail: problems are
// reported through HealthCheckResult.Error.
type HealthProber interface {
	Check(ctx context.Context, domain string) HealthCheckResult
}

// Prober issues a HEAD request to https://{domain} and reads the leaf
// certificate from the same connection.
type Prober struct {
	client              *http.Client
	timeout             time.Duration
	assumedCertLifetime time.Duration
	now                 func() time.Time
}

type ProberOption func(*Prober)

// WithHTTPClient replaces the HTTP client. Its redirect policy is kept as-is.
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *Prober) { p.client = c }
}

// WithAssumedCertLifetime sets the expiry synthesized when a response
// carries no TLS state.
func WithAssumedCertLifetime(d time.Duration) ProberOption {
	return func(p *Prober) { p.assumedCertLifetime = d }
}

func WithProberClock(now func() time.Time) ProberOption {
	return func(p *Prober) { p.now = now }
}

func NewProber(timeout time.Duration, opts ...ProberOption) *Prober {
	p := &Prober{
		timeout:             timeout,
		assumedCertLifetime: 90 * 24 * time.Hour,
		now:                 time.Now,
		client: &http.Client{
			// Any response proves reachability, including a redirect.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Prober) Check(ctx context.Context, domain string) (result HealthCheckResult) {
	checkedAt := p.now()

	defer func() {
		if r := recover(); r != nil {
			result = failed(domain, checkedAt, fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+domain, nil)
	if err != nil {
		return failed(domain, checkedAt, err.Error())
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return failed(domain, checkedAt, p.describe(err))
	}
	resp.Body.Close()

	ms := elapsed.Milliseconds()
	status := resp.StatusCode
	result = HealthCheckResult{
		Domain:         domain,
		IsAccessible:   true,
		ResponseTimeMS: &ms,
		StatusCode:     &status,
		SSLValid:       true,
		CheckedAt:      checkedAt,
	}

	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		leaf := resp.TLS.PeerCertificates[0]
		expires := leaf.NotAfter
		result.SSLExpiresAt = &expires
		result.SSLValid = checkedAt.Before(leaf.NotAfter) && !checkedAt.Before(leaf.NotBefore)
	} else {
		expires := checkedAt.Add(p.assumedCertLifetime)
		result.SSLExpiresAt = &expires
	}

	return result
}

// describe strips the url.Error wrapper so the stored message is the cause.
func (p *Prober) describe(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("request timed out after %s", p.timeout)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		err = uerr.Err
	}
	return err.Error()
}
