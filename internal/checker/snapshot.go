package checker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
)

const snapshotUserAgent = "secheckup/1.0 (+https://github.com/khanhnv2901/secheckup)"

// Page is what a single GET of the target returned.
type Page struct {
	RequestedURL string
	FinalURL     *url.URL
	StatusCode   int
	Header       http.Header
	Cookies      []*http.Cookie
	RawSetCookie []string
	Body         []byte
	TLS          *tls.ConnectionState
	// Redirects lists every URL visited before FinalURL.
	Redirects   []string
	ResponseMS  float64
	BodyTrimmed bool
}

// Fetcher creates per-run snapshots sharing one HTTP client.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a fetcher whose requests time out after timeout
// (DefaultProbeTimeout when zero) and whose connections obey policy.
func NewFetcher(timeout time.Duration, policy AddressPolicy) *Fetcher {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         policy.Dialer(timeout).DialContext,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS10},
		TLSHandshakeTimeout: timeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
	}
	if policy == PublicAddressesOnly {
		// A proxy would hide the real destination from the dialer.
		transport.Proxy = nil
	}
	return &Fetcher{client: &http.Client{Timeout: timeout, Transport: transport}}
}

// NewFetcherWithClient wraps an existing client (used by tests with
// httptest TLS servers).
func NewFetcherWithClient(client *http.Client) *Fetcher {
	return &Fetcher{client: client}
}

// Snapshot returns a lazily fetched, memoised view of target.
func (f *Fetcher) Snapshot(target *TargetInfo) *Snapshot {
	return &Snapshot{target: target, client: f.client}
}

// Snapshot shares one fetch of the target between every probe of a run.
// The caller's context bounds the fetch. A fetch cut short by that context
// is not remembered, so the next caller tries again within its own budget.
type Snapshot struct {
	target *TargetInfo
	client *http.Client

	mu      sync.Mutex
	fetched bool
	page    *Page
	err     error
}

// Fetch returns the page, performing the request on first use.
func (s *Snapshot) Fetch(ctx context.Context) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetched {
		return s.page, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := s.fetch(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, err
	}
	s.fetched = true
	s.page, s.err = page, err
	return page, err
}

func (s *Snapshot) fetch(ctx context.Context) (*Page, error) {
	page := &Page{RequestedURL: s.target.FullURL}

	client := *s.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= consts.MaxRedirects {
			return fmt.Errorf("stopped after %d redirects", consts.MaxRedirects)
		}
		page.Redirects = append(page.Redirects, via[len(via)-1].URL.String())
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.target.FullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", snapshotUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	page.ResponseMS = float64(time.Since(start).Microseconds()) / 1000

	page.FinalURL = resp.Request.URL
	page.StatusCode = resp.StatusCode
	page.Header = resp.Header.Clone()
	page.Cookies = resp.Cookies()
	page.RawSetCookie = append([]string(nil), resp.Header.Values("Set-Cookie")...)
	page.TLS = resp.TLS

	body, err := io.ReadAll(io.LimitReader(resp.Body, consts.BodyCaptureLimit+1))
	if err != nil && !errors.Is(err, context.Canceled) {
		// A partial body is still useful for script inventory.
		page.BodyTrimmed = true
	}
	if len(body) > consts.BodyCaptureLimit {
		body = body[:consts.BodyCaptureLimit]
		page.BodyTrimmed = true
	}
	page.Body = body
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, consts.BodyCaptureLimit))

	return page, nil
}
