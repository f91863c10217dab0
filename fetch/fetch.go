// Package fetch retrieves complete CRX container buffers over HTTP(S).
//
// Extraction needs random access across the whole container, so Fetch
// returns a fully buffered body rather than a stream. Fetch failures stay
// distinct from extraction failures: callers that persist the raw bytes can
// do so regardless of whether decoding later succeeds.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/opencontainers/go-digest"
)

const (
	// DefaultUserAgent is sent with every request unless overridden.
	DefaultUserAgent = "crx-fetch/1.0"

	// DefaultTimeout bounds a single download attempt.
	DefaultTimeout = 5 * time.Minute

	// DefaultRetries is the number of additional attempts after a transient
	// failure.
	DefaultRetries = 3

	// maxRedirects caps redirect chains; the Web Store answers with a
	// redirect to the versioned package URL.
	maxRedirects = 10
)

// Sentinel errors.
var (
	// ErrStatus is returned when the final response has a non-2xx status.
	ErrStatus = errors.New("fetch: unexpected status")

	// ErrDigestMismatch is returned when the downloaded bytes do not match
	// the expected digest.
	ErrDigestMismatch = errors.New("fetch: digest mismatch")
)

// Option configures a Fetch operation.
type Option func(*config)

type config struct {
	client    *http.Client
	headers   http.Header
	userAgent string
	retries   int
	backoff   time.Duration
	logger    *slog.Logger
	expect    digest.Digest
}

// WithClient sets the HTTP client used for requests.
// The default client follows up to 10 redirects and times out after
// DefaultTimeout.
func WithClient(client *http.Client) Option {
	return func(cfg *config) {
		cfg.client = client
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(cfg *config) {
		if cfg.headers == nil {
			cfg.headers = make(http.Header)
		}
		cfg.headers.Set(key, value)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cfg *config) {
		cfg.userAgent = ua
	}
}

// WithRetries sets the number of additional attempts after a transient
// failure. Negative values disable retries.
func WithRetries(n int) Option {
	return func(cfg *config) {
		cfg.retries = n
	}
}

// WithBackoff sets the base delay between attempts. The delay doubles after
// each failure.
func WithBackoff(d time.Duration) Option {
	return func(cfg *config) {
		cfg.backoff = d
	}
}

// WithLogger sets a logger for per-attempt debug events.
// If nil, events are discarded (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		cfg.logger = logger
	}
}

// WithExpectedDigest verifies the downloaded bytes against d before
// returning them. This checks transport integrity only; it is unrelated to
// the CRX signature block, which this module never verifies.
func WithExpectedDigest(d digest.Digest) Option {
	return func(cfg *config) {
		cfg.expect = d
	}
}

// Fetch downloads url and returns the complete body.
//
// Redirects are followed. Transport errors and 5xx responses are retried
// with exponential backoff; 4xx responses are not, since they are not
// transient. The context cancels both in-flight requests and backoff waits.
func Fetch(ctx context.Context, rawURL string, opts ...Option) ([]byte, error) {
	cfg := config{
		userAgent: DefaultUserAgent,
		retries:   DefaultRetries,
		backoff:   time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.client == nil {
		cfg.client = defaultClient()
	}
	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if cfg.retries < 0 {
		cfg.retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.retries; attempt++ {
		if attempt > 0 {
			delay := cfg.backoff << (attempt - 1)
			log.Debug("retrying download", "url", rawURL, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, retryable, err := fetchOnce(ctx, &cfg, rawURL)
		if err == nil {
			log.Debug("downloaded", "url", rawURL, "bytes", len(body))
			return verify(&cfg, body)
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

// fetchOnce performs a single GET attempt. The second return value reports
// whether the failure is worth retrying.
func fetchOnce(ctx context.Context, cfg *config, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	for key, values := range cfg.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", cfg.userAgent)
	}

	resp, err := cfg.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("GET %s: %s: %w", rawURL, resp.Status, ErrStatus)
		return nil, resp.StatusCode >= 500, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("GET %s: read body: %w", rawURL, err)
	}
	return body, false, nil
}

// verify checks the body against the expected digest, if one was set.
func verify(cfg *config, body []byte) ([]byte, error) {
	if cfg.expect == "" {
		return body, nil
	}
	if err := cfg.expect.Validate(); err != nil {
		return nil, fmt.Errorf("fetch: invalid expected digest: %w", err)
	}
	if got := cfg.expect.Algorithm().FromBytes(body); got != cfg.expect {
		return nil, fmt.Errorf("got %s, expected %s: %w", got, cfg.expect, ErrDigestMismatch)
	}
	return body, nil
}

func defaultClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("fetch: stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// storeProdVersion is the Chrome version advertised to the Web Store update
// endpoint; packages are served for any reasonably current value.
const storeProdVersion = "120.0.0.0"

// StoreURL builds the Chrome Web Store download URL for an extension ID.
func StoreURL(extensionID string) string {
	q := url.Values{}
	q.Set("response", "redirect")
	q.Set("acceptformat", "crx2,crx3")
	q.Set("prodversion", storeProdVersion)
	q.Set("x", "id="+extensionID+"&uc")
	return "https://clients2.google.com/service/update2/crx?" + q.Encode()
}
