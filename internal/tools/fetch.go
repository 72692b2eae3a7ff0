package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
)

const (
	// DefaultHTTPTimeout bounds a single script download attempt.
	DefaultHTTPTimeout = 60 * time.Second

	maxScriptBytes = 16 << 20
	userAgent      = "toolpin/1.0"
)

// errRejected marks responses that retrying cannot fix.
var errRejected = errors.New("request rejected")

// Fetcher retrieves install script content.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads over HTTP(S) with exponential-backoff retries.
type HTTPFetcher struct {
	client  *http.Client
	retrier retry.Retry[[]byte]
}

// NewHTTPFetcher builds a fetcher with a per-attempt timeout. Attempts below
// one default to three.
func NewHTTPFetcher(timeout time.Duration, attempts int) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	if attempts <= 0 {
		attempts = 3
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		retrier: retry.New[[]byte](retry.Config{
			MaxAttempts:        attempts,
			InitialDelay:       500 * time.Millisecond,
			BackoffPolicy:      retry.BackoffExponential,
			Multiplier:         2.0,
			NonRetryableErrors: []error{errRejected},
		}),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.retrier.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, url)
	})
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("download %s: unexpected status %s: %w", url, resp.Status, errRejected)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(body) > maxScriptBytes {
		return nil, fmt.Errorf("download %s: script larger than %d bytes: %w", url, maxScriptBytes, errRejected)
	}
	return body, nil
}

func verifyChecksum(content []byte, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return nil
	}
	sum := sha256.Sum256(content)
	if got := hex.EncodeToString(sum[:]); got != expected {
		return fmt.Errorf("checksum mismatch: got %s, want %s", got, expected)
	}
	return nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
