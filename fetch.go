package patcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	DefaultFetchTimeout = 20 * time.Second
	DefaultUserAgent    = "xray-subscription-patcher"

	maxSubscriptionBytes = 5 * 1024 * 1024
)

// Fetcher downloads the raw body of a subscription.
type Fetcher interface {
	Fetch(ctx context.Context, addr string) (string, error)
}

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	log       *slog.Logger
}

func NewHTTPFetcher(timeout time.Duration, userAgent string, log *slog.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if len(userAgent) <= 0 {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		log:       log,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, addr string) (string, error) {
	f.log.Debug(fmt.Sprintf("Sending subscription request: %s", addr))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, addr, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetchFailed, addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSubscriptionBytes+1))
	if err != nil {
		return "", fmt.Errorf("%w: %s: read body: %w", ErrFetchFailed, addr, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s, status code: %d, body: %s", ErrFetchFailed, addr, resp.StatusCode, body)
	}
	if len(body) > maxSubscriptionBytes {
		return "", fmt.Errorf("%w: %s: response exceeds %d bytes", ErrFetchFailed, addr, maxSubscriptionBytes)
	}
	f.log.Debug(fmt.Sprintf("Got %d bytes from %s", len(body), addr))
	return string(body), nil
}
