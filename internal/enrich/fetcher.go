// Package enrich resolves a promo candidate's product page into canonical
// metadata (title, description, image, canonical URL) and gates
// low-confidence image attachment with a title-match score.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ldelaire/dealsniper/internal/logger"
)

// maxRetryDelay caps the exponential backoff between retries.
const maxRetryDelay = 8 * time.Second

// Fetcher retrieves remote pages with a bounded timeout and bounded retries
// with exponential backoff on retryable status classes (429, 5xx).
type Fetcher struct {
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
	userAgent      string
}

// NewFetcher creates a Fetcher.
func NewFetcher(timeout time.Duration, maxRetries int, retryDelayBase time.Duration, userAgent string) *Fetcher {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = 400 * time.Millisecond
	}
	return &Fetcher{
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		userAgent:      userAgent,
	}
}

// Get fetches a URL and returns the final status code and body text.
// Transport errors and retryable statuses are retried with exponential
// backoff; non-retryable statuses are returned to the caller as-is so it
// can degrade gracefully.
func (f *Fetcher) Get(ctx context.Context, url string) (int, string, error) {
	var lastErr error
	delay := f.retryDelayBase

	for attempt := 0; attempt < f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return 0, "", fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Debug("fetch: attempt %d for %s failed: %v", attempt+1, url, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("retryable status %d", resp.StatusCode)
			logger.Debug("fetch: attempt %d for %s got status %d", attempt+1, url, resp.StatusCode)
			continue
		}
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read body: %w", readErr)
			continue
		}

		return resp.StatusCode, string(body), nil
	}

	return 0, "", fmt.Errorf("max retries exceeded for %s: %w", url, lastErr)
}

// addToCartMarker is the storefront's add-to-cart button element ID; its
// presence on a product page means the article can still be ordered.
const addToCartMarker = `id="product-addtocart-button"`

// CheckAvailability reports whether the product page still offers the
// article for sale.
func (f *Fetcher) CheckAvailability(ctx context.Context, url string) (bool, error) {
	status, body, err := f.Get(ctx, url)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, nil
	}
	return strings.Contains(body, addToCartMarker), nil
}
