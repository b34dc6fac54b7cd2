package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cryptchat/internal/common"
	"github.com/sethvargo/go-retry"
)

// MaxBlobSize caps how much a single fetch may read.
const MaxBlobSize = 32 << 20

var errTooLarge = errors.New("blob exceeds size limit")

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
}

// HTTPFetcher downloads blobs referenced by plain URLs, retrying transient
// failures.
type HTTPFetcher struct {
	client  *http.Client
	backoff func() retry.Backoff
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		backoff: defaultBackoff,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, f.backoff(), func(ctx context.Context) error {
		b, err := f.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %w", url, common.ErrNotFound)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, retry.RetryableError(fmt.Errorf("GET %s: status %d", url, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	return readLimited(resp.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, MaxBlobSize+1))
	if err != nil {
		return nil, err
	}
	if len(b) > MaxBlobSize {
		return nil, errTooLarge
	}
	return b, nil
}
