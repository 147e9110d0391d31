package imagecache

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
)

// ErrTooLarge is returned for image bodies above the size limit.
var ErrTooLarge = errors.New("image too large")

// HTTPFetcher downloads images with GET.
type HTTPFetcher struct {
	client  *http.Client
	maxSize int64
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher that rejects bodies larger than maxSize.
func NewHTTPFetcher(client *http.Client, maxSize int64) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxCost
	}
	return &HTTPFetcher{client: client, maxSize: maxSize}
}

func (f *HTTPFetcher) FetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if int64(len(data)) > f.maxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
