package collaborator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/KlubJagiellonski/pola-facebook/internal/domain"
)

// HTTPFetcher implements domain.AttachmentFetcher by downloading the
// attachment URL.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: SharedHTTPClient(timeout)}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, att domain.Attachment) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build attachment request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch attachment: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
