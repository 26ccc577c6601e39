package tiktok

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FetchSubtitle downloads a subtitle payload. The request gets its own
// deadline so a stalled CDN cannot hold up the caller longer than timeout.
func (s *Scraper) FetchSubtitle(ctx context.Context, subtitleURL string, timeout time.Duration) (string, error) {
	if subtitleURL == "" {
		return "", fmt.Errorf("%w: empty url", ErrNoSubtitle)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := s.doRequest(ctx, http.MethodGet, subtitleURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoSubtitle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrNoSubtitle, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read: %v", ErrNoSubtitle, err)
	}
	return string(body), nil
}
