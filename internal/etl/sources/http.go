package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"intake/internal/etl"
)

// ── HTTP Source ─────────────────────────────────────────────
// Streams a remote text file (e.g. NOAA GML trend CSVs) line by line.

const defaultHTTPTimeout = 2 * time.Minute

type httpSource struct {
	client *http.Client
}

func newHTTPSource(client *http.Client) *httpSource {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &httpSource{client: client}
}

func (s *httpSource) Lines(ctx context.Context, location string) (<-chan string, <-chan error) {
	out := make(chan string, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		body, err := s.open(ctx, location)
		if err != nil {
			errCh <- err
			return
		}
		defer body.Close()

		if err := scanLines(ctx, body, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (s *httpSource) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return resp.Body, nil
}

var _ etl.LineSource = (*httpSource)(nil)
