package sources

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ── File Source ─────────────────────────────────────────────
// Reads a local file; accepts plain paths and file:// URLs.

type fileSource struct{}

func (s *fileSource) Lines(ctx context.Context, location string) (<-chan string, <-chan error) {
	out := make(chan string, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(LocalPath(location))
		if err != nil {
			errCh <- fmt.Errorf("open file: %w", err)
			return
		}
		defer f.Close()

		if err := scanLines(ctx, f, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// LocalPath strips a file:// prefix from location.
func LocalPath(location string) string {
	return strings.TrimPrefix(location, "file://")
}
