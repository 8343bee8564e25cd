package sources

import (
	"context"
	"fmt"

	"intake/internal/objstore"
)

// ── S3 Source ───────────────────────────────────────────────
// Streams an object body straight into the scanner.

type s3Source struct {
	store *objstore.Store
}

func (s *s3Source) Lines(ctx context.Context, location string) (<-chan string, <-chan error) {
	out := make(chan string, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		bucket, key, ok := objstore.ParseURL(location)
		if !ok || key == "" {
			errCh <- fmt.Errorf("invalid s3 location %q", location)
			return
		}
		body, err := s.store.Open(ctx, bucket, key)
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
