// Package sources implements the line sources raw measurement files are
// fetched from: http(s) URLs, local files and S3 objects.
package sources

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"intake/internal/etl"
	"intake/internal/objstore"
)

// maxLineBytes bounds a single line; the scanner never buffers more.
const maxLineBytes = 1 << 20

// Options carry the clients the line sources use.
type Options struct {
	HTTPClient *http.Client
	// Store serves s3:// locations. The s3 scheme is left unregistered
	// when nil.
	Store *objstore.Store
}

// Register binds every available line source into reg.
func Register(reg *etl.Registry, opts Options) {
	h := newHTTPSource(opts.HTTPClient)
	reg.Register("http", h)
	reg.Register("https", h)
	reg.Register("file", &fileSource{})
	if opts.Store != nil {
		s := &s3Source{store: opts.Store}
		reg.Register("s3", s)
		reg.Register("s3a", s)
	}
}

// NewRegistry returns a registry with every available line source.
func NewRegistry(opts Options) *etl.Registry {
	reg := etl.NewRegistry()
	Register(reg, opts)
	return reg
}

// scanLines sends each line of r to out, in order. A trailing "\r" is
// stripped so CRLF files read the same as LF files.
func scanLines(ctx context.Context, r io.Reader, out chan<- string) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan lines: %w", err)
	}
	return nil
}
