// Package objstore wraps the S3 operations the pipeline needs: streaming
// raw source objects, replacing a partition prefix and downloading a
// partition for the load step.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// Options configure the S3 session. Empty credentials fall back to the
// default AWS credential chain.
type Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// ErrBucketRoot is returned when a destructive call names no key prefix.
var ErrBucketRoot = errors.New("refusing to operate on a bucket root")

// Store is an S3-backed object store.
type Store struct {
	client     *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

// New creates a Store from opts.
func New(opts Options) (*Store, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg := &aws.Config{Region: aws.String(region)}
	if opts.Endpoint != "" {
		cfg.Endpoint = aws.String(opts.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if opts.AccessKeyID != "" {
		cfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, "")
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &Store{
		client:     s3.New(sess),
		uploader:   s3manager.NewUploader(sess),
		downloader: s3manager.NewDownloader(sess),
	}, nil
}

// ParseURL splits s3://bucket/key. ok is false for any other location.
func ParseURL(raw string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(raw, "s3://")
	if !found {
		rest, found = strings.CutPrefix(raw, "s3a://")
	}
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", false
	}
	return bucket, strings.TrimSuffix(key, "/"), true
}

// Open streams an object. The caller closes the body.
func (s *Store) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// List returns the keys below prefix, sorted.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	err := s.client.ListObjectsV2PagesWithContext(ctx,
		&s3.ListObjectsV2Input{Bucket: aws.String(bucket), Prefix: aws.String(dirPrefix(prefix))},
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				keys = append(keys, aws.StringValue(obj.Key))
			}
			return !lastPage
		})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// DeletePrefix removes every object below prefix. An empty prefix is
// rejected with ErrBucketRoot.
func (s *Store) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	if strings.Trim(prefix, "/") == "" {
		return fmt.Errorf("delete s3://%s: %w", bucket, ErrBucketRoot)
	}
	keys, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	// DeleteObjects accepts at most 1000 keys per call.
	for start := 0; start < len(keys); start += 1000 {
		end := min(start+1000, len(keys))
		ids := make([]*s3.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, &s3.ObjectIdentifier{Key: aws.String(k)})
		}
		_, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete s3://%s/%s: %w", bucket, prefix, err)
		}
	}
	return nil
}

// UploadDir uploads the regular files of dir (non-recursive) below prefix.
func (s *Store) UploadDir(ctx context.Context, dir, bucket, prefix string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := s.uploadFile(ctx, filepath.Join(dir, e.Name()), bucket, path.Join(prefix, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) uploadFile(ctx context.Context, name, bucket, key string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Download copies the objects below prefix whose key ends in suffix into
// dir and returns the local file paths in key order.
func (s *Store) Download(ctx context.Context, bucket, prefix, suffix, dir string) ([]string, error) {
	keys, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, k := range keys {
		if !strings.HasSuffix(k, suffix) {
			continue
		}
		local := filepath.Join(dir, path.Base(k))
		if err := s.downloadFile(ctx, bucket, k, local); err != nil {
			return nil, err
		}
		files = append(files, local)
	}
	return files, nil
}

func (s *Store) downloadFile(ctx context.Context, bucket, key, local string) error {
	f, err := os.Create(local)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.downloader.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func dirPrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, "/") {
		return prefix
	}
	return prefix + "/"
}
