// Package gcs implements the blob store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"scodata/internal/blob/core"
)

// Config configures the GCS driver.
type Config struct {
	Bucket       string
	EmulatorHost string // fake-gcs-server style endpoint; disables auth
	Credentials  string // JSON document or path to a key file
}

// ConfigFromEnv reads SCODATA_BLOB_GCS_BUCKET, STORAGE_EMULATOR_HOST and
// GOOGLE_APPLICATION_CREDENTIALS(_JSON).
func ConfigFromEnv() (Config, error) {
	bucket := strings.TrimSpace(os.Getenv("SCODATA_BLOB_GCS_BUCKET"))
	if bucket == "" {
		return Config{}, fmt.Errorf("SCODATA_BLOB_GCS_BUCKET required for gcs driver")
	}
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	return Config{
		Bucket:       bucket,
		EmulatorHost: strings.TrimRight(strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")), "/"),
		Credentials:  creds,
	}, nil
}

// Store implements core.Store on a single GCS bucket.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// New dials GCS.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket required")
	}
	var opts []option.ClientOption
	switch {
	case cfg.EmulatorHost != "":
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		opts = append(opts, option.WithoutAuthentication())
	case strings.HasPrefix(cfg.Credentials, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Credentials)))
	case cfg.Credentials != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials))
	}
	if cfg.EmulatorHost == "" {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client, bucket: client.Bucket(cfg.Bucket), name: cfg.Bucket}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Driver() core.Driver { return core.DriverGCS }

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	obj := s.bucket.Object(key)
	if !opts.Overwrite {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	w.ContentType = opts.ContentType
	if len(opts.Metadata) > 0 {
		w.Metadata = opts.Metadata
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return core.Info{}, fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 412 {
			return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrExists)
		}
		return core.Info{}, fmt.Errorf("close writer %s: %w", key, err)
	}
	return fromAttrs(w.Attrs()), nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	rc, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return core.Info{}, nil, notFound(key, err)
	}
	return info, rc, nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	attrs, err := s.bucket.Object(key).Attrs(ctx)
	if err != nil {
		return core.Info{}, notFound(key, err)
	}
	return fromAttrs(attrs), nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	err := s.bucket.Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var infos []core.Info
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		infos = append(infos, fromAttrs(attrs))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) PresignURL(ctx context.Context, key string, opts core.SignedURLOptions) (string, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = "GET"
	}
	if method != "GET" {
		return "", core.ErrUnsupported
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	u, err := s.bucket.SignedURL(key, &storage.SignedURLOptions{Method: method, Expires: time.Now().Add(expiry)})
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUnsupported, err)
	}
	return u, nil
}

func fromAttrs(a *storage.ObjectAttrs) core.Info {
	if a == nil {
		return core.Info{}
	}
	return core.Info{
		Key:          a.Name,
		Size:         a.Size,
		ContentType:  a.ContentType,
		ETag:         strings.Trim(a.Etag, "\""),
		Metadata:     a.Metadata,
		LastModified: a.Updated,
	}
}

func notFound(key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	return err
}
