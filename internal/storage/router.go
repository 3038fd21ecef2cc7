package storage

import (
	"context"
	"iter"
	"sync"

	"github.com/rotisserie/eris"
)

// Options configures the backends a Router builds on demand.
type Options struct {
	S3       S3Options
	HTTPRate int
}

// Router dispatches each URI to the backend for its scheme. The S3 client
// is created on first use so local-only runs never touch AWS config.
type Router struct {
	File *FileStorage
	HTTP *HTTPStorage
	FTP  *FTPStorage

	opts   Options
	s3Once sync.Once
	s3     *S3Storage
	s3Err  error
}

// NewRouter creates a Router with file, http and ftp backends ready.
func NewRouter(opts Options) *Router {
	return &Router{
		File: NewFileStorage(),
		HTTP: NewHTTPStorage(HTTPOptions{Rate: opts.HTTPRate}),
		FTP:  NewFTPStorage(FTPOptions{}),
		opts: opts,
	}
}

// WithS3 installs a ready S3 backend, bypassing lazy client creation.
func (r *Router) WithS3(s *S3Storage) *Router {
	r.s3Once.Do(func() {})
	r.s3 = s
	return r
}

func (r *Router) s3Backend(ctx context.Context) (*S3Storage, error) {
	r.s3Once.Do(func() {
		client, err := NewS3Client(ctx, r.opts.S3)
		if err != nil {
			r.s3Err = err
			return
		}
		r.s3 = NewS3Storage(client)
	})
	return r.s3, r.s3Err
}

// Open returns the backend that serves uri.
func (r *Router) Open(ctx context.Context, uri string) (Storage, error) {
	switch Scheme(uri) {
	case "file":
		return r.File, nil
	case "s3":
		return r.s3Backend(ctx)
	case "http", "https":
		return r.HTTP, nil
	case "ftp":
		return r.FTP, nil
	default:
		return nil, eris.Wrapf(ErrUnsupportedScheme, "storage: %s", uri)
	}
}

// List dispatches on the prefix scheme.
func (r *Router) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	s, err := r.Open(ctx, prefix)
	if err != nil {
		return func(yield func(string, error) bool) { yield("", err) }
	}
	return s.List(ctx, prefix)
}

// Fetch dispatches on the uri scheme.
func (r *Router) Fetch(ctx context.Context, uri, localPath string) error {
	s, err := r.Open(ctx, uri)
	if err != nil {
		return err
	}
	return s.Fetch(ctx, uri, localPath)
}

// Put uploads to s3:// or copies to a local path.
func (r *Router) Put(ctx context.Context, localPath, uri, contentType string) error {
	switch Scheme(uri) {
	case "s3":
		s, err := r.s3Backend(ctx)
		if err != nil {
			return err
		}
		return s.Put(ctx, localPath, uri, contentType)
	case "file":
		return r.File.Put(ctx, localPath, uri, contentType)
	default:
		return eris.Wrapf(ErrUnsupportedScheme, "storage: cannot upload to %s", uri)
	}
}
