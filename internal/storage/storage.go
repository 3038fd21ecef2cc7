// Package storage lists and fetches objects from local directories, S3
// buckets, HTTP servers and FTP servers behind one URI-addressed interface.
package storage

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnsupportedScheme is returned when a URI names a scheme with no backend.
var ErrUnsupportedScheme = errors.New("storage: unsupported scheme")

// Storage lists objects under a prefix and fetches single objects to disk.
//
// List is lazy and restartable: every range over the returned sequence
// issues a fresh listing. Fetch is a no-op when localPath already exists.
type Storage interface {
	List(ctx context.Context, prefix string) iter.Seq2[string, error]
	Fetch(ctx context.Context, uri, localPath string) error
}

// Uploader writes a local file to a remote location.
type Uploader interface {
	Put(ctx context.Context, localPath, uri, contentType string) error
}

// Scheme returns the lower-cased URI scheme, or "file" for bare paths.
func Scheme(uri string) string {
	i := strings.Index(uri, "://")
	if i <= 0 {
		return "file"
	}
	return strings.ToLower(uri[:i])
}

// SplitS3URI splits s3://bucket/key into bucket and key.
func SplitS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", eris.Wrap(err, "storage: parse s3 uri")
	}
	if u.Scheme != "s3" {
		return "", "", eris.Errorf("storage: expected s3 scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", "", eris.Errorf("storage: missing bucket in %q", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// HTTPSToS3 rewrites a virtual-hosted S3 URL
// (https://bucket.s3.amazonaws.com/key) into s3://bucket/key.
func HTTPSToS3(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "storage: parse https uri")
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", eris.Errorf("storage: expected http(s) scheme, got %q", u.Scheme)
	}
	bucket, _, _ := strings.Cut(u.Hostname(), ".")
	if bucket == "" {
		return "", eris.Errorf("storage: missing bucket host in %q", rawURL)
	}
	return "s3://" + bucket + u.Path, nil
}

// JoinURI appends path elements to a URI or local path with single slashes.
func JoinURI(base string, elem ...string) string {
	if Scheme(base) == "file" && !strings.HasPrefix(base, "file://") {
		return filepath.Join(append([]string{base}, elem...)...)
	}
	out := strings.TrimRight(base, "/")
	for _, e := range elem {
		e = strings.Trim(e, "/")
		if e == "" {
			continue
		}
		out += "/" + e
	}
	return out
}

// exists reports whether a local path is already present.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeLocal streams r into localPath through a temp file in the same
// directory so a failed copy never leaves a partial object behind.
func writeLocal(localPath string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, eris.Wrap(err, "storage: create parent directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".fetch-*")
	if err != nil {
		return 0, eris.Wrap(err, "storage: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return n, eris.Wrap(err, "storage: write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "storage: close temp file")
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		return n, eris.Wrap(err, "storage: rename temp file")
	}
	return n, nil
}

// Any reports whether at least one object exists under prefix.
func Any(ctx context.Context, s Storage, prefix string) (bool, error) {
	for _, err := range s.List(ctx, prefix) {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Collect drains a listing into a slice, stopping at the first error.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var out []string
	for uri, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, uri)
	}
	return out, nil
}

// Limit truncates a listing to at most n URIs. n <= 0 means unlimited.
func Limit(seq iter.Seq2[string, error], n int) iter.Seq2[string, error] {
	if n <= 0 {
		return seq
	}
	return func(yield func(string, error) bool) {
		count := 0
		for uri, err := range seq {
			if !yield(uri, err) || err != nil {
				return
			}
			count++
			if count >= n {
				return
			}
		}
	}
}
