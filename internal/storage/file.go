package storage

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FileStorage serves local paths. file:// URIs and bare paths are accepted.
type FileStorage struct{}

// NewFileStorage creates a FileStorage.
func NewFileStorage() *FileStorage {
	return &FileStorage{}
}

func localPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// List yields every regular file below the directory prefix in lexical order.
func (s *FileStorage) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		root := localPath(prefix)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !yield(path, nil) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield("", eris.Wrapf(err, "storage: list %s", root))
		}
	}
}

// Fetch copies uri to localPath unless localPath already exists.
func (s *FileStorage) Fetch(ctx context.Context, uri, dst string) error {
	if exists(dst) {
		return nil
	}
	src, err := os.Open(localPath(uri))
	if err != nil {
		return eris.Wrapf(err, "storage: open %s", uri)
	}
	defer src.Close() //nolint:errcheck

	n, err := writeLocal(dst, src)
	if err != nil {
		return err
	}
	zap.L().Debug("storage: copied file", zap.String("src", uri), zap.String("dst", dst), zap.Int64("bytes", n))
	return nil
}

// Put copies a local file to another local path, overwriting it.
func (s *FileStorage) Put(_ context.Context, src, uri, _ string) error {
	f, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "storage: open %s", src)
	}
	defer f.Close() //nolint:errcheck

	_, err = writeLocal(localPath(uri), f)
	return err
}
