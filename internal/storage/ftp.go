package storage

import (
	"context"
	"iter"
	"net"
	"net/url"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures FTPStorage.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPStorage lists and fetches ftp:// URIs with anonymous login.
type FTPStorage struct {
	opts FTPOptions
}

// NewFTPStorage creates an FTPStorage.
func NewFTPStorage(opts FTPOptions) *FTPStorage {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPStorage{opts: opts}
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, p string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "storage: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("storage: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	p = u.Path
	if p == "" {
		return "", "", eris.New("storage: empty path in ftp url")
	}
	return host, p, nil
}

func (s *FTPStorage) dial(ctx context.Context, host string) (*ftp.ServerConn, error) {
	zap.L().Debug("storage: ftp connecting", zap.String("host", host))
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "storage: ftp dial")
	}
	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		conn.Quit() //nolint:errcheck
		return nil, eris.Wrap(err, "storage: ftp login")
	}
	return conn, nil
}

// List yields the files of the directory named by prefix.
func (s *FTPStorage) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		host, dir, err := parseFTPURL(prefix)
		if err != nil {
			yield("", err)
			return
		}
		conn, err := s.dial(ctx, host)
		if err != nil {
			yield("", err)
			return
		}
		defer conn.Quit() //nolint:errcheck

		entries, err := conn.List(dir)
		if err != nil {
			yield("", eris.Wrapf(err, "storage: ftp list %s", dir))
			return
		}
		for _, e := range entries {
			if e.Type != ftp.EntryTypeFile {
				continue
			}
			if !yield("ftp://"+host+path.Join(dir, e.Name), nil) {
				return
			}
		}
	}
}

// Fetch downloads uri to localPath unless localPath already exists.
func (s *FTPStorage) Fetch(ctx context.Context, uri, dst string) error {
	if exists(dst) {
		return nil
	}
	host, p, err := parseFTPURL(uri)
	if err != nil {
		return err
	}
	conn, err := s.dial(ctx, host)
	if err != nil {
		return err
	}
	defer conn.Quit() //nolint:errcheck

	resp, err := conn.Retr(p)
	if err != nil {
		return eris.Wrap(err, "storage: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	_, err = writeLocal(dst, resp)
	return err
}
