package blob

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fin-import/internal/resilience"
)

// FTPOptions configures an FTPStore.
type FTPOptions struct {
	// Host is "host" or "host:port"; port 21 is assumed when absent.
	Host     string
	User     string
	Password string
	Timeout  time.Duration
	Retry    *resilience.RetryConfig
}

// FTPStore downloads blobs from an FTP server. Storage paths are either
// paths on the configured host or full ftp:// URLs.
type FTPStore struct {
	opts  FTPOptions
	retry resilience.RetryConfig
}

// NewFTPStore builds the store. Anonymous login is used when no user is set.
func NewFTPStore(opts FTPOptions) (*FTPStore, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User, opts.Password = "anonymous", "anonymous@"
	}
	retry := resilience.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	return &FTPStore{opts: opts, retry: retry}, nil
}

// target resolves a storage path to a dialable host and a remote path.
func (s *FTPStore) target(path string) (host, remote string, err error) {
	host, remote = s.opts.Host, path
	if strings.HasPrefix(path, "ftp://") {
		u, err := url.Parse(path)
		if err != nil {
			return "", "", eris.Wrap(err, "blob: parse ftp url")
		}
		host, remote = u.Host, u.Path
	}
	if host == "" {
		return "", "", eris.New("blob: ftp host is not configured")
	}
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	if strings.Trim(remote, "/ ") == "" {
		return "", "", eris.New("blob: empty path")
	}
	return host, remote, nil
}

// Download retrieves the file at path, retrying transient FTP failures.
func (s *FTPStore) Download(ctx context.Context, path string) ([]byte, error) {
	host, remote, err := s.target(path)
	if err != nil {
		return nil, err
	}
	cfg := s.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.LogRetries("ftp_download", zap.String("host", host), zap.String("path", remote))
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return s.retrieve(ctx, host, remote)
	})
}

func (s *FTPStore) retrieve(ctx context.Context, host, remote string) ([]byte, error) {
	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", remote))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "blob: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(s.opts.User, s.opts.Password); err != nil {
		return nil, eris.Wrap(err, "blob: ftp login")
	}

	resp, err := conn.Retr(remote)
	if err != nil {
		if isFTPNotFound(err) {
			return nil, eris.Wrapf(ErrNotFound, "blob: ftp %s", remote)
		}
		return nil, eris.Wrapf(err, "blob: ftp retrieve %s", remote)
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp, maxBlobSize+1))
	if err != nil {
		return nil, eris.Wrapf(err, "blob: ftp read %s", remote)
	}
	if len(data) > maxBlobSize {
		return nil, eris.Errorf("blob: ftp file %s exceeds %d bytes", remote, maxBlobSize)
	}
	return data, nil
}

// isFTPNotFound matches the 550 "file unavailable" reply.
func isFTPNotFound(err error) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable
}
