// Package blob downloads the uploaded source files of import jobs from
// object storage. The pipeline only reads blobs, never writes them.
package blob

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when no blob exists at the requested path.
var ErrNotFound = eris.New("blob not found")

// Store fetches the raw bytes stored at an opaque storage path.
type Store interface {
	Download(ctx context.Context, path string) ([]byte, error)
}

// Providers accepted by New.
const (
	ProviderLocal    = "local"
	ProviderSupabase = "supabase"
	ProviderFTP      = "ftp"
)

// Options selects and configures a Store implementation.
type Options struct {
	Provider string

	LocalRoot string

	SupabaseURL    string
	SupabaseBucket string
	SupabaseKey    string
	// SupabaseRate limits requests per second; 0 means unlimited.
	SupabaseRate float64

	FTPHost     string
	FTPUser     string
	FTPPassword string

	Timeout time.Duration
}

// New builds the Store named by opts.Provider.
func New(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", ProviderLocal:
		return NewLocalStore(opts.LocalRoot)
	case ProviderSupabase:
		return NewSupabaseStore(SupabaseOptions{
			BaseURL: opts.SupabaseURL,
			Bucket:  opts.SupabaseBucket,
			Key:     opts.SupabaseKey,
			Rate:    opts.SupabaseRate,
			Timeout: opts.Timeout,
		})
	case ProviderFTP:
		return NewFTPStore(FTPOptions{
			Host:     opts.FTPHost,
			User:     opts.FTPUser,
			Password: opts.FTPPassword,
			Timeout:  opts.Timeout,
		})
	default:
		return nil, eris.Errorf("blob: unknown provider %q (valid: local, supabase, ftp)", opts.Provider)
	}
}
