package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/fin-import/internal/resilience"
)

// maxBlobSize bounds a single downloaded upload.
const maxBlobSize = 64 << 20

// SupabaseOptions configures a SupabaseStore.
type SupabaseOptions struct {
	BaseURL string
	Bucket  string
	// Key is the service-role key sent as apikey and bearer token.
	Key     string
	Rate    float64
	Timeout time.Duration
	Retry   *resilience.RetryConfig
	Client  *http.Client
}

// SupabaseStore downloads objects through the Supabase Storage REST API.
type SupabaseStore struct {
	baseURL string
	bucket  string
	key     string
	client  *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewSupabaseStore validates opts and builds the store.
func NewSupabaseStore(opts SupabaseOptions) (*SupabaseStore, error) {
	if opts.BaseURL == "" || opts.Bucket == "" || opts.Key == "" {
		return nil, eris.New("blob: supabase url, bucket and key are required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Inf
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
	}
	retry := resilience.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	return &SupabaseStore{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		bucket:  opts.Bucket,
		key:     opts.Key,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
	}, nil
}

// objectURL builds GET /storage/v1/object/{bucket}/{path}, escaping each path segment.
func (s *SupabaseStore) objectURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), strings.Join(segments, "/"))
}

// Download fetches the object at path, retrying transient failures.
func (s *SupabaseStore) Download(ctx context.Context, path string) ([]byte, error) {
	if strings.Trim(path, "/ ") == "" {
		return nil, eris.New("blob: empty path")
	}
	cfg := s.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.LogRetries("supabase_download", zap.String("path", path))
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		return s.get(ctx, path)
	})
}

func (s *SupabaseStore) get(ctx context.Context, path string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "blob: supabase rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.objectURL(path), nil)
	if err != nil {
		return nil, eris.Wrap(err, "blob: supabase build request")
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: supabase get %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize+1))
		if err != nil {
			return nil, eris.Wrapf(err, "blob: supabase read %s", path)
		}
		if len(data) > maxBlobSize {
			return nil, eris.Errorf("blob: supabase object %s exceeds %d bytes", path, maxBlobSize)
		}
		return data, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(body))
	switch {
	case isSupabaseNotFound(resp.StatusCode, msg):
		return nil, eris.Wrapf(ErrNotFound, "blob: supabase %s", path)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("blob: supabase get %s: status %d: %s", path, resp.StatusCode, msg), resp.StatusCode)
	default:
		return nil, eris.Errorf("blob: supabase get %s: status %d: %s", path, resp.StatusCode, msg)
	}
}

// isSupabaseNotFound recognises both a plain 404 and the 400 "not_found"
// payload Storage returns for missing objects.
func isSupabaseNotFound(status int, body string) bool {
	if status == http.StatusNotFound {
		return true
	}
	lower := strings.ToLower(body)
	return status == http.StatusBadRequest && (strings.Contains(lower, "not_found") || strings.Contains(lower, "object not found"))
}
