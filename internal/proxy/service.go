// Package proxy fetches chat media through the upstream file API and serves
// it over HTTP, absorbing upstream throttling and flakiness so album pages
// always render.
package proxy

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/albumforge/albumforge/internal/metrics"
	"github.com/albumforge/albumforge/pkg/logger"
)

// videoSizeThreshold is the size above which unidentified media is assumed to
// be video rather than a still image.
const videoSizeThreshold = 1 << 20

// Config tunes the media proxy.
type Config struct {
	UpstreamBaseURL     string
	UpstreamFileBaseURL string
	RatePermits         int
	RateWindow          time.Duration
	ResolveCacheTTL     time.Duration
	Retry               RetryConfig
}

// Service is the resilient media proxy.
type Service struct {
	resolver *Resolver
	client   *http.Client
	limiter  *WindowLimiter
	retry    RetryConfig
	log      *logger.Logger
}

// New creates the proxy. A nil client falls back to SharedClient; a nil cache
// falls back to the in-process one.
func New(cfg Config, client *http.Client, cache ResolveCache, log *logger.Logger) *Service {
	if client == nil {
		client = SharedClient()
	}
	if cache == nil {
		cache = NewMemoryCache(cfg.ResolveCacheTTL)
	}
	if log == nil {
		log = logger.NewDefault("proxy")
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	limiter := NewWindowLimiter(cfg.RatePermits, cfg.RateWindow)
	return &Service{
		resolver: NewResolver(cfg.UpstreamBaseURL, cfg.UpstreamFileBaseURL, client, cache, limiter, cfg.Retry, log),
		client:   client,
		limiter:  limiter,
		retry:    cfg.Retry,
		log:      log,
	}
}

// FetchAndServe resolves and downloads the referenced media. It always
// returns something renderable: when the reference is unknown or every retry
// is exhausted, the caller gets the placeholder image instead of an error.
func (s *Service) FetchAndServe(ctx context.Context, reference string) ([]byte, string) {
	start := time.Now()

	mediaURL, err := s.resolver.Resolve(ctx, reference)
	if err != nil {
		s.log.WithError(err).WithField("reference", reference).Warn("serving placeholder, resolution failed")
		metrics.RecordProxyFetch("placeholder", time.Since(start))
		return Placeholder(), "image/png"
	}

	data, contentType, err := s.fetch(ctx, mediaURL)
	if err != nil {
		s.log.WithError(err).WithField("reference", reference).Warn("serving placeholder, fetch failed")
		metrics.RecordProxyFetch("placeholder", time.Since(start))
		return Placeholder(), "image/png"
	}

	metrics.RecordProxyFetch("ok", time.Since(start))
	return data, contentType
}

func (s *Service) fetch(ctx context.Context, mediaURL string) ([]byte, string, error) {
	var (
		lastErr error
		hint    time.Duration
	)
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := s.retry.Backoff(attempt-1, hint)
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		if !s.limiter.Take() {
			metrics.RecordRateOverrun()
			s.log.WithField("url", mediaURL).Debug("fetch exceeds advisory rate window")
		}

		data, contentType, retryAfter, err := s.fetchOnce(ctx, mediaURL)
		if err == nil {
			return data, contentType, nil
		}
		if !isRetryableFetch(err) {
			return nil, "", err
		}
		lastErr = err
		hint = retryAfter
	}
	return nil, "", lastErr
}

func (s *Service) fetchOnce(ctx context.Context, mediaURL string) ([]byte, string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", 0, &fetchError{cause: err, retryable: true}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", 0, &fetchError{cause: err, retryable: true}
		}
		return data, sniffContentType(resp.Header.Get("Content-Type"), mediaURL, len(data)), 0, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, "", retryAfter, &fetchError{status: resp.StatusCode, retryable: true}
	case resp.StatusCode >= 500:
		return nil, "", 0, &fetchError{status: resp.StatusCode, retryable: true}
	default:
		return nil, "", 0, &fetchError{status: resp.StatusCode}
	}
}

type fetchError struct {
	status    int
	cause     error
	retryable bool
}

func (e *fetchError) Error() string {
	if e.cause != nil {
		return "fetch: " + e.cause.Error()
	}
	return "fetch: upstream status " + strconv.Itoa(e.status)
}

func (e *fetchError) Unwrap() error { return e.cause }

func isRetryableFetch(err error) bool {
	fe, ok := err.(*fetchError)
	return ok && fe.retryable
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// sniffContentType picks a content type for fetched media. The upstream's
// header wins when it is specific; otherwise the file extension decides, and
// as a last resort the payload size: large unidentified blobs are treated as
// video, small ones as still images.
func sniffContentType(header, mediaURL string, size int) string {
	header = strings.TrimSpace(strings.Split(header, ";")[0])
	if header != "" && header != "application/octet-stream" {
		return header
	}

	if u, err := url.Parse(mediaURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			if byExt := mime.TypeByExtension(strings.ToLower(ext)); strings.HasPrefix(byExt, "image/") || strings.HasPrefix(byExt, "video/") {
				return byExt
			}
		}
	}

	if size > videoSizeThreshold {
		return "video/mp4"
	}
	return "image/jpeg"
}
