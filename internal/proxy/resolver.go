package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/albumforge/albumforge/internal/metrics"
	"github.com/albumforge/albumforge/pkg/logger"
)

// maxResolveBody bounds how much of a resolution response is read.
const maxResolveBody = 1 << 20

// Resolver turns opaque media references into fetchable URLs via the
// upstream's reference lookup endpoint, caching results for the cache TTL.
type Resolver struct {
	baseURL     string
	fileBaseURL string
	client      *http.Client
	cache       ResolveCache
	limiter     *WindowLimiter
	retry       RetryConfig
	log         *logger.Logger
}

// NewResolver creates a Resolver. A nil client falls back to SharedClient.
func NewResolver(baseURL, fileBaseURL string, client *http.Client, cache ResolveCache, limiter *WindowLimiter, retry RetryConfig, log *logger.Logger) *Resolver {
	if client == nil {
		client = SharedClient()
	}
	if log == nil {
		log = logger.NewDefault("proxy")
	}
	return &Resolver{
		baseURL:     baseURL,
		fileBaseURL: fileBaseURL,
		client:      client,
		cache:       cache,
		limiter:     limiter,
		retry:       retry,
		log:         log,
	}
}

// Resolve maps a media reference to a fetchable URL. Unknown references fail
// with ErrRefNotFound; transient upstream trouble is retried with backoff.
func (r *Resolver) Resolve(ctx context.Context, reference string) (string, error) {
	if cached, ok := r.cache.Get(ctx, reference); ok {
		metrics.RecordResolveCacheLookup(true)
		return cached, nil
	}
	metrics.RecordResolveCacheLookup(false)

	endpoint := r.baseURL + "/getFile?file_id=" + url.QueryEscape(reference)

	var lastErr error
	for attempt := 0; attempt < r.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := r.retry.Backoff(attempt-1, retryHint(lastErr))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		if !r.limiter.Take() {
			metrics.RecordRateOverrun()
			r.log.WithField("reference", reference).Debug("resolution exceeds advisory rate window")
		}

		resolved, err := r.resolveOnce(ctx, endpoint)
		if err == nil {
			r.cache.Set(ctx, reference, resolved)
			return resolved, nil
		}
		if err == ErrRefNotFound {
			return "", err
		}
		lastErr = err
		r.log.WithError(err).WithField("reference", reference).Warn("reference resolution attempt failed")
	}
	return "", fmt.Errorf("resolve %s: %w", reference, lastErr)
}

func (r *Resolver) resolveOnce(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResolveBody))
	if err != nil {
		return "", err
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.Get("ok").Bool() {
		code := parsed.Get("error_code").Int()
		if code == http.StatusBadRequest {
			return "", ErrRefNotFound
		}
		return "", &upstreamError{
			code:       int(code),
			desc:       parsed.Get("description").String(),
			retryAfter: time.Duration(parsed.Get("parameters.retry_after").Int()) * time.Second,
		}
	}

	path := parsed.Get("result.file_path").String()
	if path == "" {
		return "", fmt.Errorf("resolution response missing file_path")
	}
	return r.fileBaseURL + "/" + path, nil
}

// upstreamError is a failed lookup response that may carry a throttle hint.
type upstreamError struct {
	code       int
	desc       string
	retryAfter time.Duration
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.code, e.desc)
}

// retryHint extracts the upstream's Retry-After wish from an error, if any.
func retryHint(err error) time.Duration {
	if ue, ok := err.(*upstreamError); ok {
		return ue.retryAfter
	}
	return 0
}
