package interceptor

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
)

// RateLimitKeyFunc picks the bucket a request is counted against.
type RateLimitKeyFunc func(req *fhirservice.Request) string

// GlobalKey counts every request against one bucket.
func GlobalKey(*fhirservice.Request) string { return "global" }

// ClientKey counts requests per remote host.
func ClientKey(req *fhirservice.Request) string {
	if req.HTTP == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(req.HTTP.RemoteAddr)
	if err != nil {
		return req.HTTP.RemoteAddr
	}
	return host
}

// PrincipalKey counts requests per authenticated user, falling back to the
// remote host for anonymous requests. Register it after BearerAuth.
func PrincipalKey(req *fhirservice.Request) string {
	if req.Principal != nil {
		return "user:" + req.Principal.UserID()
	}
	return "host:" + ClientKey(req)
}

// RateLimitOption configures RateLimit.
type RateLimitOption func(*Limiter)

// WithRateLimitKey sets how requests are grouped into buckets. The default
// is ClientKey.
func WithRateLimitKey(fn RateLimitKeyFunc) RateLimitOption {
	return func(l *Limiter) {
		if fn != nil {
			l.key = fn
		}
	}
}

// WithRateLimitLogger sets the logger for throttled requests.
func WithRateLimitLogger(log *slog.Logger) RateLimitOption {
	return func(l *Limiter) {
		if log != nil {
			l.log = log
		}
	}
}

// Limiter is the token bucket rate limiting interceptor.
type Limiter struct {
	limiter interface {
		Allow(ctx context.Context, key string) bool
	}
	key        RateLimitKeyFunc
	retryAfter time.Duration
	log        *slog.Logger
}

// RateLimit returns an interceptor admitting rate requests per second per
// bucket, with bursts up to burst. Throttled requests are aborted with 429.
func RateLimit(rate, burst int, opts ...RateLimitOption) *Limiter {
	l := &Limiter{
		limiter: ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    burst,
			Interval: time.Second,
		}),
		key:        ClientKey,
		retryAfter: time.Second,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) PreHandle(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
	key := l.key(req)
	if l.limiter.Allow(ctx, key) {
		return nil, nil
	}
	l.log.WarnContext(ctx, "ratelimit.reject",
		slog.String("key", key),
		slog.String("interaction", req.Interaction),
	)
	resp := fhirservice.NewResponse(http.StatusTooManyRequests,
		fhir.NewOperationOutcome(fhir.SeverityError, fhir.IssueCodeThrottled, "rate limit exceeded"))
	resp.Header.Set("Retry-After", strconv.Itoa(int(l.retryAfter.Seconds())))
	return resp, nil
}
