package interceptor

import (
	"context"
	"log/slog"
	"time"

	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
)

const startedAtKey = "interceptor.startedAt"

// RequestLogger logs one record per completed request.
type RequestLogger struct {
	log *slog.Logger
	now func() time.Time
}

// Logging returns an interceptor that logs one record per request at info
// level, with the outcome status and duration.
func Logging(log *slog.Logger) *RequestLogger {
	if log == nil {
		log = slog.Default()
	}
	return &RequestLogger{log: log, now: time.Now}
}

func (l *RequestLogger) PreHandle(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
	markStart(req, l.now)
	return nil, nil
}

func (l *RequestLogger) PreRespond(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error) {
	attrs := []slog.Attr{
		slog.String("interaction", req.Interaction),
		slog.String("resource_type", req.ResourceType),
		slog.Int("status", resp.Status),
	}
	if d, ok := elapsed(req, l.now); ok {
		attrs = append(attrs, slog.Duration("dur", d))
	}
	if req.Principal != nil {
		attrs = append(attrs, slog.String("user_id", req.Principal.UserID()))
	}
	level := slog.LevelInfo
	if resp.Status >= 500 {
		level = slog.LevelError
	}
	l.log.LogAttrs(ctx, level, "fhir.request", attrs...)
	return nil, nil
}

func markStart(req *fhirservice.Request, now func() time.Time) {
	if _, ok := req.Get(startedAtKey); !ok {
		req.Set(startedAtKey, now())
	}
}

func elapsed(req *fhirservice.Request, now func() time.Time) (time.Duration, bool) {
	v, ok := req.Get(startedAtKey)
	if !ok {
		return 0, false
	}
	started, ok := v.(time.Time)
	if !ok {
		return 0, false
	}
	return now().Sub(started), true
}
