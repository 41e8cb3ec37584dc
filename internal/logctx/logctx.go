package logctx

import (
	"context"
	"log/slog"
)

// Handler enriches records with request-scoped attributes stored on the
// context by the HTTP layer.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if fd, ok := ctx.Value(fhirDataKey{}).(*FHIRData); ok {
		attrs := []any{
			slog.String("interaction", fd.Interaction),
			slog.String("resource_type", fd.ResourceType),
		}
		if fd.ID != "" {
			attrs = append(attrs, slog.String("id", fd.ID))
		}
		r.AddAttrs(slog.Group("fhir", attrs...))
	}

	if ud, ok := ctx.Value(userDataKey{}).(*UserData); ok {
		r.AddAttrs(slog.Group("user", slog.String("id", ud.UserID)))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{h.Handler.WithGroup(name)}
}

type requestDataKey struct{}

type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type fhirDataKey struct{}

type FHIRData struct {
	Interaction  string
	ResourceType string
	ID           string
}

func WithFHIRData(ctx context.Context, data *FHIRData) context.Context {
	return context.WithValue(ctx, fhirDataKey{}, data)
}

type userDataKey struct{}

type UserData struct {
	UserID string
}

func WithUserData(ctx context.Context, data *UserData) context.Context {
	return context.WithValue(ctx, userDataKey{}, data)
}
