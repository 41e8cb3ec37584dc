package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jamesagnew/continua-demo-fhir-server/bootstrap"
	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
	"github.com/jamesagnew/continua-demo-fhir-server/internal/logctx"
	"github.com/jamesagnew/continua-demo-fhir-server/policy"
)

var (
	// ErrNilServer is returned by New without a server.
	ErrNilServer = errors.New("restserver: server is required")
)

const (
	requestIDHeader = "X-Request-ID"
	tracerName      = "github.com/jamesagnew/continua-demo-fhir-server/restserver"

	// DefaultMaxBodyBytes bounds request bodies.
	DefaultMaxBodyBytes = 10 << 20
)

// Option configures a Handler.
type Option func(*newConfig)

type newConfig struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	maxBodyBytes   int64
}

// WithLogger sets the logger. Records are enriched with request, FHIR and
// user attributes through logctx.
func WithLogger(l *slog.Logger) Option {
	return func(c *newConfig) { c.logger = l }
}

// WithTracerProvider sets the provider interaction spans are started from.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *newConfig) { c.tracerProvider = tp }
}

// WithMaxBodyBytes bounds the size of request bodies. Values below one keep
// DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(c *newConfig) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// Handler serves one bootstrapped server over HTTP.
type Handler struct {
	srv       *bootstrap.Server
	mux       *http.ServeMux
	log       *slog.Logger
	tracer    trace.Tracer
	mountPath string
	maxBody   int64
}

var _ http.Handler = (*Handler)(nil)

// runFunc performs the interaction behind a route once the request has passed
// the pre-handle phase.
type runFunc func(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error)

// New builds the Handler for srv. Routes are mounted below the policy's
// mount path.
func New(srv *bootstrap.Server, opts ...Option) (*Handler, error) {
	if srv == nil {
		return nil, ErrNilServer
	}
	cfg := &newConfig{logger: slog.Default(), maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(cfg)
	}
	mount := srv.Policy().Config().MountPath
	tp := cfg.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	h := &Handler{
		srv:       srv,
		log:       slog.New(logctx.Handler{Handler: cfg.logger.Handler()}),
		tracer:    tp.Tracer(tracerName),
		mountPath: mount,
		maxBody:   cfg.maxBodyBytes,
	}

	mux := http.NewServeMux()
	route := func(method, path string, fn http.HandlerFunc) {
		mux.HandleFunc(method+" "+mount+path, fn)
	}
	route("GET", "/metadata", h.handleCapabilities)
	route("OPTIONS", "/{$}", h.handleCapabilities)
	route("GET", "/{$}", h.handleRoot)
	route("POST", "/{$}", h.handleBundle)
	route("GET", "/_history", h.handleSystemHistory)
	route("GET", "/{type}", h.handleSearch)
	route("POST", "/{type}", h.handleCreate)
	route("POST", "/{type}/_search", h.handleSearch)
	route("GET", "/{type}/_history", h.handleTypeHistory)
	route("GET", "/{type}/{id}", h.handleRead)
	route("PUT", "/{type}/{id}", h.handleUpdate)
	route("DELETE", "/{type}/{id}", h.handleDelete)
	route("GET", "/{type}/{id}/_history", h.handleInstanceHistory)
	route("GET", "/{type}/{id}/_history/{vid}", h.handleVRead)
	if mount != "" {
		// Paging links are [base]?_getpages=..., without the trailing slash.
		mux.HandleFunc("GET "+mount, h.handleRoot)
		mux.HandleFunc("POST "+mount, h.handleBundle)
		mux.HandleFunc("OPTIONS "+mount, h.handleCapabilities)
	}
	mux.HandleFunc(mount+"/", h.handleUnknown)
	h.mux = mux
	return h, nil
}

// Server returns the server the handler dispatches to.
func (h *Handler) Server() *bootstrap.Server { return h.srv }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// serve runs one interaction: negotiation, the interceptor chain around run,
// and rendering.
func (h *Handler) serve(w http.ResponseWriter, r *http.Request, interaction string, run runFunc) {
	start := time.Now()
	reqID := r.Header.Get(requestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, reqID)
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	rt, id := r.PathValue("type"), r.PathValue("id")
	bound := false
	if rt != "" {
		_, err := h.srv.Registry().Lookup(rt)
		bound = err == nil
	}
	user := &logctx.UserData{}
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  reqID,
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	ctx = logctx.WithFHIRData(ctx, &logctx.FHIRData{Interaction: interaction, ResourceType: rt, ID: id})
	ctx = logctx.WithUserData(ctx, user)

	ctx, span := h.tracer.Start(ctx, "fhir."+interaction,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("fhir.interaction", interaction),
			attribute.String("fhir.request_id", reqID),
		),
	)
	defer span.End()

	pol := h.srv.Policy()
	neg, err := pol.Negotiate(r)
	if err == nil && neg.Encoding != fhir.EncodingJSON {
		err = fmt.Errorf("%w: %s", policy.ErrUnsupportedFormat, neg.Encoding)
	}
	if err != nil {
		h.log.InfoContext(ctx, "fhir.negotiate.fail", slog.String("err", err.Error()))
		fe := fhirservice.NewError(http.StatusNotAcceptable, fhir.IssueCodeNotSupported,
			"response format not supported; this server renders %s", fhir.EncodingJSON)
		h.write(ctx, w, h.fallback(), fhirservice.NewResponse(fe.Status, fe.Outcome()))
		span.SetAttributes(attribute.Int("http.response.status_code", fe.Status))
		return
	}

	req := &fhirservice.Request{
		HTTP:         r.WithContext(ctx),
		RequestID:    reqID,
		Interaction:  interaction,
		ResourceType: rt,
		TypeBound:    bound,
		ID:           id,
		VersionID:    r.PathValue("vid"),
		Params:       r.URL.Query(),
		BaseURL:      pol.BaseAddress(r),
		Encoding:     neg.Encoding,
		Pretty:       neg.Pretty,
	}
	span.SetAttributes(attribute.String("fhir.resource_type", req.ResourceTypeLabel()))
	resp := h.invoke(ctx, req, user, run)

	span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
	if resp.Status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(resp.Status))
	}
	h.write(ctx, w, neg, resp)
	h.log.DebugContext(ctx, "fhir.dispatch.done", slog.Int("status", resp.Status), slog.Duration("dur", time.Since(start)))
}

// invoke runs the chain phases around run. A pre-handle abort skips the
// provider and the post-handle phase; pre-respond always runs.
func (h *Handler) invoke(ctx context.Context, req *fhirservice.Request, user *logctx.UserData, run runFunc) *fhirservice.Response {
	chain := h.srv.Interceptors()

	resp, err := chain.InvokePre(ctx, req)
	if err != nil {
		resp = h.errorResponse(ctx, err)
	}
	if req.Principal != nil {
		user.UserID = req.Principal.UserID()
	}
	if resp == nil {
		resp, err = run(ctx, req)
		if err != nil {
			resp = h.errorResponse(ctx, err)
		}
		if resp == nil {
			resp = fhirservice.NewResponse(http.StatusNoContent, nil)
		}
		if resp, err = chain.InvokePost(ctx, req, resp); err != nil {
			resp = h.errorResponse(ctx, err)
		}
	}
	if out, err := chain.InvokePreResponse(ctx, req, resp); err != nil {
		resp = h.errorResponse(ctx, err)
	} else {
		resp = out
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
	return resp
}

// errorResponse renders err as an OperationOutcome response.
func (h *Handler) errorResponse(ctx context.Context, err error) *fhirservice.Response {
	fe := fhirservice.AsError(err)
	if fe.Status >= http.StatusInternalServerError {
		h.log.ErrorContext(ctx, "fhir.handler.fail", slog.String("err", err.Error()))
		trace.SpanFromContext(ctx).RecordError(err)
	}
	return fhirservice.NewResponse(fe.Status, fe.Outcome())
}

// fallback is the format used when the negotiated one cannot be honored.
func (h *Handler) fallback() policy.Negotiated {
	return policy.Negotiated{
		Encoding:    fhir.EncodingJSON,
		Pretty:      h.srv.Policy().Config().DefaultPrettyPrint,
		ContentType: h.srv.Version().MIMEType(fhir.EncodingJSON) + "; charset=UTF-8",
	}
}

func (h *Handler) write(ctx context.Context, w http.ResponseWriter, neg policy.Negotiated, resp *fhirservice.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	b, err := encode(resp.Body, neg.Pretty)
	if err != nil {
		h.log.ErrorContext(ctx, "fhir.encode.fail", slog.String("err", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", neg.ContentType)
	w.WriteHeader(resp.Status)
	_, _ = w.Write(b)
}

// handleUnknown answers requests no route matches.
func (h *Handler) handleUnknown(w http.ResponseWriter, r *http.Request) {
	neg, err := h.srv.Policy().Negotiate(r)
	if err != nil || neg.Encoding != fhir.EncodingJSON {
		neg = h.fallback()
	}
	fe := fhirservice.InvalidRequest("this server does not know how to handle %s %s", r.Method, r.URL.Path)
	h.log.InfoContext(r.Context(), "fhir.route.unknown", slog.String("method", r.Method), slog.String("path", r.URL.Path))
	h.write(r.Context(), w, neg, fhirservice.NewResponse(fe.Status, fe.Outcome()))
}

func encode(body any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(body, "", "  ")
	}
	return json.Marshal(body)
}
