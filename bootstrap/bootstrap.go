package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jamesagnew/continua-demo-fhir-server/fhir"
	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
	"github.com/jamesagnew/continua-demo-fhir-server/interceptor"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
	"github.com/jamesagnew/continua-demo-fhir-server/paging/memory"
	"github.com/jamesagnew/continua-demo-fhir-server/policy"
)

// Config is everything Initialize needs besides the discovery source.
type Config struct {
	Version  fhir.Version
	Metadata Metadata
	Policy   policy.Config
	// Paging limits for the default in-memory controller. Ignored when
	// WithPagingController is given.
	Paging paging.Limits
}

// DefaultConfig returns the demo server's configuration for version.
func DefaultConfig(version fhir.Version) Config {
	return Config{
		Version:  version,
		Metadata: Metadata{Description: fhirservice.DefaultDescription},
		Policy:   policy.DefaultConfig(),
		Paging:   paging.DefaultLimits(),
	}
}

type options struct {
	log    *slog.Logger
	paging paging.Controller
	now    func() time.Time
}

// Option configures Initialize.
type Option func(*options)

// WithLogger sets the logger bootstrap steps are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithPagingController uses c in place of an in-memory controller built from
// Config.Paging. The caller keeps ownership of c.
func WithPagingController(c paging.Controller) Option {
	return func(o *options) { o.paging = c }
}

// Initialize composes a Server. On failure it returns a *Error and a nil
// Server.
func Initialize(src DiscoverySource, cfg Config, opts ...Option) (*Server, error) {
	o := options{log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	b := &bootstrapper{src: src, cfg: cfg, opts: o, log: o.log}
	srv, err := b.run()
	if err != nil {
		b.log.Error("bootstrap.fail", slog.String("err", err.Error()))
		return nil, err
	}
	b.log.Info("bootstrap.ready",
		slog.String("version", srv.version.String()),
		slog.Int("resource_types", srv.registry.Len()),
		slog.Int("interceptors", srv.chain.Len()),
	)
	return srv, nil
}

type bootstrapper struct {
	src  DiscoverySource
	cfg  Config
	opts options
	log  *slog.Logger
}

func (b *bootstrapper) fail(step Step, kind, err error) error {
	return &Error{Step: step, Kind: kind, Err: err}
}

func (b *bootstrapper) run() (*Server, error) {
	srv := &Server{meta: b.cfg.Metadata}

	// 1. The version is fixed for the server's lifetime.
	if !b.cfg.Version.Valid() {
		return nil, b.fail(StepVersion, ErrDependencyFailure, fmt.Errorf("%w: %v", ErrInvalidVersion, b.cfg.Version))
	}
	srv.version = b.cfg.Version
	keys := srv.version.Keys()
	b.log.Debug("bootstrap.step", slog.String("step", string(StepVersion)), slog.String("version", srv.version.String()))

	// 2. Resource providers.
	providers, ok, err := b.src.ResourceProviders(keys.ResourceProviders)
	if err != nil {
		return nil, b.fail(StepResourceProviders, ErrDependencyFailure, fmt.Errorf("resolve %s: %w", keys.ResourceProviders, err))
	}
	if !ok {
		return nil, b.fail(StepResourceProviders, ErrMissingProviderSet, fmt.Errorf("nothing published under %s", keys.ResourceProviders))
	}
	srv.registry = fhirservice.NewRegistry()
	for _, p := range providers {
		if err := srv.registry.Register(p); err != nil {
			return nil, b.fail(StepResourceProviders, registerKind(err), err)
		}
	}
	b.log.Debug("bootstrap.step", slog.String("step", string(StepResourceProviders)), slog.Any("resource_types", srv.registry.ResourceTypes()))

	// 3. System provider.
	sys, ok, err := b.src.SystemProvider(keys.SystemProvider)
	if err != nil {
		return nil, b.fail(StepSystemProvider, ErrDependencyFailure, fmt.Errorf("resolve %s: %w", keys.SystemProvider, err))
	}
	if !ok || sys == nil {
		return nil, b.fail(StepSystemProvider, ErrMissingSystemProvider, fmt.Errorf("nothing published under %s", keys.SystemProvider))
	}
	srv.system = sys
	b.log.Debug("bootstrap.step", slog.String("step", string(StepSystemProvider)), slog.String("provider", fmt.Sprintf("%T", sys)))

	// 4. Capability statement.
	base := b.cfg.Metadata.BaseAddress
	if base == "" {
		base = b.cfg.Policy.CanonicalBaseAddress
	}
	cs, err := fhirservice.BuildCapabilityStatement(srv.registry, sys, fhirservice.CapabilityMetadata{
		Version:         srv.version,
		SoftwareName:    b.cfg.Metadata.Name,
		SoftwareVersion: b.cfg.Metadata.Version,
		Description:     b.cfg.Metadata.Description,
		BaseAddress:     base,
	})
	if err != nil {
		return nil, b.fail(StepCapabilities, fhirservice.ErrCapabilityInconsistency, err)
	}
	srv.capability = cs
	srv.generatedAt = b.opts.now()
	srv.meta.Description = cs.Implementation.Description
	srv.meta.BaseAddress = base
	b.log.Debug("bootstrap.step", slog.String("step", string(StepCapabilities)))

	// 5. Request policy.
	pol, err := policy.New(b.cfg.Policy, srv.version)
	if err != nil {
		return nil, b.fail(StepPolicy, ErrDependencyFailure, err)
	}
	srv.policy = pol
	b.log.Debug("bootstrap.step", slog.String("step", string(StepPolicy)),
		slog.String("default_encoding", string(pol.Config().DefaultEncoding)),
		slog.String("base_address", pol.Config().CanonicalBaseAddress),
	)

	// 6. Paging.
	if b.opts.paging != nil {
		srv.paging = b.opts.paging
	} else {
		c, err := memory.New(b.cfg.Paging, memory.WithLogger(b.log))
		if err != nil {
			return nil, b.fail(StepPaging, ErrDependencyFailure, err)
		}
		srv.paging = c
		srv.ownsPaging = true
	}
	b.log.Debug("bootstrap.step", slog.String("step", string(StepPaging)),
		slog.Int("capacity", srv.paging.Limits().Capacity),
		slog.Int("max_page_size", srv.paging.Limits().MaxPageSize),
	)

	// 7. Interceptors, in the order the discovery source gives them.
	srv.chain = interceptor.NewChain()
	is, _, err := b.src.Interceptors(keys.Interceptors)
	if err != nil {
		return nil, b.closeOnFail(srv, b.fail(StepInterceptors, ErrDependencyFailure, fmt.Errorf("resolve %s: %w", keys.Interceptors, err)))
	}
	for i, v := range is {
		if err := srv.chain.Register(v); err != nil {
			return nil, b.closeOnFail(srv, b.fail(StepInterceptors, ErrDependencyFailure, fmt.Errorf("interceptor %d: %w", i, err)))
		}
	}
	b.log.Debug("bootstrap.step", slog.String("step", string(StepInterceptors)), slog.Int("count", srv.chain.Len()))

	// 8. Publish.
	srv.registry.Freeze()
	srv.chain.Freeze()
	return srv, nil
}

func (b *bootstrapper) closeOnFail(srv *Server, err error) error {
	_ = srv.Close()
	return err
}

func registerKind(err error) error {
	for _, kind := range []error{fhirservice.ErrDuplicateBinding, fhirservice.ErrRegistryFrozen} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrDependencyFailure
}
