package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jamesagnew/continua-demo-fhir-server/auth"
	"github.com/jamesagnew/continua-demo-fhir-server/bootstrap"
	"github.com/jamesagnew/continua-demo-fhir-server/config"
	"github.com/jamesagnew/continua-demo-fhir-server/interceptor"
	"github.com/jamesagnew/continua-demo-fhir-server/paging"
	redispaging "github.com/jamesagnew/continua-demo-fhir-server/paging/redis"
	"github.com/jamesagnew/continua-demo-fhir-server/providers/memory"
	"github.com/jamesagnew/continua-demo-fhir-server/restserver"
)

// app is one bootstrapped generation of the server.
type app struct {
	srv     *bootstrap.Server
	handler *restserver.Handler
	paging  paging.Controller // externally owned controller, nil for the built-in one
}

func (a *app) close() error {
	err := a.srv.Close()
	if a.paging != nil {
		err = errors.Join(err, a.paging.Close())
	}
	return err
}

// composeOptions carry collaborators that outlive a single generation.
type composeOptions struct {
	metrics *interceptor.Metrics
	// store keeps demo data across reloads.
	store *memory.Store
	// offline skips collaborators that reach the network.
	offline bool
}

// compose builds the demo catalog for cfg and bootstraps a server from it.
func compose(ctx context.Context, cfg config.Config, log *slog.Logger, co *composeOptions) (*app, error) {
	if co == nil {
		co = &composeOptions{offline: true}
	}
	keys := cfg.Version().Keys()
	store := co.store
	if store == nil {
		store = memory.NewStore()
	}
	rps := memory.ResourceProviders(store, cfg.Resources...)
	cat := bootstrap.NewCatalog().
		AddResourceProviders(keys.ResourceProviders, rps...).
		SetSystemProvider(keys.SystemProvider, memory.NewSystemProvider(store, rps...))

	cat.AddInterceptors(keys.Interceptors, interceptor.Logging(log))
	if co.metrics != nil {
		cat.AddInterceptors(keys.Interceptors, co.metrics)
	}
	if cfg.Auth.Enabled && !co.offline {
		authn, err := newAuthenticator(ctx, cfg.Auth)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		opts := []interceptor.BearerAuthOption{
			interceptor.WithRealm(cfg.Auth.Realm),
			interceptor.WithAuthLogger(log),
		}
		if cfg.Auth.SMARTScopes {
			opts = append(opts, interceptor.WithSMARTScopes())
		}
		cat.AddInterceptors(keys.Interceptors, interceptor.BearerAuth(authn, opts...))
	}
	if rl := cfg.RateLimit; rl.Enabled {
		cat.AddInterceptors(keys.Interceptors, interceptor.RateLimit(rl.Rate, rl.Burst,
			interceptor.WithRateLimitKey(rateLimitKey(rl.Key)),
			interceptor.WithRateLimitLogger(log),
		))
	}

	a := &app{}
	bopts := []bootstrap.Option{bootstrap.WithLogger(log)}
	if cfg.Paging.Backend == config.PagingBackendRedis && !co.offline {
		c, err := redispaging.New(ctx, cfg.RedisPaging())
		if err != nil {
			return nil, fmt.Errorf("paging: %w", err)
		}
		a.paging = c.WithLogger(log)
		bopts = append(bopts, bootstrap.WithPagingController(a.paging))
	}

	srv, err := bootstrap.Initialize(cat, cfg.Bootstrap(), bopts...)
	if err != nil {
		if a.paging != nil {
			_ = a.paging.Close()
		}
		return nil, err
	}
	a.srv = srv

	a.handler, err = restserver.New(srv,
		restserver.WithLogger(log),
		restserver.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	)
	if err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func newAuthenticator(ctx context.Context, ac config.Auth) (auth.Authenticator, error) {
	opts := []auth.AccessTokenAuthOption{auth.WithLeeway(ac.Leeway)}
	if len(ac.RequiredScopes) > 0 {
		opts = append(opts, auth.WithRequiredScopes(ac.RequiredScopes...))
	}
	if ac.JWKSURL != "" {
		return auth.NewFromJWKSURL(ctx, ac.Issuer, ac.Audience, ac.JWKSURL, opts...)
	}
	return auth.NewFromDiscovery(ctx, ac.Issuer, ac.Audience, opts...)
}

func rateLimitKey(key string) interceptor.RateLimitKeyFunc {
	switch key {
	case config.RateLimitKeyGlobal:
		return interceptor.GlobalKey
	case config.RateLimitKeyPrincipal:
		return interceptor.PrincipalKey
	default:
		return interceptor.ClientKey
	}
}
