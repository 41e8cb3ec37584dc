package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jamesagnew/continua-demo-fhir-server/config"
	"github.com/jamesagnew/continua-demo-fhir-server/interceptor"
	"github.com/jamesagnew/continua-demo-fhir-server/internal/wellknown"
	"github.com/jamesagnew/continua-demo-fhir-server/providers/memory"
	"github.com/jamesagnew/continua-demo-fhir-server/restserver"
)

const reloadDebounce = 250 * time.Millisecond

func newServeCmd(f *rootFlags) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the FHIR REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), f, watch)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Re-bootstrap the server when the configuration file changes")
	return cmd
}

func runServe(ctx context.Context, f *rootFlags, watch bool) error {
	cfg, err := f.load()
	if err != nil {
		return err
	}
	log, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	co := &composeOptions{store: memory.NewStore()}
	var reg *prometheus.Registry
	if cfg.Metrics.Enabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if co.metrics, err = interceptor.NewMetrics(reg); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	first, err := compose(ctx, cfg, log, co)
	if err != nil {
		return err
	}
	rl := &reloader{
		f:     f,
		co:    co,
		log:   log,
		sw:    restserver.NewSwappable(first.handler),
		cur:   first,
		grace: cfg.Server.ShutdownTimeout,
	}
	defer rl.closeCurrent()

	mux := http.NewServeMux()
	if reg != nil {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	if cfg.Auth.Enabled {
		mux.Handle(strings.TrimSuffix(cfg.Policy.MountPath, "/")+wellknown.SMARTConfigurationPath, wellknown.Serve(smartConfiguration(cfg.Auth)))
	}
	mux.Handle("/", otelhttp.NewHandler(rl.sw, "fhir.server"))

	hs := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if watch {
		if f.configPath == "" {
			log.Warn("serve.watch.skip", slog.String("reason", "no configuration file"))
		} else {
			go rl.watch(ctx, f.configPath)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serve.listen",
			slog.String("addr", hs.Addr),
			slog.String("mount_path", cfg.Policy.MountPath),
			slog.String("fhir_version", cfg.Server.FHIRVersion),
		)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("serve.shutdown")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func smartConfiguration(ac config.Auth) wellknown.SMARTConfiguration {
	doc := wellknown.SMARTConfiguration{
		Issuer:          ac.Issuer,
		JwksURI:         ac.JWKSURL,
		ScopesSupported: ac.RequiredScopes,
		Capabilities:    []string{},
	}
	if ac.SMARTScopes {
		doc.Capabilities = append(doc.Capabilities, "permission-v1")
	}
	return doc
}

// reloader rebuilds the server from the configuration file and swaps it in.
type reloader struct {
	f     *rootFlags
	co    *composeOptions
	log   *slog.Logger
	sw    *restserver.Swappable
	grace time.Duration

	mu  sync.Mutex
	cur *app
}

func (rl *reloader) reload(ctx context.Context) error {
	cfg, err := rl.f.load()
	if err != nil {
		return err
	}
	next, err := compose(ctx, cfg, rl.log, rl.co)
	if err != nil {
		return err
	}

	rl.mu.Lock()
	old := rl.cur
	rl.cur = next
	rl.sw.Swap(next.handler)
	rl.mu.Unlock()

	// Requests already dispatched to the old generation get the grace period
	// to finish before its paging controller goes away.
	time.AfterFunc(rl.grace, func() {
		if err := old.close(); err != nil {
			rl.log.Warn("serve.reload.close_fail", slog.String("err", err.Error()))
		}
	})
	rl.log.Info("serve.reload.done", slog.Time("generated_at", next.srv.GeneratedAt()))
	return nil
}

func (rl *reloader) closeCurrent() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if err := rl.cur.close(); err != nil {
		rl.log.Warn("serve.close_fail", slog.String("err", err.Error()))
	}
}

// watch reloads on changes to path. The directory is watched so editors that
// replace the file by rename are seen.
func (rl *reloader) watch(ctx context.Context, path string) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		rl.log.Warn("serve.watch.fail", slog.String("err", err.Error()))
		return
	}
	defer func() {
		_ = w.Close()
	}()

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		rl.log.Warn("serve.watch.fail", slog.String("err", err.Error()))
		return
	}
	rl.log.Info("serve.watch", slog.String("path", abs))

	// Bursts of events from a single save collapse into one reload.
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			if err := rl.reload(ctx); err != nil {
				// The previous generation keeps serving.
				rl.log.Error("serve.reload.fail", slog.String("err", err.Error()))
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			rl.log.Warn("serve.watch.error", slog.String("err", err.Error()))
		}
	}
}
