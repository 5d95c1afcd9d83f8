// Package gateway assembles the counting proxy from configuration and serves
// it over HTTP, together with the admin API.
package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wudi/hitcounter/config"
	"github.com/wudi/hitcounter/internal/counter"
	"github.com/wudi/hitcounter/internal/downstream"
	"github.com/wudi/hitcounter/internal/logging"
	"github.com/wudi/hitcounter/internal/metrics"
	"github.com/wudi/hitcounter/internal/proxy"
	"github.com/wudi/hitcounter/internal/tracing"
)

// Gateway owns the clients built at start-up and the proxy that uses them.
type Gateway struct {
	config    *config.Config
	store     counter.Store
	invoker   downstream.Invoker
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	proxy     *proxy.Proxy
	startTime time.Time
}

// New builds the store, the invoker and the observability stack from cfg.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	store, err := counter.New(ctx, cfg.Store, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to create counter store: %w", err)
	}

	invoker, err := downstream.New(ctx, cfg.Downstream, cfg.AWS)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create downstream invoker: %w", err)
	}

	tracer, err := tracing.New(cfg.Tracing)
	if err != nil {
		store.Close()
		invoker.Close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	g := NewWithComponents(cfg, store, invoker, tracer)

	logging.Info("Hit counter initialized",
		zap.String("store", cfg.Store.Type),
		zap.String("table", cfg.Store.TableName()),
		zap.String("downstream", cfg.Downstream.Type),
		zap.String("target", cfg.Downstream.Target()),
		zap.Bool("tracing", tracer.IsEnabled()),
	)
	return g, nil
}

// NewWithComponents assembles a Gateway around already built clients.
// tracer may be nil.
func NewWithComponents(cfg *config.Config, store counter.Store, invoker downstream.Invoker, tracer *tracing.Tracer) *Gateway {
	m := metrics.NewCollector()
	return &Gateway{
		config:  cfg,
		store:   store,
		invoker: invoker,
		metrics: m,
		tracer:  tracer,
		proxy: proxy.New(store, invoker,
			proxy.WithMetrics(m),
			proxy.WithTracer(tracer),
		),
		startTime: time.Now(),
	}
}

// Proxy returns the counting proxy.
func (g *Gateway) Proxy() *proxy.Proxy {
	return g.proxy
}

// Store returns the counter store.
func (g *Gateway) Store() counter.Store {
	return g.store
}

// Metrics returns the metrics collector.
func (g *Gateway) Metrics() *metrics.Collector {
	return g.metrics
}

// Stats returns a summary for the admin API.
func (g *Gateway) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"uptime": time.Since(g.startTime).String(),
		"store": map[string]interface{}{
			"type":  g.config.Store.Type,
			"table": g.config.Store.TableName(),
		},
		"tracing": g.tracer.IsEnabled(),
	}
	if s, ok := g.invoker.(interface{ Stats() map[string]interface{} }); ok {
		stats["downstream"] = s.Stats()
	} else {
		stats["downstream"] = map[string]interface{}{
			"type":   g.config.Downstream.Type,
			"target": g.config.Downstream.Target(),
		}
	}
	return stats
}

// Close releases the clients. Errors are logged and the first is returned.
func (g *Gateway) Close() error {
	var first error
	if err := g.invoker.Close(); err != nil {
		logging.Error("Downstream close error", zap.Error(err))
		first = err
	}
	if err := g.store.Close(); err != nil {
		logging.Error("Counter store close error", zap.Error(err))
		if first == nil {
			first = err
		}
	}
	if err := g.tracer.Close(); err != nil {
		logging.Error("Tracer shutdown error", zap.Error(err))
		if first == nil {
			first = err
		}
	}
	return first
}
