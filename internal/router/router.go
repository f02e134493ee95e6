package router

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/joshp123/sharkd/internal/core"
	"github.com/joshp123/sharkd/internal/rpc"
	"github.com/joshp123/sharkd/internal/server"
)

// RegisterPlugins registers plugin services and core services on the gRPC server.
func RegisterPlugins(srv *grpc.Server, plugins []core.Plugin) error {
	if err := rpc.Register(srv, core.NewRegistryService(plugins).Service()); err != nil {
		return fmt.Errorf("register registry: %w", err)
	}

	for _, p := range plugins {
		if err := p.RegisterGRPC(srv); err != nil {
			return fmt.Errorf("register %s: %w", p.ID(), err)
		}
	}
	return nil
}

// HTTPMux builds the HTTP surface: health, metrics, dashboards and plugin routes.
func HTTPMux(plugins []core.Plugin, registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", server.HealthHandler(plugins))
	mux.Handle("/metrics", server.MetricsHandler(registry))
	mux.Handle("/dashboards/", server.DashboardsHandler(core.DashboardsMap(plugins)))

	for _, p := range plugins {
		if registrant, ok := p.(core.HTTPRegistrant); ok {
			registrant.RegisterHTTP(mux)
		}
	}
	return mux
}
