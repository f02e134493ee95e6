package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/joshp123/sharkd/internal/blob"
	"github.com/joshp123/sharkd/internal/config"
	"github.com/joshp123/sharkd/internal/core"
	"github.com/joshp123/sharkd/internal/logger"
	"github.com/joshp123/sharkd/internal/plugins"
	"github.com/joshp123/sharkd/internal/publish"
	"github.com/joshp123/sharkd/internal/rate"
	"github.com/joshp123/sharkd/internal/router"
	"github.com/joshp123/sharkd/internal/server"
	"github.com/joshp123/sharkd/internal/session"
)

var version = "dev"

func main() {
	logger.Init()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "login":
			loginCmd(os.Args[2:])
			return
		case "logout":
			logoutCmd(os.Args[2:])
			return
		case "render":
			renderCmd(os.Args[2:])
			return
		case "help", "-h", "--help":
			usage()
			return
		}
	}

	if err := serve(); err != nil {
		logger.Log.WithError(err).Fatal("sharkd stopped")
	}
}

func usage() {
	fmt.Println("sharkd [command] [args]")
	fmt.Println("")
	fmt.Println("Without a command, sharkd serves gRPC and HTTP.")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  login --email user@example.com [--password-file path] [--config path]")
	fmt.Println("  logout [--config path]")
	fmt.Println("  render --in raw.json --out map.png [--width N] [--height N]")
}

func serve() error {
	cfg, err := loadConfig(envOrDefault("SHARKD_CONFIG", config.DefaultPath))
	if err != nil {
		return err
	}
	cfg.Core.GRPCAddr = envOrDefault("SHARKD_GRPC_ADDR", cfg.Core.GRPCAddr)
	cfg.Core.HTTPAddr = envOrDefault("SHARKD_HTTP_ADDR", cfg.Core.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := blob.New(cfg.Blob)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	manager, err := session.NewManager(cfg.Session, store)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if err := manager.Load(ctx); err != nil {
		logger.Log.WithError(err).Warn("no session loaded; run sharkd login")
	}
	if cfg.Session.RefreshEnabled != nil && *cfg.Session.RefreshEnabled {
		manager.Start(ctx, cfg.Session.RefreshInterval)
	}

	publisher, err := publish.New(cfg.Messaging)
	if err != nil {
		return fmt.Errorf("messaging: %w", err)
	}
	defer publisher.Close()

	compiled := plugins.Compiled(cfg, plugins.Deps{Session: manager, Blob: store, Publisher: publisher})
	if err := core.ValidateEnabledPlugins(compiled, plugins.Enabled(cfg), false); err != nil {
		return err
	}
	active := core.FilterPlugins(compiled, plugins.Enabled(cfg), false)
	if err := core.ValidatePlugins(active); err != nil {
		return err
	}
	defer closePlugins(active)

	grpcServer, err := server.NewGRPCServer(cfg.Core.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	if err := router.RegisterPlugins(grpcServer.Server, active); err != nil {
		return err
	}

	shared := append([]prometheus.Collector{}, session.MetricsCollectors()...)
	shared = append(shared, rate.MetricsCollectors()...)
	shared = append(shared, publish.MetricsCollectors()...)
	shared = append(shared, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "sharkd_build_info",
		Help:        "Build information",
		ConstLabels: prometheus.Labels{"version": version},
	}, func() float64 { return 1 }))
	registry := core.MetricsRegistry(active, shared...)

	if err := core.WriteDashboards(cfg.Core.DashboardDir, active); err != nil {
		logger.Log.WithError(err).Warn("write dashboards failed")
	}

	httpServer := server.NewHTTPServer(cfg.Core.HTTPAddr, router.HTTPMux(active, registry))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Log.WithField("addr", cfg.Core.GRPCAddr).Info("grpc listening")
		return grpcServer.Serve()
	})
	group.Go(func() error {
		logger.Log.WithField("addr", cfg.Core.HTTPAddr).Info("http listening")
		return httpServer.ListenAndServe()
	})
	for _, p := range active {
		runner, ok := p.(core.Runner)
		if !ok {
			continue
		}
		id := p.ID()
		group.Go(func() error {
			if err := runner.Run(groupCtx); err != nil && groupCtx.Err() == nil {
				return fmt.Errorf("plugin %s: %w", id, err)
			}
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.Server.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func closePlugins(active []core.Plugin) {
	for _, p := range active {
		if c, ok := p.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func fatal(action string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
