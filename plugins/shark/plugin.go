package shark

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/joshp123/sharkd/internal/blob"
	"github.com/joshp123/sharkd/internal/config"
	"github.com/joshp123/sharkd/internal/core"
	"github.com/joshp123/sharkd/internal/history"
	"github.com/joshp123/sharkd/internal/logger"
	"github.com/joshp123/sharkd/internal/publish"
)

//go:embed AGENTS.md
var agentsMD string

//go:embed dashboard.json
var dashboardJSON []byte

// Deps are the shared services a plugin is built on.
type Deps struct {
	Tokens    TokenSource
	Blob      blob.Store
	Publisher publish.Publisher
}

// Plugin implements the sharkd plugin contract for Shark robot vacuums.
type Plugin struct {
	tokens    TokenSource
	client    *Client
	maps      *MapService
	poller    *poller
	fleet     *fleet
	history   *history.DB
	redis     *redis.Client
	focalZoom bool

	health        core.HealthStatus
	healthMessage string
}

var _ core.Runner = (*Plugin)(nil)

// NewPlugin constructs the Shark plugin. The bool is false when the plugin
// is not configured.
func NewPlugin(cfg *config.Config, deps Deps) (*Plugin, bool) {
	if cfg == nil || cfg.Shark == nil {
		return nil, false
	}
	p := &Plugin{
		tokens:    deps.Tokens,
		fleet:     newFleet(),
		focalZoom: cfg.Viewer.FocalZoom,
	}
	if err := p.init(cfg, deps); err != nil {
		p.Close()
		p.client, p.maps, p.poller = nil, nil, nil
		p.health = core.HealthError
		p.healthMessage = err.Error()
		return p, true
	}
	p.health = core.HealthHealthy
	return p, true
}

func (p *Plugin) init(cfg *config.Config, deps Deps) error {
	sc := cfg.Shark
	client, err := NewClient(ClientConfig{BaseURL: sc.APIBase, RatePerMinute: sc.RatePerMinute}, deps.Tokens)
	if err != nil {
		return err
	}
	p.client = client

	publisher := deps.Publisher
	if publisher == nil {
		publisher = publish.Nop{}
	}
	topics := publish.Topics{Prefix: cfg.Messaging.TopicPrefix}

	opts := MapServiceOptions{
		TTL:       sc.MapRefreshInterval,
		Publisher: publisher,
		Topics:    topics,
	}
	switch sc.Cache {
	case "redis":
		p.redis = redis.NewClient(&redis.Options{Addr: sc.RedisAddr})
		opts.Cache = NewRedisCache(p.redis)
	default:
		opts.Cache = NewMemoryCache()
	}
	if sc.HistoryPath != "" {
		db, err := history.Open(sc.HistoryPath)
		if err != nil {
			return fmt.Errorf("open coverage history: %w", err)
		}
		p.history = db
		opts.History = db
	}
	if sc.ArchiveMaps {
		if deps.Blob == nil {
			return fmt.Errorf("map archive requires a blob store")
		}
		opts.Archive = deps.Blob
	}

	p.maps = NewMapService(client, p.fleet, opts)
	p.poller = newPoller(client, p.fleet, publisher, topics, p.history, sc.PollInterval)
	return nil
}

func (p *Plugin) ID() string {
	return "shark"
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "shark",
		DisplayName: "Shark robot vacuum",
		Version:     "0.1.0",
		Services:    []string{servicePackage + "." + serviceName},
	}
}

func (p *Plugin) AgentsMD() string {
	return agentsMD
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "shark-overview", JSON: dashboardJSON}}
}

func (p *Plugin) RegisterGRPC(server *grpc.Server) error {
	return RegisterSharkService(server, p.client, p.maps)
}

func (p *Plugin) Collectors() []prometheus.Collector {
	if p.client == nil {
		return nil
	}
	return []prometheus.Collector{NewMetricsCollector(p.fleet)}
}

func (p *Plugin) Health() core.HealthStatus {
	if p.health == core.HealthHealthy && !p.loggedIn() {
		return core.HealthDegraded
	}
	return p.health
}

func (p *Plugin) HealthMessage() string {
	if p.health == core.HealthHealthy && !p.loggedIn() {
		return "not logged in; run sharkd login"
	}
	return p.healthMessage
}

func (p *Plugin) loggedIn() bool {
	if l, ok := p.tokens.(interface{ LoggedIn() bool }); ok {
		return l.LoggedIn()
	}
	return true
}

// Run polls device status until ctx is done.
func (p *Plugin) Run(ctx context.Context) error {
	if p.poller == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.poller.Run(ctx)
}

// Close releases the history database and the Redis client.
func (p *Plugin) Close() {
	if p.history != nil {
		if err := p.history.Close(); err != nil {
			logger.Log.WithError(err).Warn("close coverage history")
		}
		p.history = nil
	}
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			logger.Log.WithError(err).Warn("close redis")
		}
		p.redis = nil
	}
}
