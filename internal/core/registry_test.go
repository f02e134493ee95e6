package core

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joshp123/sharkd/internal/rpc"
)

type stubPlugin struct {
	id            string
	name          string
	version       string
	services      []string
	dashboards    []Dashboard
	agents        string
	health        HealthStatus
	healthMessage string
}

func (s stubPlugin) ID() string { return s.id }

func (s stubPlugin) Manifest() Manifest {
	return Manifest{
		PluginID:    s.id,
		DisplayName: s.name,
		Version:     s.version,
		Services:    s.services,
	}
}

func (s stubPlugin) AgentsMD() string { return s.agents }

func (s stubPlugin) Dashboards() []Dashboard { return s.dashboards }

func (s stubPlugin) RegisterGRPC(*grpc.Server) error { return nil }

func (s stubPlugin) Collectors() []prometheus.Collector { return nil }

func (s stubPlugin) Health() HealthStatus { return s.health }

func (s stubPlugin) HealthMessage() string { return s.healthMessage }

func newStubPlugin(id string) stubPlugin {
	return stubPlugin{
		id:         id,
		name:       "Demo",
		version:    "0.1.0",
		services:   []string{"sharkd.plugins.demo.v1.DemoService"},
		agents:     "demo agents",
		health:     HealthHealthy,
		dashboards: []Dashboard{{Name: "demo", JSON: []byte("{}")}},
	}
}

func TestRegistryListPlugins(t *testing.T) {
	svc := NewRegistryService([]Plugin{newStubPlugin("demo")})

	plugins := svc.ListPlugins()
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %d", len(plugins))
	}
	got := plugins[0]
	if got.PluginID != "demo" || got.DisplayName != "Demo" || got.Version != "0.1.0" {
		t.Fatalf("unexpected plugin summary: %+v", got)
	}
	if got.Status != string(HealthHealthy) {
		t.Fatalf("unexpected health status: %s", got.Status)
	}
}

func TestRegistryDescribePlugin(t *testing.T) {
	svc := NewRegistryService([]Plugin{newStubPlugin("demo")})

	desc, ok := svc.DescribePlugin("demo")
	if !ok {
		t.Fatalf("expected plugin descriptor")
	}
	if len(desc.Dashboards) != 1 {
		t.Fatalf("expected 1 dashboard, got %d", len(desc.Dashboards))
	}
	if desc.Dashboards[0].Path != "/dashboards/demo/demo.json" {
		t.Fatalf("unexpected dashboard path: %s", desc.Dashboards[0].Path)
	}
	if _, ok := svc.DescribePlugin("missing"); ok {
		t.Fatalf("expected missing plugin")
	}
}

func TestRegistryOverGRPC(t *testing.T) {
	registry := NewRegistryService([]Plugin{newStubPlugin("demo")})
	svc := registry.Service()

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	if err := rpc.Register(server, svc); err != nil {
		t.Fatalf("Register: %v", err)
	}
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	resp, err := rpc.Invoke(context.Background(), conn, svc, "ListPlugins", nil)
	if err != nil {
		t.Fatalf("ListPlugins: %v", err)
	}
	list := resp.GetFields()["plugins"].GetListValue().GetValues()
	if len(list) != 1 || list[0].GetStructValue().GetFields()["plugin_id"].GetStringValue() != "demo" {
		t.Fatalf("unexpected ListPlugins response: %v", resp)
	}

	req, _ := structpb.NewStruct(map[string]any{"plugin_id": "nope"})
	_, err = rpc.Invoke(context.Background(), conn, svc, "DescribePlugin", req)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFilterPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo"), newStubPlugin("extra")}

	active := FilterPlugins(compiled, map[string]bool{"demo": true}, false)
	if len(active) != 1 || active[0].ID() != "demo" {
		t.Fatalf("unexpected active plugins: %v", active)
	}

	active = FilterPlugins(compiled, map[string]bool{}, true)
	if len(active) != 2 {
		t.Fatalf("expected all plugins, got %d", len(active))
	}
}

func TestValidateEnabledPlugins(t *testing.T) {
	compiled := []Plugin{newStubPlugin("demo")}

	if err := ValidateEnabledPlugins(compiled, map[string]bool{"demo": true}, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ValidateEnabledPlugins(compiled, map[string]bool{"missing": true}, false); err == nil {
		t.Fatalf("expected error for missing plugin")
	}
}

func TestValidatePlugins(t *testing.T) {
	if err := ValidatePlugins([]Plugin{newStubPlugin("demo"), newStubPlugin("demo")}); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if err := ValidatePlugins([]Plugin{newStubPlugin("Bad-ID")}); err == nil {
		t.Fatalf("expected id pattern error")
	}
}

func TestWriteDashboards(t *testing.T) {
	dir := t.TempDir()
	if err := WriteDashboards(dir, []Plugin{newStubPlugin("demo")}); err != nil {
		t.Fatalf("WriteDashboards: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "demo", "demo.json"))
	if err != nil || string(data) != "{}" {
		t.Fatalf("unexpected dashboard file %q %v", data, err)
	}
	if got := DashboardsMap([]Plugin{newStubPlugin("demo")}); string(got["/dashboards/demo/demo.json"]) != "{}" {
		t.Fatalf("unexpected dashboards map: %v", got)
	}
}
