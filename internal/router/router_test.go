package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"

	"github.com/joshp123/sharkd/internal/core"
)

type httpPlugin struct{}

func (httpPlugin) ID() string { return "demo" }
func (httpPlugin) Manifest() core.Manifest {
	return core.Manifest{PluginID: "demo", DisplayName: "Demo", Version: "0.1.0"}
}
func (httpPlugin) AgentsMD() string { return "" }
func (httpPlugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "overview", JSON: []byte(`{"title":"demo"}`)}}
}
func (httpPlugin) RegisterGRPC(*grpc.Server) error    { return nil }
func (httpPlugin) Collectors() []prometheus.Collector { return nil }
func (httpPlugin) Health() core.HealthStatus          { return core.HealthHealthy }
func (httpPlugin) HealthMessage() string              { return "" }
func (httpPlugin) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("/demo/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

func TestHTTPMux(t *testing.T) {
	plugins := []core.Plugin{httpPlugin{}}
	srv := httptest.NewServer(HTTPMux(plugins, core.MetricsRegistry(plugins)))
	defer srv.Close()

	cases := map[string]string{
		"/health":                        "ok",
		"/demo/ping":                     "pong",
		"/dashboards/demo/overview.json": `{"title":"demo"}`,
	}
	for path, want := range cases {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || string(body) != want {
			t.Fatalf("GET %s: %d %q", path, resp.StatusCode, body)
		}
	}

	resp, err := http.Get(srv.URL + "/dashboards/demo/missing.json")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRegisterPlugins(t *testing.T) {
	srv := grpc.NewServer()
	if err := RegisterPlugins(srv, []core.Plugin{httpPlugin{}}); err != nil {
		t.Fatalf("RegisterPlugins: %v", err)
	}
	if _, ok := srv.GetServiceInfo()["sharkd.registry.v1.Registry"]; !ok {
		t.Fatalf("registry service not registered")
	}
}
