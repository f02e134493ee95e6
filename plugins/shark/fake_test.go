package shark

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const testToken = "token-1"

type staticTokens struct {
	token     string
	loggedIn  bool
	refreshes int32
}

func (s *staticTokens) AccessToken(context.Context) (string, error) { return s.token, nil }
func (s *staticTokens) TriggerRefresh(context.Context)              { atomic.AddInt32(&s.refreshes, 1) }
func (s *staticTokens) LoggedIn() bool                              { return s.loggedIn }

type posted struct {
	DSN      string
	Property string
	Value    any
}

// fakeAyla serves the subset of the Ayla device API the client uses.
type fakeAyla struct {
	t *testing.T

	mu           sync.Mutex
	devicesBody  string
	properties   map[string]map[string]any
	schedules    string
	posts        []posted
	mapRequests  int
	unauthorized bool
}

func newFakeAyla(t *testing.T) (*fakeAyla, *httptest.Server) {
	t.Helper()
	f := &fakeAyla{
		t:           t,
		devicesBody: `[{"device":{"dsn":"AC000W1","product_name":"Shark AI","oem_model":"RV2502AE","connection_status":"Online"}}]`,
		properties:  make(map[string]map[string]any),
		schedules:   "[]",
	}
	server := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(server.Close)
	return f, server
}

func (f *fakeAyla) setProperty(dsn, name string, value any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.properties[dsn] == nil {
		f.properties[dsn] = make(map[string]any)
	}
	f.properties[dsn][name] = value
}

func (f *fakeAyla) posted() []posted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]posted(nil), f.posts...)
}

func (f *fakeAyla) mapCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mapRequests
}

func (f *fakeAyla) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.unauthorized {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"token expired"}`))
		return
	}
	if got := r.Header.Get("Authorization"); got != "Bearer "+testToken {
		f.t.Errorf("unexpected authorization header %q", got)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/v1/devices":
		_, _ = w.Write([]byte(f.devicesBody))
	case len(parts) == 4 && parts[3] == "properties" && r.Method == http.MethodGet:
		f.writeProperties(w, parts[2], r.URL.Query()["names[]"])
	case len(parts) == 6 && parts[5] == "datapoints" && r.Method == http.MethodGet:
		if parts[4] != propScheduleData {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("limit") != "1" {
			f.t.Errorf("expected limit=1, got %q", r.URL.RawQuery)
		}
		value, _ := json.Marshal(f.schedules)
		fmt.Fprintf(w, `[{"datapoint":{"value":%s}}]`, value)
	case len(parts) == 6 && parts[5] == "datapoints" && r.Method == http.MethodPost:
		var body struct {
			Datapoint struct {
				Value any `json:"value"`
			} `json:"datapoint"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode datapoint: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.posts = append(f.posts, posted{DSN: parts[2], Property: parts[4], Value: body.Datapoint.Value})
		if parts[4] == setScheduleData {
			f.schedules, _ = body.Datapoint.Value.(string)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAyla) writeProperties(w http.ResponseWriter, dsn string, names []string) {
	props := f.properties[dsn]
	var out []map[string]any
	if len(names) > 0 {
		f.mapRequests++
		for _, name := range names {
			if value, ok := props[name]; ok {
				out = append(out, map[string]any{"property": map[string]any{"name": name, "value": value}})
			}
		}
	} else {
		for name, value := range props {
			out = append(out, map[string]any{"property": map[string]any{"name": name, "value": value}})
		}
	}
	if out == nil {
		out = []map[string]any{}
	}
	_ = json.NewEncoder(w).Encode(out)
}

func newTestClient(t *testing.T, baseURL string) (*Client, *staticTokens) {
	t.Helper()
	tokens := &staticTokens{token: testToken, loggedIn: true}
	client, err := NewClient(ClientConfig{BaseURL: baseURL}, tokens)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, tokens
}

// gridPayload encodes a width x height grid the way the robot reports it.
func gridPayload(width, height int, cells []byte) string {
	return fmt.Sprintf(`{"width":%d,"height":%d,"grid":%q}`, width, height, base64.StdEncoding.EncodeToString(cells))
}

// seedMap stores a 20x20 map with the first row cleaned and the robot at 5,6.
func seedMap(f *fakeAyla, dsn string) {
	cells := make([]byte, 400)
	for i := 0; i < 20; i++ {
		cells[i] = 1
	}
	for i := 380; i < 400; i++ {
		cells[i] = 2
	}
	f.setProperty(dsn, propMapData, gridPayload(20, 20, cells))
	f.setProperty(dsn, propRobotPosition, "5,6,90")
	f.setProperty(dsn, propChargerPosition, "1,1")
}
