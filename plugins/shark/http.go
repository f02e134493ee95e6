package shark

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/joshp123/sharkd/internal/cleanmap"
	"github.com/joshp123/sharkd/internal/core"
)

const (
	mapPNGEndpoint  = "/shark/map.png"
	mapJSONEndpoint = "/shark/map.json"
	viewerEndpoint  = "/shark/viewer"
	wsEndpoint      = "/shark/ws"

	defaultRenderWidth  = 800
	defaultRenderHeight = 600
	maxRenderSize       = 4096
)

//go:embed viewer.html
var viewerHTML []byte

var _ core.HTTPRegistrant = (*Plugin)(nil)

func (p *Plugin) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc(mapPNGEndpoint, p.handleMapPNG)
	mux.HandleFunc(mapJSONEndpoint, p.handleMapJSON)
	mux.HandleFunc(viewerEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(viewerHTML)
	})
	mux.HandleFunc(wsEndpoint, p.handleWS)
}

func (p *Plugin) snapshotForRequest(w http.ResponseWriter, r *http.Request) (Snapshot, bool) {
	if p.client == nil || p.maps == nil {
		http.Error(w, "shark unavailable: "+p.healthMessage, http.StatusServiceUnavailable)
		return Snapshot{}, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	dsn, err := firstDSN(ctx, p.client, r.URL.Query().Get("dsn"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return Snapshot{}, false
	}
	snap, err := p.maps.MapSnapshot(ctx, dsn)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return Snapshot{}, false
	}
	return snap, true
}

func (p *Plugin) handleMapPNG(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	width, height, err := canvasFromQuery(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vp, explicit, err := viewportFromQuery(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, ok := p.snapshotForRequest(w, r)
	if !ok {
		return
	}
	if !explicit {
		vp.FitGrid(snap.Model.Grid(), width, height)
	}
	data, err := cleanmap.EncodePNG(cleanmap.RenderImage(snap.Model, vp, width, height))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (p *Plugin) handleMapJSON(w http.ResponseWriter, r *http.Request) {
	snap, ok := p.snapshotForRequest(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(summarize(snap))
}

func canvasFromQuery(q url.Values) (int, int, error) {
	width, err := intParam(q, "width", defaultRenderWidth)
	if err != nil {
		return 0, 0, err
	}
	height, err := intParam(q, "height", defaultRenderHeight)
	if err != nil {
		return 0, 0, err
	}
	if width <= 0 || height <= 0 || width > maxRenderSize || height > maxRenderSize {
		return 0, 0, fmt.Errorf("width and height must be between 1 and %d", maxRenderSize)
	}
	return width, height, nil
}

// viewportFromQuery reads scale, tx and ty. explicit is false when none is
// given, meaning the caller should fit the grid.
func viewportFromQuery(q url.Values) (cleanmap.Viewport, bool, error) {
	if q.Get("scale") == "" && q.Get("tx") == "" && q.Get("ty") == "" {
		return cleanmap.DefaultViewport(), false, nil
	}
	scale, err := floatParam(q, "scale", 1)
	if err != nil {
		return cleanmap.Viewport{}, false, err
	}
	tx, err := floatParam(q, "tx", 0)
	if err != nil {
		return cleanmap.Viewport{}, false, err
	}
	ty, err := floatParam(q, "ty", 0)
	if err != nil {
		return cleanmap.Viewport{}, false, err
	}
	return cleanmap.NewViewport(scale, tx, ty), true, nil
}

func intParam(q url.Values, key string, def int) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

func floatParam(q url.Values, key string, def float64) (float64, error) {
	raw := q.Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}
