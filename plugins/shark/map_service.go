package shark

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joshp123/sharkd/internal/blob"
	"github.com/joshp123/sharkd/internal/cleanmap"
	"github.com/joshp123/sharkd/internal/history"
	"github.com/joshp123/sharkd/internal/logger"
	"github.com/joshp123/sharkd/internal/publish"
)

const (
	archiveWidth  = 800
	archiveHeight = 800
)

var ErrHistoryDisabled = errors.New("coverage history is not configured")

// Snapshot is one decoded map.
type Snapshot struct {
	DSN         string
	Model       *cleanmap.MapModel
	Diagnostics cleanmap.Diagnostics
	FetchedAt   time.Time
	Cached      bool
}

// MapEvent is published to <prefix>/<dsn>/map for every fresh snapshot.
type MapEvent struct {
	DSN          string    `json:"dsn"`
	HasData      bool      `json:"has_data"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	CleanedCells int       `json:"cleaned_cells"`
	TotalCells   int       `json:"total_cells"`
	AreaSqm      float64   `json:"area_sqm"`
	Robot        *PoseJSON `json:"robot,omitempty"`
	Charger      *PoseJSON `json:"charger,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// PoseJSON is a known pose in grid cells.
type PoseJSON struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Angle float64 `json:"angle"`
}

// MapServiceOptions wires the map service's optional collaborators.
type MapServiceOptions struct {
	Cache     SnapshotCache
	TTL       time.Duration
	History   *history.DB
	Publisher publish.Publisher
	Topics    publish.Topics
	// Archive receives a PNG per changed snapshot. Nil disables archiving.
	Archive blob.Store
}

// MapService fetches, caches and decodes maps, and fans fresh snapshots out
// to history, the publisher and the archive.
type MapService struct {
	client *Client
	fleet  *fleet
	opts   MapServiceOptions

	mu          sync.Mutex
	lastDigests map[string][32]byte
}

func NewMapService(client *Client, f *fleet, opts MapServiceOptions) *MapService {
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	if opts.Publisher == nil {
		opts.Publisher = publish.Nop{}
	}
	if f == nil {
		f = newFleet()
	}
	return &MapService{
		client:      client,
		fleet:       f,
		opts:        opts,
		lastDigests: make(map[string][32]byte),
	}
}

// MapSnapshot returns the decoded map for dsn, reading through the cache.
func (s *MapService) MapSnapshot(ctx context.Context, dsn string) (Snapshot, error) {
	if dsn == "" {
		return Snapshot{}, fmt.Errorf("dsn is required")
	}

	props, hit, err := s.opts.Cache.Get(ctx, dsn)
	if err != nil {
		logger.WithDevice(dsn).WithError(err).Warn("map cache read failed")
		hit = false
	}
	if !hit {
		props, err = s.client.FetchMapProperties(ctx, dsn)
		if err != nil {
			return Snapshot{}, fmt.Errorf("fetch map: %w", err)
		}
		if s.opts.TTL > 0 {
			if err := s.opts.Cache.Set(ctx, dsn, props, s.opts.TTL); err != nil {
				logger.WithDevice(dsn).WithError(err).Warn("map cache write failed")
			}
		}
	}

	model, diag := cleanmap.DecodeRaw(props.Raw)
	snap := Snapshot{
		DSN:         dsn,
		Model:       model,
		Diagnostics: diag,
		FetchedAt:   props.FetchedAt,
		Cached:      hit,
	}
	if len(diag.Issues) > 0 {
		entry := logger.WithDevice(dsn)
		for _, issue := range diag.Issues {
			entry = entry.WithField(issue.Field, string(issue.Kind))
		}
		entry.Debug("map decoded with degradations")
	}
	if !hit {
		s.observe(ctx, snap, props)
	}
	return snap, nil
}

// Fetcher adapts MapSnapshot to a cleanmap.FetchFunc for dsn.
func (s *MapService) Fetcher(dsn string) cleanmap.FetchFunc {
	return func(ctx context.Context) (*cleanmap.MapModel, error) {
		snap, err := s.MapSnapshot(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return snap.Model, nil
	}
}

// CoverageHistory returns up to limit samples for dsn, newest first.
func (s *MapService) CoverageHistory(ctx context.Context, dsn string, limit int) ([]history.Sample, error) {
	if s.opts.History == nil {
		return nil, ErrHistoryDisabled
	}
	return s.opts.History.Recent(ctx, dsn, limit)
}

func (s *MapService) observe(ctx context.Context, snap Snapshot, props MapProperties) {
	model := snap.Model
	log := logger.WithDevice(snap.DSN)

	s.fleet.setMap(snap.DSN, mapStats{
		CleanedCells: model.CleanedCellCount(),
		TotalCells:   model.TotalCells(),
		AreaSqm:      model.CleanedAreaSqm(),
		FetchedAt:    snap.FetchedAt,
	})

	if s.opts.History != nil && model.HasData() {
		_, err := s.opts.History.Record(ctx, history.Sample{
			DSN:          snap.DSN,
			RecordedAt:   snap.FetchedAt,
			CleanedCells: model.CleanedCellCount(),
			TotalCells:   model.TotalCells(),
			AreaSqm:      model.CleanedAreaSqm(),
		})
		if err != nil {
			log.WithError(err).Warn("record coverage sample failed")
		}
	}

	if err := publish.PublishJSON(ctx, s.opts.Publisher, s.opts.Topics.Map(snap.DSN), newMapEvent(snap)); err != nil {
		log.WithError(err).Warn("publish map event failed")
	}

	if s.opts.Archive != nil && model.HasData() && s.changed(snap.DSN, props) {
		if err := s.archive(ctx, snap); err != nil {
			log.WithError(err).Warn("archive map failed")
		}
	}
}

func (s *MapService) changed(dsn string, props MapProperties) bool {
	h := sha256.New()
	for _, field := range []*string{props.Raw.Grid, props.Raw.Robot, props.Raw.Charger} {
		if field != nil {
			h.Write([]byte(*field))
		}
		h.Write([]byte{0})
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.lastDigests[dsn]; ok && prev == digest {
		return false
	}
	s.lastDigests[dsn] = digest
	return true
}

func (s *MapService) archive(ctx context.Context, snap Snapshot) error {
	vp := cleanmap.DefaultViewport()
	vp.FitGrid(snap.Model.Grid(), archiveWidth, archiveHeight)
	img := cleanmap.RenderImage(snap.Model, vp, archiveWidth, archiveHeight)
	data, err := cleanmap.EncodePNG(img)
	if err != nil {
		return err
	}
	at := snap.FetchedAt
	if at.IsZero() {
		at = time.Now()
	}
	return s.opts.Archive.Save(ctx, archiveKey(snap.DSN, at), data, "image/png")
}

func archiveKey(dsn string, at time.Time) string {
	return fmt.Sprintf("maps/%s/%d.png", dsn, at.Unix())
}

func newMapEvent(snap Snapshot) MapEvent {
	model := snap.Model
	ev := MapEvent{
		DSN:          snap.DSN,
		HasData:      model.HasData(),
		Width:        model.Grid().Width(),
		Height:       model.Grid().Height(),
		CleanedCells: model.CleanedCellCount(),
		TotalCells:   model.TotalCells(),
		AreaSqm:      model.CleanedAreaSqm(),
		FetchedAt:    snap.FetchedAt,
	}
	ev.Robot = poseJSON(model.RobotPose())
	ev.Charger = poseJSON(model.ChargerPose())
	return ev
}

func poseJSON(p cleanmap.Pose) *PoseJSON {
	if !p.Valid {
		return nil
	}
	return &PoseJSON{X: p.X, Y: p.Y, Angle: p.Angle}
}
