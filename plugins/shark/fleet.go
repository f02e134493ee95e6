package shark

import (
	"sort"
	"sync"
	"time"
)

type mapStats struct {
	CleanedCells int
	TotalCells   int
	AreaSqm      float64
	FetchedAt    time.Time
}

type deviceState struct {
	Device   Device
	Status   *RobotStatus
	StatusAt time.Time
	Map      *mapStats
}

// fleet is the last known state of every device, shared by the poller, the
// map service and the metrics collector.
type fleet struct {
	mu       sync.Mutex
	devices  map[string]*deviceState
	pollOK   bool
	polledAt time.Time
}

func newFleet() *fleet {
	return &fleet{devices: make(map[string]*deviceState)}
}

func (f *fleet) entry(dsn string) *deviceState {
	st, ok := f.devices[dsn]
	if !ok {
		st = &deviceState{Device: Device{DSN: dsn}}
		f.devices[dsn] = st
	}
	return st
}

func (f *fleet) setDevices(devices []Device) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		seen[d.DSN] = true
		f.entry(d.DSN).Device = d
	}
	for dsn := range f.devices {
		if !seen[dsn] {
			delete(f.devices, dsn)
		}
	}
}

func (f *fleet) setStatus(dsn string, status RobotStatus, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.entry(dsn)
	st.Status = &status
	st.StatusAt = at
}

func (f *fleet) setMap(dsn string, stats mapStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entry(dsn).Map = &stats
}

func (f *fleet) setPoll(ok bool, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollOK = ok
	f.polledAt = at
}

// snapshot returns copies sorted by DSN.
func (f *fleet) snapshot() ([]deviceState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]deviceState, 0, len(f.devices))
	for _, st := range f.devices {
		c := *st
		if st.Status != nil {
			status := *st.Status
			c.Status = &status
		}
		if st.Map != nil {
			stats := *st.Map
			c.Map = &stats
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device.DSN < out[j].Device.DSN })
	return out, f.pollOK
}
