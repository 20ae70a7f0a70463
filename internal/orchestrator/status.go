package orchestrator

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"gend/pkg/types"
)

// routerStats aggregates the mutable bookkeeping behind GET /status.
type routerStats struct {
	mu          sync.Mutex
	state       State
	activeModel string
	lastErr     string
	loads       uint64
	generations uint64
	interrupts  uint64
	startTime   time.Time
}

func (s *routerStats) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *routerStats) setActiveModel(id string) {
	s.mu.Lock()
	s.activeModel = id
	s.mu.Unlock()
}

func (s *routerStats) noteLoad() {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()
}

func (s *routerStats) noteGeneration() {
	s.mu.Lock()
	s.generations++
	s.mu.Unlock()
}

func (s *routerStats) noteInterrupt() {
	s.mu.Lock()
	s.interrupts++
	s.mu.Unlock()
}

func (s *routerStats) noteError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

// Status builds a detailed status response for /status.
func (r *Router) Status() types.StatusResponse {
	r.stats.mu.Lock()
	resp := types.StatusResponse{
		State:            string(r.stats.state),
		ActiveModel:      r.stats.activeModel,
		LoadsTotal:       r.stats.loads,
		GenerationsTotal: r.stats.generations,
		InterruptsTotal:  r.stats.interrupts,
		LastError:        r.stats.lastErr,
		UptimeSeconds:    int64(time.Since(r.stats.startTime).Seconds()),
	}
	r.stats.mu.Unlock()

	resp.ServerTimeUnix = time.Now().Unix()
	resp.CachedResources = r.pool.Resolved()
	resp.InterruptPending = r.flag.IsSet()
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.Memory = types.MemoryStatus{
			TotalMB:     int(vm.Total / (1024 * 1024)),
			AvailableMB: int(vm.Available / (1024 * 1024)),
			UsedPercent: vm.UsedPercent,
		}
	}
	return resp
}
