package system

import (
	"encoding/json"
	"math"
	"net/http"
	"sync/atomic"
	"time"
)

// Stats is the /status payload.
type Stats struct {
	Hits     uint64  `json:"hits"`
	Average  float64 `json:"hits-per-second,omitempty"`
	Uptime   float64 `json:"uptime,omitempty"`
	Accepted uint64  `json:"accepted"`
	Rejected uint64  `json:"rejected"`
}

// Stats returns a snapshot of the counters.
func (s *System) Stats() Stats {
	stats := Stats{
		Hits:     atomic.LoadUint64(&s.stats.hits),
		Accepted: atomic.LoadUint64(&s.stats.accepted),
		Rejected: atomic.LoadUint64(&s.stats.rejected),
	}
	if !s.stats.t1.IsZero() {
		stats.Uptime = time.Since(s.stats.t1).Truncate(time.Second).Seconds()
		if stats.Uptime > 0 {
			stats.Average = math.Round(float64(stats.Hits)/stats.Uptime*100) / 100
		}
	}
	return stats
}

func (s *System) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "bad method", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Stats()); err != nil {
		s.log.Debug().Err(err).Msg("error writing status")
	}
}
