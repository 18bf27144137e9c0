package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/sweeptower/pkg/observability"
	"github.com/matzehuels/sweeptower/pkg/sweep"
)

// =============================================================================
// Progress Tracker
// =============================================================================

// tracker collects sweep and transport events for the status endpoint and
// the run summary. It implements observability.SweepHooks and
// observability.TransportHooks.
type tracker struct {
	mu         sync.Mutex
	start      time.Time
	partitions map[int]*partitionStatus
	sends      int
	sentBytes  int
	errors     int
}

type partitionStatus struct {
	states    map[int]string
	sweeps    int
	chunks    int
	recvBytes int
	lastSweep time.Duration
	err       string
}

// partitionSnapshot is the JSON view of one partition.
type partitionSnapshot struct {
	Partition     int    `json:"partition"`
	Sweeps        int    `json:"sweeps"`
	FinishedSets  int    `json:"finished_sets"`
	AngleSets     int    `json:"angle_sets"`
	Chunks        int    `json:"chunks_received"`
	BytesReceived int    `json:"bytes_received"`
	LastSweepMS   int64  `json:"last_sweep_ms"`
	Error         string `json:"error,omitempty"`
}

// statusSnapshot is the JSON body of GET /status.
type statusSnapshot struct {
	UptimeSeconds   int64               `json:"uptime_seconds"`
	Sends           int                 `json:"sends"`
	BytesSent       int                 `json:"bytes_sent"`
	TransportErrors int                 `json:"transport_errors"`
	Partitions      []partitionSnapshot `json:"partitions"`
}

func newTracker() *tracker {
	return &tracker{start: time.Now(), partitions: make(map[int]*partitionStatus)}
}

func (t *tracker) partition(p int) *partitionStatus {
	ps, ok := t.partitions[p]
	if !ok {
		ps = &partitionStatus{states: make(map[int]string)}
		t.partitions[p] = ps
	}
	return ps
}

func (t *tracker) OnAngleSetState(_ context.Context, partition, angleSet int, state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.partition(partition).states[angleSet] = state
}

func (t *tracker) OnChunkReceived(_ context.Context, partition, _, _, _, bytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ps := t.partition(partition)
	ps.chunks++
	ps.recvBytes += bytes
}

func (t *tracker) OnSweepComplete(_ context.Context, partition, n int, d time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ps := t.partition(partition)
	ps.sweeps = n
	ps.lastSweep = d
	if err != nil {
		ps.err = err.Error()
	}
}

func (t *tracker) OnSend(_ context.Context, _, _, _, bytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sends++
	t.sentBytes += bytes
}

func (t *tracker) OnTransportError(context.Context, string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors++
}

func (t *tracker) snapshot() statusSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := statusSnapshot{
		UptimeSeconds:   int64(time.Since(t.start).Seconds()),
		Sends:           t.sends,
		BytesSent:       t.sentBytes,
		TransportErrors: t.errors,
		Partitions:      make([]partitionSnapshot, 0, len(t.partitions)),
	}
	finished := sweep.Finished.String()
	for _, p := range slices.Sorted(maps.Keys(t.partitions)) {
		ps := t.partitions[p]
		snap := partitionSnapshot{
			Partition:     p,
			Sweeps:        ps.sweeps,
			AngleSets:     len(ps.states),
			Chunks:        ps.chunks,
			BytesReceived: ps.recvBytes,
			LastSweepMS:   ps.lastSweep.Milliseconds(),
			Error:         ps.err,
		}
		for _, st := range ps.states {
			if st == finished {
				snap.FinishedSets++
			}
		}
		s.Partitions = append(s.Partitions, snap)
	}
	return s
}

// progressLine summarizes the run for the spinner.
func (t *tracker) progressLine() string {
	s := t.snapshot()
	sweeps, finished, sets := 0, 0, 0
	for _, ps := range s.Partitions {
		sweeps = max(sweeps, ps.Sweeps)
		finished += ps.FinishedSets
		sets += ps.AngleSets
	}
	return fmt.Sprintf("sweep %d · %d/%d angle sets finished", sweeps+1, finished, sets)
}

var (
	_ observability.SweepHooks     = (*tracker)(nil)
	_ observability.TransportHooks = (*tracker)(nil)
)

// =============================================================================
// Status Server
// =============================================================================

// statusRouter serves the tracker as JSON:
//
//	GET /healthz             liveness
//	GET /status              all partitions
//	GET /status/{partition}  one partition
func statusRouter(t *tracker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, t.snapshot())
	})
	r.Get("/status/{partition}", func(w http.ResponseWriter, r *http.Request) {
		p, err := strconv.Atoi(chi.URLParam(r, "partition"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "partition must be an integer"})
			return
		}
		for _, ps := range t.snapshot().Partitions {
			if ps.Partition == p {
				writeJSON(w, http.StatusOK, ps)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown partition"})
	})
	return r
}

// statusServer runs statusRouter on its own listener for the lifetime of
// a run.
type statusServer struct {
	server   *http.Server
	listener net.Listener
}

func startStatusServer(ctx context.Context, addr string, h http.Handler, logger *log.Logger) (*statusServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("status endpoint stopped", "err", err)
		}
	}()
	logger.Info("status endpoint", "url", "http://"+ln.Addr().String()+"/status")
	return &statusServer{server: srv, listener: ln}, nil
}

// Addr returns the bound address.
func (s *statusServer) Addr() string { return s.listener.Addr().String() }

// Shutdown waits up to two seconds for in-flight requests.
func (s *statusServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
