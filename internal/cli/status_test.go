package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/sweeptower/pkg/sweep"
)

func TestTrackerSnapshot(t *testing.T) {
	tr := newTracker()
	ctx := context.Background()
	tr.OnAngleSetState(ctx, 1, 0, sweep.Finished.String())
	tr.OnAngleSetState(ctx, 1, 1, sweep.Receiving.String())
	tr.OnAngleSetState(ctx, 0, 0, sweep.Finished.String())
	tr.OnChunkReceived(ctx, 1, 0, 0, 0, 64)
	tr.OnChunkReceived(ctx, 1, 0, 0, 1, 32)
	tr.OnSweepComplete(ctx, 1, 2, 15*time.Millisecond, errors.New("boom"))
	tr.OnSend(ctx, 0, 1, 1000, 96)
	tr.OnTransportError(ctx, "recv", errors.New("x"))

	s := tr.snapshot()
	if s.Sends != 1 || s.BytesSent != 96 || s.TransportErrors != 1 {
		t.Errorf("transport counters = %+v", s)
	}
	if len(s.Partitions) != 2 || s.Partitions[0].Partition != 0 {
		t.Fatalf("partitions not sorted: %+v", s.Partitions)
	}
	p1 := s.Partitions[1]
	want := partitionSnapshot{
		Partition: 1, Sweeps: 2, FinishedSets: 1, AngleSets: 2,
		Chunks: 2, BytesReceived: 96, LastSweepMS: 15, Error: "boom",
	}
	if p1 != want {
		t.Errorf("partition 1 = %+v, want %+v", p1, want)
	}
	if line := tr.progressLine(); line != "sweep 3 · 2/3 angle sets finished" {
		t.Errorf("progressLine() = %q", line)
	}
}

func TestStatusRouter(t *testing.T) {
	tr := newTracker()
	tr.OnSweepComplete(context.Background(), 2, 4, time.Millisecond, nil)
	h := statusRouter(tr)

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/healthz", http.StatusOK, `"status":"ok"`},
		{"/status", http.StatusOK, `"partition":2`},
		{"/status/2", http.StatusOK, `"sweeps":4`},
		{"/status/7", http.StatusNotFound, "unknown partition"},
		{"/status/x", http.StatusBadRequest, "integer"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.status)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("GET %s body %q lacks %q", tt.path, rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestStatusServer(t *testing.T) {
	tr := newTracker()
	srv, err := startStatusServer(context.Background(), "127.0.0.1:0", statusRouter(tr), newLogger(&strings.Builder{}, LogInfo))
	if err != nil {
		t.Fatalf("startStatusServer() error: %v", err)
	}
	defer srv.Shutdown()

	resp, err := http.Get("http://" + srv.Addr() + "/status")
	if err != nil {
		t.Fatalf("GET /status error: %v", err)
	}
	defer resp.Body.Close()

	var body statusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Partitions == nil || len(body.Partitions) != 0 {
		t.Errorf("Partitions = %v, want empty list", body.Partitions)
	}
}
