package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ktrade/sentinel/internal/heartbeat"
	"github.com/ktrade/sentinel/internal/store"
	"github.com/ktrade/sentinel/internal/supervisor"
)

type fakeStore struct {
	store.Store
	runs []store.RunRecord
	err  error
}

func (f *fakeStore) RecentRuns(_ context.Context, limit int) ([]store.RunRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.runs) {
		limit = len(f.runs)
	}
	return f.runs[:limit], nil
}

func newTestRouter(t *testing.T, st store.Store) (*Router, string) {
	t.Helper()
	dir := t.TempDir()
	hbPath := filepath.Join(dir, "heartbeat.txt")
	monitor := heartbeat.NewMonitor(hbPath, 10*time.Minute)
	sup := supervisor.New(supervisor.Options{
		PIDFile: filepath.Join(dir, "bot.pid"),
	}, nil)
	return NewRouter(monitor, sup, st), hbPath
}

func TestStatusEndpoint(t *testing.T) {
	r, hbPath := newTestRouter(t, &fakeStore{})
	if err := heartbeat.Write(hbPath, time.Now()); err != nil {
		t.Fatalf("write heartbeat: %v", err)
	}
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code: %d", resp.StatusCode)
	}
	var body struct {
		ProcessState string  `json:"process_state"`
		Heartbeat    string  `json:"heartbeat"`
		HeartbeatAge float64 `json:"heartbeat_age_seconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ProcessState != "stopped" {
		t.Fatalf("process_state: %q", body.ProcessState)
	}
	if body.Heartbeat != "fresh" {
		t.Fatalf("heartbeat: %q", body.Heartbeat)
	}
	if body.HeartbeatAge < 0 || body.HeartbeatAge > 60 {
		t.Fatalf("heartbeat age: %v", body.HeartbeatAge)
	}
}

func TestStatusMissingHeartbeat(t *testing.T) {
	r, _ := newTestRouter(t, &fakeStore{})
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Heartbeat string `json:"heartbeat"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Heartbeat != "missing" {
		t.Fatalf("heartbeat: %q", body.Heartbeat)
	}
}

func TestRunsEndpoint(t *testing.T) {
	st := &fakeStore{runs: []store.RunRecord{
		{ID: "opt-1", Date: time.Now(), Outcome: "success"},
		{ID: "opt-2", Date: time.Now(), Outcome: "refused"},
	}}
	r, _ := newTestRouter(t, st)
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs?limit=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var body []struct {
		ID      string `json:"id"`
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 || body[0].ID != "opt-1" {
		t.Fatalf("runs: %+v", body)
	}
}

func TestRunsRejectsBadLimit(t *testing.T) {
	r, _ := newTestRouter(t, &fakeStore{})
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/runs?limit=zero")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status code: %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeStore{})
	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code: %d", resp.StatusCode)
	}
}
