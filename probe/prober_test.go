package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestProber(timeout time.Duration) *Prober {
	return NewProber(
		NewBreaker("health", 3, time.Minute),
		NewBreaker("sessions", 3, time.Minute),
		timeout,
	)
}

func TestCheckHealthParsesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %q, want /health", r.URL.Path)
		}
		w.Write([]byte(`{"syncStatus":"syncing","syncError":"","terminalPid":42,"prewarmReady":false,"cpu":"25%","mem":"1.2G"}`))
	}))
	defer srv.Close()

	p := newTestProber(time.Second)
	data, ok := p.CheckHealth(context.Background(), srv.URL)
	if !ok {
		t.Fatal("CheckHealth ok = false, want true")
	}
	if data.SyncStatus != "syncing" {
		t.Errorf("SyncStatus = %q", data.SyncStatus)
	}
	if data.TerminalPid != 42 {
		t.Errorf("TerminalPid = %d", data.TerminalPid)
	}
	if data.PrewarmReady == nil || *data.PrewarmReady {
		t.Errorf("PrewarmReady = %v, want false", data.PrewarmReady)
	}
	if data.CPU != "25%" || data.Mem != "1.2G" {
		t.Errorf("metrics = %q/%q", data.CPU, data.Mem)
	}
}

func TestCheckHealthOlderImagePayload(t *testing.T) {
	// Older container images omit prewarmReady and the metrics fields.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"syncStatus":"success"}`))
	}))
	defer srv.Close()

	p := newTestProber(time.Second)
	data, ok := p.CheckHealth(context.Background(), srv.URL)
	if !ok {
		t.Fatal("CheckHealth ok = false, want true")
	}
	if data.PrewarmReady != nil {
		t.Errorf("PrewarmReady = %v, want nil for absent field", data.PrewarmReady)
	}
	if data.SyncStatus != "success" {
		t.Errorf("SyncStatus = %q", data.SyncStatus)
	}
}

func TestCheckHealthNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "still booting", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newTestProber(time.Second)
	data, ok := p.CheckHealth(context.Background(), srv.URL)
	if ok {
		t.Error("CheckHealth ok = true for 503")
	}
	if data != (HealthData{}) {
		t.Errorf("data = %+v, want zero value", data)
	}
}

func TestCheckHealthMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json`))
	}))
	defer srv.Close()

	p := newTestProber(time.Second)
	data, ok := p.CheckHealth(context.Background(), srv.URL)
	if ok {
		t.Error("CheckHealth ok = true for malformed body")
	}
	if data != (HealthData{}) {
		t.Errorf("data = %+v, want zero value (never partially trusted)", data)
	}
}

func TestCheckHealthUnreachable(t *testing.T) {
	p := newTestProber(time.Second)
	_, ok := p.CheckHealth(context.Background(), "http://127.0.0.1:1")
	if ok {
		t.Error("CheckHealth ok = true for unreachable host")
	}
}

func TestCheckHealthTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	p := newTestProber(50 * time.Millisecond)
	start := time.Now()
	_, ok := p.CheckHealth(context.Background(), srv.URL)
	if ok {
		t.Error("CheckHealth ok = true for slow endpoint")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("CheckHealth took %v, should give up at the deadline", elapsed)
	}
}

func TestCheckHealthBreakerOpenSkipsCall(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := newTestProber(time.Second)
	for i := 0; i < 3; i++ {
		p.Health.Execute(func() error { return errBoom })
	}

	_, ok := p.CheckHealth(context.Background(), srv.URL)
	if ok {
		t.Error("CheckHealth ok = true while breaker open")
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Errorf("container was hit %d times while breaker open", n)
	}
}

func TestSessionsReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions" {
			t.Errorf("path = %q, want /sessions", r.URL.Path)
		}
		w.Write([]byte(`[{"id":"tty-0"}]`))
	}))
	defer srv.Close()

	p := newTestProber(time.Second)
	if !p.SessionsReady(context.Background(), srv.URL) {
		t.Error("SessionsReady = false for 200 response")
	}
}

func TestSessionsReadyNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no terminal yet", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := newTestProber(time.Second)
	if p.SessionsReady(context.Background(), srv.URL) {
		t.Error("SessionsReady = true for 503 response")
	}
}

func TestSessionsReadyBreakerIndependentOfHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestProber(time.Second)
	// Trip the health breaker; the sessions probe must be unaffected.
	for i := 0; i < 3; i++ {
		p.Health.Execute(func() error { return errBoom })
	}

	if !p.SessionsReady(context.Background(), srv.URL) {
		t.Error("SessionsReady = false after unrelated health breaker opened")
	}
}
