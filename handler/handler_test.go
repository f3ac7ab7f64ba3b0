package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nikolanovoselec/codeflare-sub001/auth"
	"github.com/nikolanovoselec/codeflare-sub001/config"
	"github.com/nikolanovoselec/codeflare-sub001/container"
	"github.com/nikolanovoselec/codeflare-sub001/model"
	"github.com/nikolanovoselec/codeflare-sub001/probe"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	sessions map[string]*model.Session
	kv       map[string]json.RawMessage
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: map[string]*model.Session{},
		kv:       map[string]json.RawMessage{},
	}
}

func (f *fakeStore) Healthy(ctx context.Context) error { return nil }

func (f *fakeStore) CreateSession(ctx context.Context, email, name string) (*model.Session, error) {
	s := &model.Session{
		ID:         uuid.NewString(),
		Email:      email,
		Name:       name,
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s not found", id)
	}
	return s, nil
}

func (f *fakeStore) ListSessions(ctx context.Context, email string) ([]model.Session, error) {
	var out []model.Session
	for _, s := range f.sessions {
		if s.Email == email {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) TouchSession(ctx context.Context, id string) error { return nil }

func (f *fakeStore) DeleteSession(ctx context.Context, id, email string) error {
	s, ok := f.sessions[id]
	if !ok || s.Email != email {
		return fmt.Errorf("session %s not found", id)
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeStore) GetKV(ctx context.Context, email, key string) (*model.KVEntry, error) {
	v, ok := f.kv[email+"/"+key]
	if !ok {
		return nil, fmt.Errorf("key %s not found", key)
	}
	return &model.KVEntry{Key: key, Value: v, UpdatedAt: time.Now()}, nil
}

func (f *fakeStore) PutKV(ctx context.Context, email, key string, value json.RawMessage) error {
	f.kv[email+"/"+key] = value
	return nil
}

func (f *fakeStore) DeleteKV(ctx context.Context, email, key string) error {
	delete(f.kv, email+"/"+key)
	return nil
}

// fakeRuntime is a scripted platform state lookup.
type fakeRuntime struct {
	state string
	err   error
	calls int32
}

func (f *fakeRuntime) ContainerState(ctx context.Context, containerID string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.state, f.err
}

// fakeResolver returns a fixed handle.
type fakeResolver struct {
	handle *container.Handle
	err    error
}

func (f *fakeResolver) Resolve(ctx context.Context, sessionID string) (*container.Handle, error) {
	return f.handle, f.err
}

func newTestHandler(st Store, resolver container.Resolver, runtime container.Runtime) *Handler {
	return New(
		st, resolver, runtime, nil, nil, nil, nil,
		&config.Config{},
		probe.NewProber(
			probe.NewBreaker("health", 3, time.Minute),
			probe.NewBreaker("sessions", 3, time.Minute),
			time.Second,
		),
		probe.NewBreaker("runtime", 3, time.Minute),
	)
}

func authedRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	return req.WithContext(auth.WithEmail(req.Context(), "alice@example.com"))
}

func TestHealthEndpointReportsBreakers(t *testing.T) {
	h := newTestHandler(nil, &fakeResolver{}, &fakeRuntime{})

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest("GET", "/api/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		Status   string            `json:"status"`
		Breakers map[string]string `json:"breakers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
	for _, name := range []string{"runtime", "health", "sessions"} {
		if resp.Breakers[name] != "closed" {
			t.Errorf("breaker %s = %q, want closed", name, resp.Breakers[name])
		}
	}
}
