package access

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "access-policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSyncOncePushesMembers(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer cf-token" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writePolicy(t, dir, "application: codeflare\nemails:\n  - Bob@example.com\n  - alice@example.com\n  - alice@example.com\n")

	s := &Syncer{
		PolicyFile: path,
		AccountID:  "acct1",
		AppID:      "app1",
		PolicyID:   "pol1",
		APIToken:   "cf-token",
		Client:     srv.Client(),
		BaseURL:    srv.URL,
	}
	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("SyncOnce: %v", err)
	}

	if gotPath != "/accounts/acct1/access/apps/app1/policies/pol1" {
		t.Errorf("path = %q", gotPath)
	}
	includes, _ := gotBody["include"].([]any)
	if len(includes) != 2 {
		t.Fatalf("pushed %d includes, want 2 (normalized, deduplicated)", len(includes))
	}
}

func TestSyncOnceSkipsWhenUnchanged(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writePolicy(t, dir, "application: codeflare\nemails: [alice@example.com]\n")

	s := &Syncer{PolicyFile: path, Client: srv.Client(), BaseURL: srv.URL}
	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("first SyncOnce: %v", err)
	}
	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("second SyncOnce: %v", err)
	}
	if calls != 1 {
		t.Errorf("API called %d times, want 1 (no drift)", calls)
	}
}

func TestSyncOnceAPIFailureKeepsDrift(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := writePolicy(t, dir, "application: codeflare\nemails: [alice@example.com]\n")

	s := &Syncer{PolicyFile: path, Client: srv.Client(), BaseURL: srv.URL}
	if err := s.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected error from failed push")
	}
	// A failed push must not be recorded as applied.
	if err := s.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected retry to push again and fail")
	}
	if calls != 2 {
		t.Errorf("API called %d times, want 2 (retry after failure)", calls)
	}
}

func TestSyncOnceBadPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "emails: [alice@example.com]\n") // application missing

	s := &Syncer{PolicyFile: path, Client: http.DefaultClient, BaseURL: "http://127.0.0.1:1"}
	if err := s.SyncOnce(context.Background()); err == nil {
		t.Fatal("expected error for invalid policy file")
	}
}
