package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds a single probe call end to end.
const DefaultTimeout = 3 * time.Second

// HealthData is the payload of the in-container health endpoint. Every field
// is optional: older container images omit the newer ones.
type HealthData struct {
	SyncStatus   string `json:"syncStatus,omitempty"`
	SyncError    string `json:"syncError,omitempty"`
	TerminalPid  int    `json:"terminalPid,omitempty"`
	PrewarmReady *bool  `json:"prewarmReady,omitempty"`
	CPU          string `json:"cpu,omitempty"`
	Mem          string `json:"mem,omitempty"`
	HDD          string `json:"hdd,omitempty"`
}

// Prober issues bounded, breaker-guarded GETs against a container's internal
// endpoints. Failures of any kind degrade to a false "ok" signal; they never
// propagate as errors.
type Prober struct {
	Health   *Breaker
	Sessions *Breaker
	Timeout  time.Duration
	Client   *http.Client
}

func NewProber(health, sessions *Breaker, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		Health:   health,
		Sessions: sessions,
		Timeout:  timeout,
		// The transport deadline matches the wrapper's so an abandoned call
		// releases its connection instead of lingering.
		Client: &http.Client{Timeout: timeout},
	}
}

// CheckHealth fetches the container's health endpoint. It reports ok only for
// a 2xx response whose body parses; a malformed payload is treated the same
// as an unreachable endpoint, never partially trusted.
func (p *Prober) CheckHealth(ctx context.Context, baseURL string) (HealthData, bool) {
	var data HealthData
	err := p.Health.Execute(func() error {
		return WithTimeout(ctx, p.Timeout, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
			if err != nil {
				return err
			}
			resp, err := p.Client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("health endpoint returned %d", resp.StatusCode)
			}
			var parsed HealthData
			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				return fmt.Errorf("health payload: %w", err)
			}
			data = parsed
			return nil
		})
	})
	if err != nil {
		return HealthData{}, false
	}
	return data, true
}

// SessionsReady reports whether the container's terminal subsystem answers
// its session-listing endpoint. Only the status class matters; the body is
// discarded.
func (p *Prober) SessionsReady(ctx context.Context, baseURL string) bool {
	err := p.Sessions.Execute(func() error {
		return WithTimeout(ctx, p.Timeout, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/sessions", nil)
			if err != nil {
				return err
			}
			resp, err := p.Client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			io.Copy(io.Discard, resp.Body)
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return fmt.Errorf("sessions endpoint returned %d", resp.StatusCode)
			}
			return nil
		})
	})
	return err == nil
}
