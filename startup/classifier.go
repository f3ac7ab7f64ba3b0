// Package startup classifies a container's boot progress from probe signals.
// Classification is a pure function: same signals in, same stage out.
package startup

import (
	"fmt"

	"github.com/nikolanovoselec/codeflare-sub001/probe"
)

// Stage is one discrete point in the container startup lifecycle.
type Stage string

const (
	StageStopped   Stage = "stopped"
	StageStarting  Stage = "starting"
	StageSyncing   Stage = "syncing"
	StageVerifying Stage = "verifying"
	StageMounting  Stage = "mounting"
	StageReady     Stage = "ready"
	StageError     Stage = "error"
)

// Signals are everything Classify looks at. The probes have already degraded
// their failures into booleans, so classification needs no error handling.
type Signals struct {
	RuntimeFailed bool   // the platform state lookup itself failed
	RuntimeState  string // raw platform state string, e.g. "running", "stopping"
	HealthOK      bool
	Health        probe.HealthData
	SessionsReady bool

	// Identity context, echoed into details when known.
	ContainerID string
	Bucket      string
	Email       string
}

// Status is the response body the polling client consumes. The endpoint
// always returns it with HTTP 200; only Stage and Error signal failure.
type Status struct {
	Stage    Stage          `json:"stage"`
	Progress int            `json:"progress"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details"`
	Error    string         `json:"error,omitempty"`
}

// RuntimeUp reports whether a platform state string counts as up.
func RuntimeUp(state string) bool {
	return state == "running" || state == "healthy"
}

// Classify maps one snapshot of signals to a startup stage. First matching
// rule wins; progress values are fixed waypoints so two snapshots that land
// in the same stage by the same path report the same number.
func Classify(sig Signals) Status {
	details := map[string]any{}
	if sig.ContainerID != "" {
		details["containerId"] = sig.ContainerID
	}
	if sig.Bucket != "" {
		details["bucket"] = sig.Bucket
	}
	if sig.Email != "" {
		details["email"] = sig.Email
	}

	if sig.RuntimeFailed {
		return Status{
			Stage:    StageStopped,
			Progress: 0,
			Message:  "Container not running",
			Details:  details,
		}
	}

	details["containerStatus"] = sig.RuntimeState

	if !RuntimeUp(sig.RuntimeState) {
		return Status{
			Stage:    StageStarting,
			Progress: 10,
			Message:  fmt.Sprintf("Container starting (status: %s)", sig.RuntimeState),
			Details:  details,
		}
	}

	details["healthServerOk"] = sig.HealthOK

	if !sig.HealthOK {
		return Status{
			Stage:    StageStarting,
			Progress: 20,
			Message:  "Waiting for container services...",
			Details:  details,
		}
	}

	h := sig.Health
	if h.SyncStatus != "" {
		details["syncStatus"] = h.SyncStatus
	}
	if h.SyncError != "" {
		details["syncError"] = h.SyncError
	}
	if h.CPU != "" {
		details["cpu"] = h.CPU
	}
	if h.Mem != "" {
		details["mem"] = h.Mem
	}
	if h.HDD != "" {
		details["hdd"] = h.HDD
	}
	details["terminalServerOk"] = sig.SessionsReady

	if sig.SessionsReady {
		// Absent prewarmReady means the image predates pre-warming; treat
		// it as complete.
		if h.PrewarmReady != nil && !*h.PrewarmReady {
			return Status{
				Stage:    StageMounting,
				Progress: 90,
				Message:  "Preparing terminal...",
				Details:  details,
			}
		}
		return Status{
			Stage:    StageReady,
			Progress: 100,
			Message:  readyMessage(h),
			Details:  details,
		}
	}

	switch h.SyncStatus {
	case "pending":
		return Status{
			Stage:    StageSyncing,
			Progress: 30,
			Message:  "Syncing user data...",
			Details:  details,
		}
	case "syncing":
		return Status{
			Stage:    StageSyncing,
			Progress: 45,
			Message:  "Syncing user data...",
			Details:  details,
		}
	case "failed":
		reason := h.SyncError
		if reason == "" {
			reason = "R2 sync failed"
		}
		return Status{
			Stage:    StageError,
			Progress: 0,
			Message:  reason,
			Details:  details,
			Error:    reason,
		}
	default:
		// Sync finished (or never ran) but the session endpoint is not
		// answering yet.
		return Status{
			Stage:    StageVerifying,
			Progress: 85,
			Message:  "Verifying terminal sessions...",
			Details:  details,
		}
	}
}

func readyMessage(h probe.HealthData) string {
	switch h.SyncStatus {
	case "syncing":
		return "Ready (sync in progress)"
	case "success":
		return "Ready (R2 sync complete)"
	case "skipped":
		reason := h.SyncError
		if reason == "" {
			reason = "sync not configured"
		}
		return fmt.Sprintf("Ready (sync skipped: %s)", reason)
	default:
		return "Ready"
	}
}

// Failure is the catch-all status for faults the orchestration did not
// anticipate. Internal error detail stays in server logs.
func Failure() Status {
	return Status{
		Stage:    StageError,
		Progress: 0,
		Message:  "Unable to determine container status",
		Details:  map[string]any{},
	}
}
