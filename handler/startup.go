package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/nikolanovoselec/codeflare-sub001/hub"
	"github.com/nikolanovoselec/codeflare-sub001/probe"
	"github.com/nikolanovoselec/codeflare-sub001/startup"
)

// StartupStatus classifies how far a user's container has come up. The UI
// polls it every few seconds during boot. It always answers 200: container
// trouble is reported through the stage and error fields, never the HTTP
// status.
func (h *Handler) StartupStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sessionId")
		return
	}

	st := h.startupStatus(r.Context(), sessionID)

	if h.ws != nil {
		h.ws.Broadcast(hub.Event{Type: "container.stage", SessionID: sessionID, Payload: st})
	}
	writeJSON(w, st)
}

// startupStatus gathers the signals in dependency order and feeds them to the
// classifier. Each step degrades its own failures; the recover is the last
// line of defense so the poller still gets a stage when something unexpected
// breaks. Detail stays in the server log.
func (h *Handler) startupStatus(ctx context.Context, sessionID string) (st startup.Status) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("startup: panic checking session %s: %v", sessionID, p)
			st = startup.Failure()
		}
	}()

	handle, err := h.resolver.Resolve(ctx, sessionID)
	if err != nil {
		log.Printf("startup: resolve session %s: %v", sessionID, err)
		return startup.Failure()
	}

	if h.store != nil {
		_ = h.store.TouchSession(ctx, sessionID)
	}

	sig := startup.Signals{
		ContainerID: handle.ID,
		Bucket:      handle.Bucket,
		Email:       handle.Email,
	}

	var state string
	err = h.runtimeBreaker.Execute(func() error {
		return probe.WithTimeout(ctx, h.prober.Timeout, func(ctx context.Context) error {
			s, err := h.runtime.ContainerState(ctx, handle.ID)
			if err != nil {
				return err
			}
			state = s
			return nil
		})
	})
	if err != nil {
		// Usually the job has never been registered for this user; report
		// stopped rather than error so the UI offers a start button.
		sig.RuntimeFailed = true
		return startup.Classify(sig)
	}
	sig.RuntimeState = state

	// Probes run only against an up container with a known address; anything
	// else would just burn breaker budget on guaranteed failures.
	if startup.RuntimeUp(state) && handle.Addr != "" {
		sig.Health, sig.HealthOK = h.prober.CheckHealth(ctx, handle.Addr)
		if sig.HealthOK {
			sig.SessionsReady = h.prober.SessionsReady(ctx, handle.Addr)
		}
	}

	return startup.Classify(sig)
}

// ResetStartupProbes closes all three circuit breakers. The UI calls it when
// the user manually retries after an outage, so the next poll probes the
// container again instead of waiting out cooldowns.
func (h *Handler) ResetStartupProbes(w http.ResponseWriter, r *http.Request) {
	h.runtimeBreaker.Reset()
	h.prober.Health.Reset()
	h.prober.Sessions.Reset()
	log.Println("startup: breakers reset")

	if h.ws != nil {
		h.ws.Broadcast(hub.Event{Type: "container.reset"})
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
