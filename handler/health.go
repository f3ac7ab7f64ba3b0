package handler

import (
	"net/http"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	services := map[string]string{}

	if h.store != nil {
		if err := h.store.Healthy(r.Context()); err != nil {
			services["postgres"] = "down"
		} else {
			services["postgres"] = "up"
		}
	}

	if h.nomad != nil {
		if err := h.nomad.Healthy(); err != nil {
			services["nomad"] = "down"
		} else {
			services["nomad"] = "up"
		}
	}

	if h.consul != nil {
		if err := h.consul.Healthy(); err != nil {
			services["consul"] = "down"
		} else {
			services["consul"] = "up"
		}
	}

	if h.r2 != nil {
		if err := h.r2.Healthy(r.Context()); err != nil {
			services["r2"] = "down"
		} else {
			services["r2"] = "up"
		}
	}

	status := "ok"
	for _, v := range services {
		if v == "down" {
			status = "degraded"
			break
		}
	}

	writeJSON(w, map[string]interface{}{
		"status":   status,
		"services": services,
		"breakers": map[string]string{
			h.runtimeBreaker.Name():  h.runtimeBreaker.State(),
			h.prober.Health.Name():   h.prober.Health.State(),
			h.prober.Sessions.Name(): h.prober.Sessions.State(),
		},
	})
}
