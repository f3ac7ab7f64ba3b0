package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikolanovoselec/codeflare-sub001/auth"
	"github.com/nikolanovoselec/codeflare-sub001/model"
)

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	email := auth.EmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}

	sessions, err := h.store.ListSessions(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	writeJSON(w, sessions)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	email := auth.EmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.store.CreateSession(r.Context(), email, req.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sess)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	email := auth.EmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}

	sess, err := h.store.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil || sess.Email != email {
		// Someone else's session looks the same as a missing one.
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, sess)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	email := auth.EmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}

	if err := h.store.DeleteSession(r.Context(), chi.URLParam(r, "id"), email); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}
