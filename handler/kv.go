package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikolanovoselec/codeflare-sub001/auth"
)

// maxKVValueBytes bounds a single KV value; the UI stores layout and
// preference blobs, not workspace data.
const maxKVValueBytes = 256 * 1024

func (h *Handler) GetKV(w http.ResponseWriter, r *http.Request) {
	email := auth.EmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}

	entry, err := h.store.GetKV(r.Context(), email, chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	writeJSON(w, entry)
}

func (h *Handler) PutKV(w http.ResponseWriter, r *http.Request) {
	email := auth.EmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxKVValueBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) > maxKVValueBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "value too large")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "value must be valid JSON")
		return
	}

	if err := h.store.PutKV(r.Context(), email, chi.URLParam(r, "key"), body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handler) DeleteKV(w http.ResponseWriter, r *http.Request) {
	email := auth.EmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "no identity")
		return
	}

	if err := h.store.DeleteKV(r.Context(), email, chi.URLParam(r, "key")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}
