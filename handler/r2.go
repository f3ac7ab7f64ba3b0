package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikolanovoselec/codeflare-sub001/auth"
	"github.com/nikolanovoselec/codeflare-sub001/container"
	"github.com/nikolanovoselec/codeflare-sub001/storage"
)

// userBucket resolves the caller's workspace bucket, or writes an error and
// returns "" when the proxy cannot serve the request.
func (h *Handler) userBucket(w http.ResponseWriter, r *http.Request) string {
	if h.r2 == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage not configured")
		return ""
	}
	email := auth.EmailFromContext(r.Context())
	if email == "" {
		writeError(w, http.StatusUnauthorized, "no identity")
		return ""
	}
	return container.BucketName(email)
}

func (h *Handler) ListR2Objects(w http.ResponseWriter, r *http.Request) {
	bucket := h.userBucket(w, r)
	if bucket == "" {
		return
	}

	objects, err := h.r2.ListObjects(r.Context(), bucket, r.URL.Query().Get("prefix"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if objects == nil {
		objects = []storage.ObjectInfo{}
	}
	writeJSON(w, objects)
}

func (h *Handler) GetR2Object(w http.ResponseWriter, r *http.Request) {
	bucket := h.userBucket(w, r)
	if bucket == "" {
		return
	}
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, http.StatusBadRequest, "object key is required")
		return
	}

	obj, err := h.r2.GetObject(r.Context(), bucket, key)
	if err != nil {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, obj)
}

func (h *Handler) PutR2Object(w http.ResponseWriter, r *http.Request) {
	bucket := h.userBucket(w, r)
	if bucket == "" {
		return
	}
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, http.StatusBadRequest, "object key is required")
		return
	}

	if err := h.r2.EnsureBucket(r.Context(), bucket); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := h.r2.PutObject(r.Context(), bucket, key, r.Body, r.ContentLength, contentType); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "key": key})
}

func (h *Handler) DeleteR2Object(w http.ResponseWriter, r *http.Request) {
	bucket := h.userBucket(w, r)
	if bucket == "" {
		return
	}
	key := chi.URLParam(r, "*")
	if key == "" {
		writeError(w, http.StatusBadRequest, "object key is required")
		return
	}

	if err := h.r2.RemoveObject(r.Context(), bucket, key); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}
