package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nikolanovoselec/codeflare-sub001/config"
	"github.com/nikolanovoselec/codeflare-sub001/consul"
	"github.com/nikolanovoselec/codeflare-sub001/container"
	"github.com/nikolanovoselec/codeflare-sub001/hub"
	"github.com/nikolanovoselec/codeflare-sub001/model"
	"github.com/nikolanovoselec/codeflare-sub001/nomad"
	"github.com/nikolanovoselec/codeflare-sub001/probe"
	"github.com/nikolanovoselec/codeflare-sub001/storage"
)

// Store is the slice of the persistence layer the handlers use.
type Store interface {
	Healthy(ctx context.Context) error
	CreateSession(ctx context.Context, email, name string) (*model.Session, error)
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, email string) ([]model.Session, error)
	TouchSession(ctx context.Context, id string) error
	DeleteSession(ctx context.Context, id, email string) error
	GetKV(ctx context.Context, email, key string) (*model.KVEntry, error)
	PutKV(ctx context.Context, email, key string, value json.RawMessage) error
	DeleteKV(ctx context.Context, email, key string) error
}

type Handler struct {
	store    Store
	resolver container.Resolver
	runtime  container.Runtime
	nomad    *nomad.Client  // nil when the platform was unreachable at boot
	consul   *consul.Client // likewise
	r2       *storage.Client
	ws       *hub.Hub
	cfg      *config.Config

	prober         *probe.Prober
	runtimeBreaker *probe.Breaker
}

func New(st Store, resolver container.Resolver, runtime container.Runtime,
	n *nomad.Client, c *consul.Client, r2 *storage.Client, ws *hub.Hub,
	cfg *config.Config, prober *probe.Prober, runtimeBreaker *probe.Breaker) *Handler {
	return &Handler{
		store:          st,
		resolver:       resolver,
		runtime:        runtime,
		nomad:          n,
		consul:         c,
		r2:             r2,
		ws:             ws,
		cfg:            cfg,
		prober:         prober,
		runtimeBreaker: runtimeBreaker,
	}
}

// ValidateSessionID is middleware that rejects requests whose {id} path
// parameter is not a UUID.
func ValidateSessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id != "" {
			if _, err := uuid.Parse(id); err != nil {
				writeError(w, http.StatusBadRequest, "invalid session id")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
