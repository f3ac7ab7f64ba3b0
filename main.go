package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nikolanovoselec/codeflare-sub001/access"
	"github.com/nikolanovoselec/codeflare-sub001/auth"
	"github.com/nikolanovoselec/codeflare-sub001/config"
	"github.com/nikolanovoselec/codeflare-sub001/consul"
	"github.com/nikolanovoselec/codeflare-sub001/container"
	"github.com/nikolanovoselec/codeflare-sub001/handler"
	"github.com/nikolanovoselec/codeflare-sub001/hub"
	"github.com/nikolanovoselec/codeflare-sub001/nomad"
	"github.com/nikolanovoselec/codeflare-sub001/probe"
	"github.com/nikolanovoselec/codeflare-sub001/storage"
	"github.com/nikolanovoselec/codeflare-sub001/store"
)

var Version = "dev"

func main() {
	cfg := config.Load()

	// Database
	db, err := store.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		log.Fatalf("migration: %v", err)
	}

	// Nomad (container runtime)
	nomadClient, err := nomad.NewClient(cfg.NomadAddr)
	if err != nil {
		log.Fatalf("nomad: %v", err)
	}
	if err := nomadClient.Healthy(); err != nil {
		log.Printf("WARNING: nomad not healthy (%v)", err)
	} else {
		log.Println("nomad connected at " + cfg.NomadAddr)
	}

	// Consul (container service catalog)
	consulClient, err := consul.NewClient(cfg.ConsulAddr)
	if err != nil {
		log.Fatalf("consul: %v", err)
	}
	if err := consulClient.Healthy(); err != nil {
		log.Printf("WARNING: consul not healthy (%v)", err)
	} else {
		log.Println("consul connected at " + cfg.ConsulAddr)
	}

	// R2
	var r2Client *storage.Client
	if cfg.R2Endpoint != "" {
		r2Client, err = storage.NewClient(storage.Config{
			Endpoint:  cfg.R2Endpoint,
			AccessKey: cfg.R2AccessKey,
			SecretKey: cfg.R2SecretKey,
			Region:    cfg.R2Region,
			UseSSL:    cfg.R2UseSSL,
		})
		if err != nil {
			log.Printf("WARNING: R2 unavailable (%v)", err)
		} else {
			log.Println("R2 connected at " + cfg.R2Endpoint)
		}
	}

	// WebSocket hub
	allowedOrigins := []string{"http://localhost:5173", "http://localhost:3000"}
	if cfg.AllowedOrigins != "" {
		for _, o := range strings.Split(cfg.AllowedOrigins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	ws := hub.New(allowedOrigins)

	// Startup probes: one breaker per downstream, shared across requests.
	runtimeBreaker := probe.NewBreaker("runtime", cfg.BreakerFailures, cfg.BreakerCooldown)
	prober := probe.NewProber(
		probe.NewBreaker("health", cfg.BreakerFailures, cfg.BreakerCooldown),
		probe.NewBreaker("sessions", cfg.BreakerFailures, cfg.BreakerCooldown),
		cfg.ProbeTimeout,
	)

	resolver := &container.CatalogResolver{Sessions: db, Catalog: consulClient}

	// Handler
	h := handler.New(db, resolver, nomadClient, nomadClient, consulClient,
		r2Client, ws, cfg, prober, runtimeBreaker)

	// Access policy synchronizer
	syncCtx, stopSync := context.WithCancel(context.Background())
	defer stopSync()
	if cfg.AccessPolicyFile != "" && cfg.CFAPIToken != "" {
		syncer := &access.Syncer{
			PolicyFile: cfg.AccessPolicyFile,
			AccountID:  cfg.CFAccountID,
			AppID:      cfg.CFAccessAppID,
			PolicyID:   cfg.CFAccessPolicyID,
			APIToken:   cfg.CFAPIToken,
			Interval:   cfg.AccessSyncInterval,
		}
		go syncer.Run(syncCtx)
		log.Println("access policy sync enabled from " + cfg.AccessPolicyFile)
	}

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Cf-Access-Jwt-Assertion"},
		AllowCredentials: true,
	}))

	// CF Access auth
	if cfg.CFAccessTeamDomain != "" && cfg.CFAccessAUD != "" {
		validator := auth.NewValidator(cfg.CFAccessTeamDomain, cfg.CFAccessAUD)
		r.Use(validator.Middleware)
		log.Println("CF Access auth enabled")
	}

	// Bearer token auth
	if cfg.APIToken != "" {
		r.Use(bearerAuth(cfg.APIToken))
		log.Println("API token auth enabled")
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"version": Version})
		})

		r.Route("/container", func(r chi.Router) {
			r.Get("/startup-status", h.StartupStatus)
			r.Post("/startup-status/reset", h.ResetStartupProbes)
		})

		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions", h.CreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(handler.ValidateSessionID)
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
		})

		r.Get("/kv/{key}", h.GetKV)
		r.Put("/kv/{key}", h.PutKV)
		r.Delete("/kv/{key}", h.DeleteKV)

		r.Route("/r2", func(r chi.Router) {
			r.Get("/", h.ListR2Objects)
			r.Get("/object/*", h.GetR2Object)
			r.Put("/object/*", h.PutR2Object)
			r.Delete("/object/*", h.DeleteR2Object)
		})
	})

	r.Get("/ws", ws.HandleConnect)

	// Serve UI static files
	if cfg.UIDir != "" {
		fileServer(r, cfg.UIDir)
	}

	srv := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("codeflare %s listening on %s:%s", Version, cfg.BindAddr, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/ws" || r.URL.Path == "/api/health" || r.URL.Path == "/api/version" {
				next.ServeHTTP(w, r)
				return
			}
			// Browser requests carry a validated CF Access identity instead.
			if auth.EmailFromContext(r.Context()) != "" {
				next.ServeHTTP(w, r)
				return
			}
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(header[7:]), []byte(token)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func fileServer(r chi.Router, dir string) {
	fs := http.FileServer(http.Dir(dir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(dir + r.URL.Path); os.IsNotExist(err) {
			http.ServeFile(w, r, dir+"/index.html")
			return
		}
		fs.ServeHTTP(w, r)
	})
}
