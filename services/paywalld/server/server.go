package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paywall/core/events"
	"paywall/native/paywall"
	"paywall/services/paywalld/index"
	"paywall/services/paywalld/middleware"
)

const maxBodyBytes = 1 << 16 // 64 KiB

// Config wires the HTTP surface to the engine and its supporting services.
type Config struct {
	Engine        *paywall.Engine
	Index         *index.Indexer
	Bus           *events.Bus
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Metrics       http.Handler
	Logger        *slog.Logger
}

// Server implements the paywall HTTP handlers.
type Server struct {
	engine    *paywall.Engine
	index     *index.Indexer
	bus       *events.Bus
	logger    *slog.Logger
	wsOrigins []string
}

// New builds the routed handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("server: engine required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Authenticator
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{}, logger)
	}
	s := &Server{
		engine:    cfg.Engine,
		index:     cfg.Index,
		bus:       cfg.Bus,
		logger:    logger,
		wsOrigins: cfg.CORS.AllowedOrigins,
	}
	limit := func(group string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.RateLimiter.Middleware(group)
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware)
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(v chi.Router) {
		v.Use(auth.Identify)

		v.Group(func(read chi.Router) {
			read.Use(limit("read"))
			read.Get("/articles/{id}", s.handleGetArticle)
			read.Get("/articles/{id}/quote", s.handleQuote)
			read.Get("/articles/{id}/receipts/{buyer}", s.handleGetReceipt)
			read.Get("/credentials/{id}", s.handleGetCredential)
			read.Get("/fees", s.handleGetFees)
			read.Get("/index/articles", s.handleIndexArticles)
			read.Get("/index/receipts", s.handleIndexReceipts)
			read.Get("/events/ws", s.handleEventStream)
		})

		v.Group(func(write chi.Router) {
			write.Use(limit("write"))
			write.Use(middleware.RequireCaller)
			write.Post("/articles", s.handleCreateArticle)
			write.Patch("/articles/{id}/price", s.handleUpdatePrice)
			write.Post("/articles/{id}/purchase", s.handlePurchase)
			write.Post("/credentials/{id}/transfer", s.handleTransferCredential)
			write.With(middleware.RequireAdmin(cfg.Engine.IsAdmin)).Put("/fees", s.handleSetFees)
		})
	})
	return r, nil
}

func decodeBody(r *http.Request, out any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// caller is only called behind RequireCaller.
func caller(r *http.Request) [20]byte {
	addr, _ := middleware.CallerFrom(r.Context())
	return addr
}

func badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), nil)
}
