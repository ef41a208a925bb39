package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/skalkoto/icaas/internal/database"
	"github.com/skalkoto/icaas/internal/shared/uuid"
)

// Store is the slice of the query layer the API needs. *database.DB
// satisfies it.
type Store interface {
	UserFindByUUID(ctx context.Context, uid string) (*database.User, error)
	UserCreate(ctx context.Context, arg *database.UserCreateParams) (*database.User, error)
	UserUpdateToken(ctx context.Context, arg *database.UserUpdateTokenParams) error
	BuildCreate(ctx context.Context, arg *database.BuildCreateParams) (*database.Build, error)
	BuildFindByIDNotDeleted(ctx context.Context, id uuid.UUID) (*database.Build, error)
	BuildFindByIDAndUser(ctx context.Context, arg *database.BuildFindByIDAndUserParams) (*database.Build, error)
	BuildListByUser(ctx context.Context, userID uuid.UUID) ([]*database.Build, error)
	BuildUpdateStatus(ctx context.Context, arg *database.BuildUpdateStatusParams) error
	BuildSoftDelete(ctx context.Context, id uuid.UUID) error
	BuildsCountAliveAgents(ctx context.Context) (int64, error)
}

// Verifier resolves a bearer token to a stable user identifier.
// *identity.Client satisfies it.
type Verifier interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Publisher submits background tasks. *nats.Client satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Service represents the REST façade of the build orchestrator
type Service struct {
	logger    *slog.Logger
	config    *Config
	db        Store
	verifier  Verifier
	publisher Publisher
	server    *http.Server
}

// Config holds the configuration for the API service
type Config struct {
	Port     string
	Endpoint string // public base URL, used for links and agent callbacks
	Debug    bool   // keep failed agent VMs around for inspection
}

// NewService creates a new API service
func NewService(config *Config, db Store, verifier Verifier, publisher Publisher, logger *slog.Logger) (*Service, error) {
	s := &Service{
		logger:    logger,
		config:    config,
		db:        db,
		verifier:  verifier,
		publisher: publisher,
	}

	return s, nil
}

// Start starts the API service
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting API service",
		"port", s.config.Port,
		"endpoint", s.config.Endpoint,
	)

	s.server = &http.Server{
		Addr:    ":" + s.config.Port,
		Handler: s.Handler(),
	}

	// Start server in goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Failed to start HTTP server", "error", err)
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	s.logger.Info("Shutting down API service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Handler builds the route table
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", s.handleHealth)

	// Build lifecycle, owner-facing
	mux.HandleFunc("POST /v1/builds", s.withUser(s.handleCreateBuild))
	mux.HandleFunc("GET /v1/builds", s.withUser(s.handleListBuilds))
	mux.HandleFunc("GET /v1/builds/{id}", s.withUser(s.handleViewBuild))
	mux.HandleFunc("DELETE /v1/builds/{id}", s.withUser(s.handleDeleteBuild))

	// Agent status callback, authenticated by the per-build one-time token
	mux.HandleFunc("PUT /v1/builds/{id}", s.handleUpdateBuild)

	return mux
}

// handleHealth handles health check requests. The alive-agent count is
// the operational signal for agents a failed teardown left behind.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status": "healthy",
	}

	if count, err := s.db.BuildsCountAliveAgents(r.Context()); err != nil {
		s.logger.Error("Failed to count alive agents", "error", err)
	} else {
		response["agents_alive"] = count
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
