// Package worker runs the slow half of the build lifecycle: creating
// the agent VM after a build is accepted and tearing it down once the
// build reaches a terminal state or is deleted.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/skalkoto/icaas/internal/compute"
	"github.com/skalkoto/icaas/internal/database"
	"github.com/skalkoto/icaas/internal/manifest"
	"github.com/skalkoto/icaas/internal/shared/config"
	natsclient "github.com/skalkoto/icaas/internal/shared/nats"
	"github.com/skalkoto/icaas/internal/shared/uuid"
	"github.com/skalkoto/icaas/internal/tasks"
)

// Store is the slice of the query layer the worker needs. *database.DB
// satisfies it. Every task re-reads the build through it, tasks carry
// no row state.
type Store interface {
	BuildFindByID(ctx context.Context, id uuid.UUID) (*database.Build, error)
	BuildFindByIDNotDeleted(ctx context.Context, id uuid.UUID) (*database.Build, error)
	BuildUpdateStatus(ctx context.Context, arg *database.BuildUpdateStatusParams) error
	BuildSetAgent(ctx context.Context, arg *database.BuildSetAgentParams) error
	BuildClearAgentAlive(ctx context.Context, id uuid.UUID) error
	UserFindByID(ctx context.Context, id uuid.UUID) (*database.User, error)
}

// Provisioner creates and deletes agent VMs. *compute.Client satisfies
// it.
type Provisioner interface {
	CreateServer(ctx context.Context, token string, req compute.CreateServerRequest) (*compute.Server, error)
	DeleteServer(ctx context.Context, token string, serverID string) error
}

// Service represents the agent lifecycle worker
type Service struct {
	logger     *slog.Logger
	config     *config.WorkerConfig
	db         *database.DB
	store      Store
	compute    Provisioner
	natsClient *natsclient.Client
	manifest   manifest.Config
}

// NewService creates a new worker service
func NewService(cfg *config.WorkerConfig, logger *slog.Logger) (*Service, error) {
	db, err := database.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	natsClient, err := natsclient.NewClient(cfg.NATS, "worker")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s := &Service{
		logger:     logger,
		config:     cfg,
		db:         db,
		store:      db,
		compute:    compute.NewClient(cfg.ComputeURL),
		natsClient: natsClient,
		manifest: manifest.Config{
			Endpoint: cfg.Endpoint,
			AuthURL:  cfg.AuthURL,
			Insecure: cfg.Insecure,
		},
	}

	return s, nil
}

// Start subscribes to the agent task subjects and blocks until the
// context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting worker service", "queue_group", tasks.QueueGroup)

	_, err := s.natsClient.QueueSubscribe(tasks.SubjectAgentCreate, tasks.QueueGroup, func(msg *nats.Msg) {
		if err := s.handleAgentCreate(ctx, msg.Data); err != nil {
			s.logger.Error("Failed to handle agent create task", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", tasks.SubjectAgentCreate, err)
	}

	_, err = s.natsClient.QueueSubscribe(tasks.SubjectAgentDestroy, tasks.QueueGroup, func(msg *nats.Msg) {
		if err := s.handleAgentDestroy(ctx, msg.Data); err != nil {
			s.logger.Error("Failed to handle agent destroy task", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", tasks.SubjectAgentDestroy, err)
	}

	<-ctx.Done()

	s.logger.Info("Shutting down worker service")
	s.natsClient.Close()
	s.db.Close()
	return nil
}
