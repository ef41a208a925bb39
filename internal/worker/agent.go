package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/skalkoto/icaas/internal/compute"
	"github.com/skalkoto/icaas/internal/database"
	"github.com/skalkoto/icaas/internal/manifest"
	"github.com/skalkoto/icaas/internal/shared/uuid"
	"github.com/skalkoto/icaas/internal/tasks"
)

const (
	agentConfigPath = "/etc/icaas/manifest.cfg"
	agentInitPath   = "/.icaas" // empty marker that switches the VM into agent mode
)

// handleAgentCreate provisions the agent VM for a freshly accepted
// build. The build is re-fetched by id: the row committed by the API is
// the only state shared with this task.
func (s *Service) handleAgentCreate(ctx context.Context, data []byte) error {
	var task tasks.AgentCreate
	if err := json.Unmarshal(data, &task); err != nil {
		return fmt.Errorf("failed to unmarshal agent create task: %w", err)
	}

	id, err := uuid.Parse(task.BuildID)
	if err != nil {
		return fmt.Errorf("agent create task has invalid build id %q: %w", task.BuildID, err)
	}

	build, err := s.store.BuildFindByIDNotDeleted(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Deleted or vanished between publish and delivery.
			s.logger.Warn("Build gone before agent creation", "build_id", id)
			return nil
		}
		return fmt.Errorf("failed to fetch build %s: %w", id, err)
	}

	var image, log manifest.ObjectRef
	if err := json.Unmarshal([]byte(build.Image), &image); err != nil {
		return s.failBuild(ctx, build.ID, fmt.Sprintf("corrupt image descriptor: %s", err))
	}
	if err := json.Unmarshal([]byte(build.Log), &log); err != nil {
		return s.failBuild(ctx, build.ID, fmt.Sprintf("corrupt log descriptor: %s", err))
	}

	manifestData, err := manifest.Build(s.manifest, manifest.Params{
		Src:           build.Src,
		Name:          build.Name,
		Image:         image,
		Log:           log,
		UserToken:     task.UserToken,
		BuildID:       build.ID.String(),
		CallbackToken: task.CallbackToken,
	})
	if err != nil {
		return s.failBuild(ctx, build.ID, fmt.Sprintf("manifest creation failed: %s", err))
	}

	personality := []compute.PersonalityFile{
		{
			Path:     agentConfigPath,
			Contents: base64.StdEncoding.EncodeToString(manifestData),
			Owner:    "root",
			Group:    "root",
			Mode:     0600,
		},
		{
			Path:     agentInitPath,
			Contents: base64.StdEncoding.EncodeToString([]byte("empty")),
			Owner:    "root",
			Group:    "root",
			Mode:     0600,
		},
	}

	name := fmt.Sprintf("icaas-agent-%s-%s", build.ID, agentTimestamp(time.Now()))

	server, err := s.compute.CreateServer(ctx, task.UserToken, compute.CreateServerRequest{
		Name:        name,
		ImageRef:    s.config.AgentImageID,
		FlavorRef:   s.config.AgentFlavorID,
		Project:     task.Project,
		Networks:    task.Networks,
		Personality: personality,
	})
	if err != nil {
		s.logger.Error("Agent creation failed", "build_id", build.ID, "error", err)
		return s.failBuild(ctx, build.ID, fmt.Sprintf("icaas agent creation failed: %s", err))
	}

	s.logger.Info("Created agent VM", "build_id", build.ID, "agent", server.ID, "name", name)

	if err := s.store.BuildSetAgent(ctx, &database.BuildSetAgentParams{
		ID:            build.ID,
		Agent:         pgtype.Text{String: server.ID, Valid: true},
		StatusDetails: "started agent creation",
	}); err != nil {
		return fmt.Errorf("failed to record agent for build %s: %w", build.ID, err)
	}

	return nil
}

// handleAgentDestroy tears down the agent VM of a build. The lookup
// deliberately ignores the soft-delete flag: teardown runs after
// deletion too.
func (s *Service) handleAgentDestroy(ctx context.Context, data []byte) error {
	var task tasks.AgentDestroy
	if err := json.Unmarshal(data, &task); err != nil {
		return fmt.Errorf("failed to unmarshal agent destroy task: %w", err)
	}

	id, err := uuid.Parse(task.BuildID)
	if err != nil {
		return fmt.Errorf("agent destroy task has invalid build id %q: %w", task.BuildID, err)
	}

	build, err := s.store.BuildFindByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Cannot happen while the ownership invariant holds.
			s.logger.Error("Build not found for teardown", "build_id", id)
			return nil
		}
		return fmt.Errorf("failed to fetch build %s: %w", id, err)
	}

	if !build.Agent.Valid {
		s.logger.Warn("Build has no agent to tear down", "build_id", id)
		return nil
	}

	user, err := s.store.UserFindByID(ctx, build.UserID)
	if err != nil {
		return fmt.Errorf("failed to fetch owner of build %s: %w", id, err)
	}

	if err := s.compute.DeleteServer(ctx, user.Token, build.Agent.String); err != nil {
		if !errors.Is(err, compute.ErrNotFound) {
			// No automatic retry: the alive flag stays set and the
			// health counter reports the leak until an operator acts.
			s.logger.Error("Agent teardown failed", "build_id", id, "agent", build.Agent.String, "error", err)
			return nil
		}
		s.logger.Warn("Agent VM already gone", "build_id", id, "agent", build.Agent.String)
	}

	if err := s.store.BuildClearAgentAlive(ctx, build.ID); err != nil {
		return fmt.Errorf("failed to clear agent flag for build %s: %w", id, err)
	}

	s.logger.Info("Tore down agent VM", "build_id", id, "agent", build.Agent.String)
	return nil
}

// failBuild records a background failure on the build row, the only
// place a client can observe it.
func (s *Service) failBuild(ctx context.Context, id uuid.UUID, details string) error {
	if err := s.store.BuildUpdateStatus(ctx, &database.BuildUpdateStatusParams{
		ID:            id,
		Status:        database.BuildStatusError,
		StatusDetails: details,
	}); err != nil {
		return fmt.Errorf("failed to mark build %s as failed: %w", id, err)
	}
	return nil
}

// agentTimestamp renders t the way agent VM names embed it, seconds
// plus microseconds.
func agentTimestamp(t time.Time) string {
	return t.Format("20060102150405") + fmt.Sprintf("%06d", t.Nanosecond()/1000)
}
