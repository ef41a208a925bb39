package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"github.com/skalkoto/icaas/internal/database"
	"github.com/skalkoto/icaas/internal/manifest"
	"github.com/skalkoto/icaas/internal/shared/crypto"
	apierrors "github.com/skalkoto/icaas/internal/shared/errors"
	"github.com/skalkoto/icaas/internal/shared/uuid"
	"github.com/skalkoto/icaas/internal/tasks"
)

type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type Build struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Src           string             `json:"src"`
	Status        string             `json:"status"`
	StatusDetails string             `json:"status_details"`
	Image         manifest.ObjectRef `json:"image"`
	Log           manifest.ObjectRef `json:"log"`
	Created       string             `json:"created"`
	Updated       string             `json:"updated"`
	Links         []Link             `json:"links"`
}

type BuildSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Links []Link `json:"links"`
}

type CreateBuildRequest struct {
	Build *CreateBuildParams `json:"build"`
}

type CreateBuildParams struct {
	Name     string          `json:"name"`
	Src      string          `json:"src"`
	Image    json.RawMessage `json:"image"`
	Log      json.RawMessage `json:"log"`
	Project  string          `json:"project,omitempty"`
	Networks json.RawMessage `json:"networks,omitempty"`
}

type UpdateBuildRequest struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

func (s *Service) buildLinks(id uuid.UUID) []Link {
	return []Link{{Href: manifest.StatusURL(s.config.Endpoint, id.String()), Rel: "self"}}
}

func (s *Service) buildToResponse(b *database.Build) Build {
	var image, log manifest.ObjectRef
	// Descriptors were validated before insertion, decode failures here
	// would mean a corrupted row.
	if err := json.Unmarshal([]byte(b.Image), &image); err != nil {
		s.logger.Error("Failed to decode image descriptor", "build_id", b.ID, "error", err)
	}
	if err := json.Unmarshal([]byte(b.Log), &log); err != nil {
		s.logger.Error("Failed to decode log descriptor", "build_id", b.ID, "error", err)
	}

	return Build{
		ID:            b.ID.String(),
		Name:          b.Name,
		Src:           b.Src,
		Status:        string(b.Status),
		StatusDetails: b.StatusDetails,
		Image:         image,
		Log:           log,
		Created:       b.CreatedAt.Time.Format("2006-01-02T15:04:05Z"),
		Updated:       b.UpdatedAt.Time.Format("2006-01-02T15:04:05Z"),
		Links:         s.buildLinks(b.ID),
	}
}

// parseObjectRef validates a destination descriptor from the request
// body. Both failure modes reject the request before any row exists.
func parseObjectRef(field string, raw json.RawMessage) (manifest.ObjectRef, string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return manifest.ObjectRef{}, "", apierrors.NewValidation("Parameter: '%s' is missing from namespace 'build' or empty", field)
	}
	var ref manifest.ObjectRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return manifest.ObjectRef{}, "", apierrors.NewValidation("%q parameter is not a dictionary", field)
	}
	if err := ref.Validate(field); err != nil {
		return manifest.ObjectRef{}, "", apierrors.NewValidation("%s", err)
	}

	// Store the canonical encoding, not the caller's raw bytes.
	canonical, err := json.Marshal(ref)
	if err != nil {
		return manifest.ObjectRef{}, "", apierrors.NewInternal("")
	}
	return ref, string(canonical), nil
}

// handleCreateBuild accepts a build request, commits it in state
// CREATING and hands the slow agent provisioning to the worker. The
// 202 response returns before any VM exists.
func (s *Service) handleCreateBuild(w http.ResponseWriter, r *http.Request, user *database.User) {
	ctx := r.Context()

	var req CreateBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Build == nil {
		apierrors.NewValidation("Required field %q is missing", "build").WriteJSON(w)
		return
	}
	params := req.Build

	if params.Name == "" {
		apierrors.NewValidation("Parameter: 'name' is missing from namespace 'build' or empty").WriteJSON(w)
		return
	}
	if params.Src == "" {
		apierrors.NewValidation("Parameter: 'src' is missing from namespace 'build' or empty").WriteJSON(w)
		return
	}

	_, imageJSON, err := parseObjectRef("image", params.Image)
	if err != nil {
		apierrors.HandleError(w, err)
		return
	}
	_, logJSON, err := parseObjectRef("log", params.Log)
	if err != nil {
		apierrors.HandleError(w, err)
		return
	}

	// The clear-text token travels only inside the task message and the
	// injected manifest; the row keeps the hash.
	callbackToken, err := crypto.NewToken()
	if err != nil {
		s.logger.Error("Failed to generate callback token", "error", err)
		apierrors.NewInternal("").WriteJSON(w)
		return
	}

	build, err := s.db.BuildCreate(ctx, &database.BuildCreateParams{
		ID:     uuid.New(),
		UserID: user.ID,
		Name:   params.Name,
		Src:    params.Src,
		Image:  imageJSON,
		Log:    logJSON,
		Token:  crypto.HashToken(callbackToken),
	})
	if err != nil {
		s.logger.Error("Failed to create build", "error", err)
		apierrors.NewInternal("").WriteJSON(w)
		return
	}
	s.logger.Info("Created build", "build_id", build.ID, "user_id", user.ID)

	task, err := json.Marshal(tasks.AgentCreate{
		BuildID:       build.ID.String(),
		UserToken:     user.Token,
		CallbackToken: callbackToken,
		Project:       params.Project,
		Networks:      params.Networks,
	})
	if err == nil {
		err = s.publisher.Publish(tasks.SubjectAgentCreate, task)
	}
	if err != nil {
		// The row would hang in CREATING forever without a worker run,
		// record the failure on it instead.
		s.logger.Error("Failed to schedule agent creation", "build_id", build.ID, "error", err)
		if dberr := s.db.BuildUpdateStatus(ctx, &database.BuildUpdateStatusParams{
			ID:            build.ID,
			Status:        database.BuildStatusError,
			StatusDetails: "failed to schedule agent creation",
		}); dberr != nil {
			s.logger.Error("Failed to mark build as failed", "build_id", build.ID, "error", dberr)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]Build{"build": s.buildToResponse(build)})
}

// handleListBuilds lists the caller's non-deleted builds
func (s *Service) handleListBuilds(w http.ResponseWriter, r *http.Request, user *database.User) {
	builds, err := s.db.BuildListByUser(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("Failed to list builds", "error", err, "user_id", user.ID)
		apierrors.NewInternal("").WriteJSON(w)
		return
	}

	summaries := lo.Map(builds, func(b *database.Build, _ int) BuildSummary {
		return BuildSummary{
			ID:    b.ID.String(),
			Name:  b.Name,
			Links: s.buildLinks(b.ID),
		}
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string][]BuildSummary{"builds": summaries})
}

// handleViewBuild returns a single owned, non-deleted build
func (s *Service) handleViewBuild(w http.ResponseWriter, r *http.Request, user *database.User) {
	build, err := s.findOwnedBuild(r, user)
	if err != nil {
		apierrors.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]Build{"build": s.buildToResponse(build)})
}

// handleDeleteBuild soft-deletes a build. The row is kept for the
// lifecycle callbacks still in flight; only the agent VM goes away.
func (s *Service) handleDeleteBuild(w http.ResponseWriter, r *http.Request, user *database.User) {
	ctx := r.Context()

	build, err := s.findOwnedBuild(r, user)
	if err != nil {
		apierrors.HandleError(w, err)
		return
	}

	if err := s.db.BuildSoftDelete(ctx, build.ID); err != nil {
		s.logger.Error("Failed to delete build", "error", err, "build_id", build.ID)
		apierrors.NewInternal("").WriteJSON(w)
		return
	}
	s.logger.Info("Deleted build", "build_id", build.ID, "user_id", user.ID)

	if build.AgentAlive {
		s.scheduleTeardown(build.ID)
	}

	w.WriteHeader(http.StatusOK)
}

// handleUpdateBuild is the agent's status callback. It authenticates
// with the per-build one-time token, never the user's bearer token.
func (s *Service) handleUpdateBuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.Header.Get("X-Icaas-Token")
	if token == "" {
		apierrors.NewAuthenticationRequired("Missing ICaaS token").WriteJSON(w)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		apierrors.NewNotFound("Build").WriteJSON(w)
		return
	}

	build, err := s.db.BuildFindByIDNotDeleted(ctx, id)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error("Failed to look up build", "error", err, "build_id", id)
		}
		// A wrong id and a database miss look the same to the caller.
		apierrors.NewNotFound("Build").WriteJSON(w)
		return
	}

	if !crypto.VerifyToken(token, build.Token) {
		// Token mismatch is indistinguishable from a missing build, so
		// knowing a build id is not enough to forge a status update.
		apierrors.NewNotFound("Build").WriteJSON(w)
		return
	}

	var req UpdateBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		apierrors.NewValidation("Parameter: 'status' is missing").WriteJSON(w)
		return
	}

	status := database.BuildStatus(req.Status)
	if !status.Valid() {
		apierrors.NewValidation("Invalid 'status' parameter").WriteJSON(w)
		return
	}

	// Terminal states never revert. Re-sending the same terminal status
	// is accepted and only refreshes the details.
	if build.Status != database.BuildStatusCreating && status != build.Status {
		apierrors.NewValidation("Cannot transition build from %s to %s", build.Status, status).WriteJSON(w)
		return
	}

	details := build.StatusDetails
	if req.Details != "" {
		details = req.Details
	}

	if err := s.db.BuildUpdateStatus(ctx, &database.BuildUpdateStatusParams{
		ID:            build.ID,
		Status:        status,
		StatusDetails: details,
	}); err != nil {
		s.logger.Error("Failed to update build status", "error", err, "build_id", build.ID)
		apierrors.NewInternal("").WriteJSON(w)
		return
	}
	s.logger.Info("Updated build status", "build_id", build.ID, "status", status)

	// Should we delete the agent VM?
	if status == database.BuildStatusCompleted || (status == database.BuildStatusError && !s.config.Debug) {
		s.scheduleTeardown(build.ID)
	} else if status == database.BuildStatusError {
		s.logger.Warn("Not deleting the agent VM on errors in debug mode", "build_id", build.ID)
	}

	w.WriteHeader(http.StatusAccepted)
}

// findOwnedBuild resolves the {id} path parameter to a build owned by
// user. Missing, deleted, foreign and malformed ids all read as not
// found.
func (s *Service) findOwnedBuild(r *http.Request, user *database.User) (*database.Build, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return nil, apierrors.NewNotFound("Build")
	}

	build, err := s.db.BuildFindByIDAndUser(r.Context(), &database.BuildFindByIDAndUserParams{
		ID:     id,
		UserID: user.ID,
	})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error("Failed to look up build", "error", err, "build_id", id)
			return nil, apierrors.NewInternal("")
		}
		return nil, apierrors.NewNotFound("Build")
	}

	return build, nil
}

// scheduleTeardown hands agent destruction to the worker. Failures are
// only logged: teardown is asynchronous and no caller is waiting.
func (s *Service) scheduleTeardown(id uuid.UUID) {
	task, err := json.Marshal(tasks.AgentDestroy{BuildID: id.String()})
	if err == nil {
		err = s.publisher.Publish(tasks.SubjectAgentDestroy, task)
	}
	if err != nil {
		s.logger.Error("Failed to schedule agent teardown", "build_id", id, "error", err)
		return
	}
	s.logger.Debug("Scheduled agent teardown", "build_id", id)
}
