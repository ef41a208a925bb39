package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/skalkoto/icaas/internal/database"
	"github.com/skalkoto/icaas/internal/identity"
	apierrors "github.com/skalkoto/icaas/internal/shared/errors"
	"github.com/skalkoto/icaas/internal/shared/uuid"
)

// authenticate resolves the X-Auth-Token header to a User record,
// creating the user on first sight and refreshing a changed token in
// place. At most one record write happens per call.
func (s *Service) authenticate(r *http.Request) (*database.User, error) {
	ctx := r.Context()

	token := r.Header.Get("X-Auth-Token")
	if token == "" {
		return nil, apierrors.NewAuthenticationRequired("Token is missing")
	}

	uid, err := s.verifier.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrUnauthorized) {
			return nil, apierrors.NewInvalidToken()
		}
		s.logger.Error("Identity verifier failed", "error", err)
		return nil, apierrors.NewUpstreamUnavailable("identity verifier unavailable")
	}

	user, err := s.db.UserFindByUUID(ctx, uid)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error("Failed to look up user", "error", err, "uuid", uid)
		return nil, apierrors.NewInternal("")
	}

	if errors.Is(err, pgx.ErrNoRows) {
		user, err = s.db.UserCreate(ctx, &database.UserCreateParams{
			ID:    uuid.New(),
			Uuid:  uid,
			Token: token,
		})
		if err != nil {
			s.logger.Error("Failed to create user", "error", err, "uuid", uid)
			return nil, apierrors.NewInternal("")
		}
		s.logger.Debug("Created new user", "user_id", user.ID)
		return user, nil
	}

	if user.Token != token {
		if err := s.db.UserUpdateToken(ctx, &database.UserUpdateTokenParams{
			ID:    user.ID,
			Token: token,
		}); err != nil {
			s.logger.Error("Failed to update user token", "error", err, "user_id", user.ID)
			return nil, apierrors.NewInternal("")
		}
		user.Token = token
		s.logger.Debug("Updated existing user token", "user_id", user.ID)
	}

	return user, nil
}

// withUser wraps an owner-facing handler with the auth gate
func (s *Service) withUser(next func(http.ResponseWriter, *http.Request, *database.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			apierrors.HandleError(w, err)
			return
		}
		next(w, r, user)
	}
}
