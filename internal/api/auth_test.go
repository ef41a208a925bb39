package api

import (
	"errors"
	"net/http"
)

func (s *Suite) TestAuthMissingToken() {
	resp, body := s.do("GET", "/v1/builds", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.JSONEq(`"Token is missing"`, string(body["message"]))
	s.JSONEq(`401`, string(body["code"]))
}

func (s *Suite) TestAuthInvalidToken() {
	resp, body := s.do("GET", "/v1/builds", "bogus-token", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.JSONEq(`"Invalid token"`, string(body["message"]))
}

func (s *Suite) TestAuthUpstreamFailure() {
	s.verifier.err = errors.New("connection refused")

	resp, body := s.do("GET", "/v1/builds", "valid-token", nil)
	s.Equal(http.StatusInternalServerError, resp.StatusCode)
	s.JSONEq(`"Internal server error"`, string(body["message"]))
}

func (s *Suite) TestAuthCreatesUserOnFirstSight() {
	resp, _ := s.do("GET", "/v1/builds", "valid-token", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(1, s.store.userCreates)
	s.Equal(0, s.store.tokenUpdates)

	// A second request with the same token writes nothing.
	resp, _ = s.do("GET", "/v1/builds", "valid-token", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(1, s.store.userCreates)
	s.Equal(0, s.store.tokenUpdates)
}

func (s *Suite) TestAuthRefreshesChangedToken() {
	resp, _ := s.do("GET", "/v1/builds", "valid-token", nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	// The identity stays the same but the user presents a fresh token.
	s.verifier.tokens["rotated-token"] = "user-uuid-1"

	resp, _ = s.do("GET", "/v1/builds", "rotated-token", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal(1, s.store.userCreates)
	s.Equal(1, s.store.tokenUpdates)
	s.Equal("rotated-token", s.store.users["user-uuid-1"].Token)
}
