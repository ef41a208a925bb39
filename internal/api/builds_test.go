package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/skalkoto/icaas/internal/database"
	"github.com/skalkoto/icaas/internal/shared/crypto"
	"github.com/skalkoto/icaas/internal/shared/uuid"
	"github.com/skalkoto/icaas/internal/tasks"
)

var createBody = map[string]interface{}{
	"build": map[string]interface{}{
		"name":  "img1",
		"src":   "http://x/img",
		"image": map[string]string{"container": "imgs", "object": "o1"},
		"log":   map[string]string{"container": "logs", "object": "l1"},
	},
}

// seedUser registers the authenticated test user directly in the store
// and returns it.
func (s *Suite) seedUser() *database.User {
	user := &database.User{ID: uuid.New(), Uuid: "user-uuid-1", Token: "valid-token"}
	s.store.users["user-uuid-1"] = user
	return user
}

// seedBuild inserts a build row owned by user whose one-time callback
// token is cbToken.
func (s *Suite) seedBuild(user *database.User, cbToken string, alive bool) *database.Build {
	b := &database.Build{
		ID:     uuid.New(),
		UserID: user.ID,
		Name:   "img1",
		Src:    "http://x/img",
		Status: database.BuildStatusCreating,
		Image:  `{"container":"imgs","object":"o1"}`,
		Log:    `{"container":"logs","object":"l1"}`,
		Token:  crypto.HashToken(cbToken),
	}
	if alive {
		b.Agent.String = "vm-1"
		b.Agent.Valid = true
		b.AgentAlive = true
	}
	s.store.builds[b.ID.String()] = b
	return b
}

// doCallback performs the agent's PUT status callback.
func (s *Suite) doCallback(buildID, icaasToken string, body interface{}) *http.Response {
	data, err := json.Marshal(body)
	s.Require().NoError(err)

	req, err := http.NewRequest("PUT", s.server.URL+"/v1/builds/"+buildID, bytes.NewReader(data))
	s.Require().NoError(err)
	if icaasToken != "" {
		req.Header.Set("X-Icaas-Token", icaasToken)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func (s *Suite) TestCreateBuild() {
	resp, body := s.do("POST", "/v1/builds", "valid-token", createBody)
	s.Equal(http.StatusAccepted, resp.StatusCode)

	var build Build
	s.Require().NoError(json.Unmarshal(body["build"], &build))
	s.NotEmpty(build.ID)
	s.Equal("CREATING", build.Status)
	s.Equal("img1", build.Name)
	s.Equal("http://x/img", build.Src)
	s.Equal("imgs", build.Image.Container)
	s.Equal("l1", build.Log.Object)
	s.Require().Len(build.Links, 1)
	s.Equal("https://icaas.example.org/v1/builds/"+build.ID, build.Links[0].Href)
	s.Equal("self", build.Links[0].Rel)

	// The provisioning task carries the credentials the worker needs.
	s.Require().Len(s.publisher.published, 1)
	s.Equal(tasks.SubjectAgentCreate, s.publisher.published[0].subject)

	var task tasks.AgentCreate
	s.Require().NoError(json.Unmarshal(s.publisher.published[0].data, &task))
	s.Equal(build.ID, task.BuildID)
	s.Equal("valid-token", task.UserToken)

	stored := s.store.builds[build.ID]
	s.Require().NotNil(stored)
	s.True(crypto.VerifyToken(task.CallbackToken, stored.Token),
		"task token must match the stored hash")
	s.NotEqual(task.CallbackToken, stored.Token, "clear-text token must not be persisted")

	// A view before any background work returns the same representation.
	resp, body = s.do("GET", "/v1/builds/"+build.ID, "valid-token", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	var viewed Build
	s.Require().NoError(json.Unmarshal(body["build"], &viewed))
	s.Equal(build, viewed)
}

func (s *Suite) TestCreateBuildIncompleteDescriptor() {
	body := map[string]interface{}{
		"build": map[string]interface{}{
			"name":  "img1",
			"src":   "http://x/img",
			"image": map[string]string{"container": "c1"}, // missing object
			"log":   map[string]string{"container": "logs", "object": "l1"},
		},
	}

	resp, _ := s.do("POST", "/v1/builds", "valid-token", body)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Empty(s.store.builds, "no row may be persisted for an invalid request")
	s.Empty(s.publisher.published)
}

func (s *Suite) TestCreateBuildDescriptorNotADict() {
	body := map[string]interface{}{
		"build": map[string]interface{}{
			"name":  "img1",
			"src":   "http://x/img",
			"image": "imgs/o1",
			"log":   map[string]string{"container": "logs", "object": "l1"},
		},
	}

	resp, errBody := s.do("POST", "/v1/builds", "valid-token", body)
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Contains(string(errBody["message"]), "not a dictionary")
}

func (s *Suite) TestCreateBuildMissingFields() {
	for _, field := range []string{"name", "src"} {
		build := map[string]interface{}{
			"name":  "img1",
			"src":   "http://x/img",
			"image": map[string]string{"container": "imgs", "object": "o1"},
			"log":   map[string]string{"container": "logs", "object": "l1"},
		}
		delete(build, field)

		resp, _ := s.do("POST", "/v1/builds", "valid-token", map[string]interface{}{"build": build})
		s.Equalf(http.StatusBadRequest, resp.StatusCode, "missing %s", field)
	}

	resp, _ := s.do("POST", "/v1/builds", "valid-token", map[string]interface{}{})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestCreateBuildPublishFailure() {
	s.publisher.err = io.ErrClosedPipe

	resp, body := s.do("POST", "/v1/builds", "valid-token", createBody)
	s.Equal(http.StatusAccepted, resp.StatusCode)

	var build Build
	s.Require().NoError(json.Unmarshal(body["build"], &build))

	// The row must not hang in CREATING with no worker ever coming.
	stored := s.store.builds[build.ID]
	s.Require().NotNil(stored)
	s.Equal(database.BuildStatusError, stored.Status)
	s.Equal("failed to schedule agent creation", stored.StatusDetails)
}

func (s *Suite) TestViewForeignBuild() {
	user := s.seedUser()
	b := s.seedBuild(user, "cb-token", false)
	b.UserID = uuid.New() // now owned by someone else

	resp, _ := s.do("GET", "/v1/builds/"+b.ID.String(), "valid-token", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestViewUnknownBuild() {
	s.seedUser()

	resp, _ := s.do("GET", "/v1/builds/"+uuid.New().String(), "valid-token", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do("GET", "/v1/builds/not-a-uuid", "valid-token", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestListExcludesDeleted() {
	user := s.seedUser()
	kept := s.seedBuild(user, "cb-1", false)
	gone := s.seedBuild(user, "cb-2", false)
	gone.Deleted = true

	resp, body := s.do("GET", "/v1/builds", "valid-token", nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	var summaries []BuildSummary
	s.Require().NoError(json.Unmarshal(body["builds"], &summaries))
	s.Require().Len(summaries, 1)
	s.Equal(kept.ID.String(), summaries[0].ID)
	s.Equal("img1", summaries[0].Name)

	// A deleted build is not viewable either, regardless of status.
	resp, _ = s.do("GET", "/v1/builds/"+gone.ID.String(), "valid-token", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *Suite) TestDeleteSchedulesTeardown() {
	user := s.seedUser()
	b := s.seedBuild(user, "cb-token", true)

	resp, _ := s.do("DELETE", "/v1/builds/"+b.ID.String(), "valid-token", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(b.Deleted)

	s.Require().Len(s.publisher.published, 1)
	s.Equal(tasks.SubjectAgentDestroy, s.publisher.published[0].subject)

	var task tasks.AgentDestroy
	s.Require().NoError(json.Unmarshal(s.publisher.published[0].data, &task))
	s.Equal(b.ID.String(), task.BuildID)
}

func (s *Suite) TestDeleteWithoutAgent() {
	user := s.seedUser()
	b := s.seedBuild(user, "cb-token", false)

	resp, _ := s.do("DELETE", "/v1/builds/"+b.ID.String(), "valid-token", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(b.Deleted)
	s.Empty(s.publisher.published, "no teardown for a build without a live agent")
}

func (s *Suite) TestUpdateMissingToken() {
	user := s.seedUser()
	b := s.seedBuild(user, "cb-token", true)

	resp := s.doCallback(b.ID.String(), "", map[string]string{"status": "COMPLETED"})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Equal(database.BuildStatusCreating, b.Status)
}

func (s *Suite) TestUpdateWrongToken() {
	user := s.seedUser()
	b := s.seedBuild(user, "cb-token", true)

	resp := s.doCallback(b.ID.String(), "wrong-token", map[string]string{"status": "COMPLETED"})
	s.Equal(http.StatusNotFound, resp.StatusCode)
	s.Equal(database.BuildStatusCreating, b.Status, "a forged update must not modify the build")
	s.Empty(s.publisher.published, "a forged update must not trigger teardown")
}

func (s *Suite) TestUpdateCompleted() {
	user := s.seedUser()
	b := s.seedBuild(user, "cb-token", true)

	resp := s.doCallback(b.ID.String(), "cb-token", map[string]string{
		"status":  "COMPLETED",
		"details": "image registered",
	})
	s.Equal(http.StatusAccepted, resp.StatusCode)
	s.Equal(database.BuildStatusCompleted, b.Status)
	s.Equal("image registered", b.StatusDetails)

	s.Require().Len(s.publisher.published, 1)
	s.Equal(tasks.SubjectAgentDestroy, s.publisher.published[0].subject)
}

func (s *Suite) TestUpdateErrorTriggersTeardown() {
	user := s.seedUser()
	b := s.seedBuild(user, "cb-token", true)

	resp := s.doCallback(b.ID.String(), "cb-token", map[string]string{"status": "ERROR"})
	s.Equal(http.StatusAccepted, resp.StatusCode)
	s.Equal(database.BuildStatusError, b.Status)
	s.Require().Len(s.publisher.published, 1)
	s.Equal(tasks.SubjectAgentDestroy, s.publisher.published[0].subject)
}

func (s *Suite) TestUpdateErrorInDebugMode() {
	s.service.config.Debug = true
	user := s.seedUser()
	b := s.seedBuild(user, "cb-token", true)

	resp := s.doCallback(b.ID.String(), "cb-token", map[string]string{"status": "ERROR"})
	s.Equal(http.StatusAccepted, resp.StatusCode)
	s.Equal(database.BuildStatusError, b.Status)
	s.Empty(s.publisher.published, "debug mode keeps the agent for inspection")
	s.True(b.AgentAlive)
}

func (s *Suite) TestUpdateInvalidStatus() {
	user := s.seedUser()
	b := s.seedBuild(user, "cb-token", true)

	resp := s.doCallback(b.ID.String(), "cb-token", map[string]string{"status": "DONE"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.doCallback(b.ID.String(), "cb-token", map[string]string{"details": "no status"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(database.BuildStatusCreating, b.Status)
}

func (s *Suite) TestUpdateTerminalStateIsSticky() {
	user := s.seedUser()
	b := s.seedBuild(user, "cb-token", true)
	b.Status = database.BuildStatusCompleted
	b.StatusDetails = "first report"

	// Re-sending the same terminal status only refreshes the details.
	resp := s.doCallback(b.ID.String(), "cb-token", map[string]string{
		"status":  "COMPLETED",
		"details": "second report",
	})
	s.Equal(http.StatusAccepted, resp.StatusCode)
	s.Equal(database.BuildStatusCompleted, b.Status)
	s.Equal("second report", b.StatusDetails)

	// A different status can no longer be applied.
	resp = s.doCallback(b.ID.String(), "cb-token", map[string]string{"status": "ERROR"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(database.BuildStatusCompleted, b.Status)

	resp = s.doCallback(b.ID.String(), "cb-token", map[string]string{"status": "CREATING"})
	s.Equal(http.StatusBadRequest, resp.StatusCode)
	s.Equal(database.BuildStatusCompleted, b.Status)
}

func (s *Suite) TestHealth() {
	user := s.seedUser()
	s.seedBuild(user, "cb-1", true)
	s.seedBuild(user, "cb-2", false)

	resp, body := s.do("GET", "/health", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.JSONEq(`"healthy"`, string(body["status"]))
	s.JSONEq(`1`, string(body["agents_alive"]))
}
