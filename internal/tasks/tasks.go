// Package tasks defines the messages the API publishes for the worker.
//
// A task carries the build id plus the two credentials that are never
// persisted in clear text (the user's bearer token and the one-time
// callback token). Everything else about the build is re-read from the
// database inside the worker, because the row may have changed between
// publish and delivery.
package tasks

import "encoding/json"

const (
	// SubjectAgentCreate is published after a build row is committed in
	// state CREATING.
	SubjectAgentCreate = "agent.create"

	// SubjectAgentDestroy is published when a build reaches a terminal
	// state or is deleted while its agent is alive.
	SubjectAgentDestroy = "agent.destroy"

	// QueueGroup is the worker queue group; one worker per task.
	QueueGroup = "agent-workers"
)

// AgentCreate asks the worker to provision the agent VM for a build.
type AgentCreate struct {
	BuildID       string          `json:"build_id"`
	UserToken     string          `json:"user_token"`
	CallbackToken string          `json:"callback_token"`
	Project       string          `json:"project,omitempty"`
	Networks      json.RawMessage `json:"networks,omitempty"`
}

// AgentDestroy asks the worker to tear down the agent VM of a build.
type AgentDestroy struct {
	BuildID string `json:"build_id"`
}
