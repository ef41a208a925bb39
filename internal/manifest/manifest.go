// Package manifest builds the configuration file injected into the
// agent VM at boot. The agent reads it to learn where to fetch the
// source image, where to upload the result and its log, and how to
// report status back to the service.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// ErrInvalidInput is returned when a destination descriptor is missing
// a required field. It must surface before any VM is created.
var ErrInvalidInput = errors.New("invalid manifest input")

// ObjectRef locates an object in the storage service.
type ObjectRef struct {
	Container string `json:"container"`
	Object    string `json:"object"`
	Account   string `json:"account,omitempty"`
}

// Validate checks the fields every destination descriptor must carry.
func (o ObjectRef) Validate(name string) error {
	if o.Container == "" {
		return fmt.Errorf("%w: %q field missing from parameter: %q", ErrInvalidInput, "container", name)
	}
	if o.Object == "" {
		return fmt.Errorf("%w: %q field missing from parameter: %q", ErrInvalidInput, "object", name)
	}
	return nil
}

// Config holds the deployment-level values embedded into every manifest.
type Config struct {
	Endpoint string // public base URL of the service
	AuthURL  string // identity provider URL the agent talks to
	Insecure bool   // disable strict TLS verification inside the agent
}

// Params are the per-build manifest inputs.
type Params struct {
	Src           string    // source image locator
	Name          string    // registration name of the resulting image
	Image         ObjectRef // destination of the converted image
	Log           ObjectRef // destination of the conversion log
	UserToken     string    // owner's bearer token
	BuildID       string
	CallbackToken string // one-time status-report credential
}

// Build renders the INI manifest. It is deterministic for identical
// inputs; no randomness or clock reads happen here.
func Build(cfg Config, p Params) ([]byte, error) {
	if err := p.Image.Validate("image"); err != nil {
		return nil, err
	}
	if err := p.Log.Validate("log"); err != nil {
		return nil, err
	}

	f := ini.Empty()

	service, err := f.NewSection("service")
	if err != nil {
		return nil, err
	}
	service.NewKey("status", StatusURL(cfg.Endpoint, p.BuildID))
	service.NewKey("token", p.CallbackToken)
	service.NewKey("insecure", strconv.FormatBool(cfg.Insecure))

	synnefo, err := f.NewSection("synnefo")
	if err != nil {
		return nil, err
	}
	synnefo.NewKey("url", cfg.AuthURL)
	synnefo.NewKey("token", p.UserToken)

	image, err := f.NewSection("image")
	if err != nil {
		return nil, err
	}
	image.NewKey("src", p.Src)
	image.NewKey("name", p.Name)
	image.NewKey("container", p.Image.Container)
	image.NewKey("object", p.Image.Object)
	if p.Image.Account != "" {
		image.NewKey("account", p.Image.Account)
	}

	log, err := f.NewSection("log")
	if err != nil {
		return nil, err
	}
	log.NewKey("container", p.Log.Container)
	log.NewKey("object", p.Log.Object)
	if p.Log.Account != "" {
		log.NewKey("account", p.Log.Account)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// StatusURL is the callback URL the agent reports build status to. The
// API serves the matching PUT route.
func StatusURL(endpoint, buildID string) string {
	return strings.TrimRight(endpoint, "/") + "/v1/builds/" + buildID
}
