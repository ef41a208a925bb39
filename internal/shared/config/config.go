package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// BaseConfig contains common configuration for all services
type BaseConfig struct {
	ServiceName string `env:"SERVICE_NAME"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
}

// APIConfig contains configuration for the REST façade service
type APIConfig struct {
	BaseConfig  `envPrefix:"ICAAS_"`
	Port        string      `env:"ICAAS_API_PORT" envDefault:"8080"`
	DatabaseURL string      `env:"ICAAS_DATABASE_URL" required:"true"`
	Endpoint    string      `env:"ICAAS_ENDPOINT" required:"true"` // public base URL, used for links and agent callbacks
	AuthURL     string      `env:"ICAAS_AUTH_URL" required:"true"` // identity provider base URL
	Debug       bool        `env:"ICAAS_DEBUG" envDefault:"false"` // keep failed agent VMs around for inspection
	NATS        *NATSConfig `envPrefix:"ICAAS_"`
}

// WorkerConfig contains configuration for the agent lifecycle worker
type WorkerConfig struct {
	BaseConfig    `envPrefix:"ICAAS_"`
	DatabaseURL   string      `env:"ICAAS_DATABASE_URL" required:"true"`
	Endpoint      string      `env:"ICAAS_ENDPOINT" required:"true"`
	AuthURL       string      `env:"ICAAS_AUTH_URL" required:"true"`
	ComputeURL    string      `env:"ICAAS_COMPUTE_URL" required:"true"`     // compute provisioner base URL
	AgentImageID  string      `env:"ICAAS_AGENT_IMAGE_ID" required:"true"`  // image the agent VM boots from
	AgentFlavorID string      `env:"ICAAS_AGENT_FLAVOR_ID" required:"true"` // flavor the agent VM runs with
	Insecure      bool        `env:"ICAAS_INSECURE" envDefault:"false"`     // propagated to the agent manifest
	NATS          *NATSConfig `envPrefix:"ICAAS_"`
}

// NATSConfig contains configuration for NATS messaging
type NATSConfig struct {
	URLs          []string      `env:"NATS_URLS" envSeparator:"," required:"true"` // NATS server URLs
	MaxReconnects int           `env:"NATS_MAX_RECONNECTS" envDefault:"-1"`        // Maximum number of reconnect attempts (-1 for unlimited)
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT_MS" envDefault:"2s"`     // Time to wait between reconnect attempts
	Timeout       time.Duration `env:"NATS_TIMEOUT_MS" envDefault:"5s"`            // Connection timeout
}

// LoadAPIConfig loads configuration for the API service
func LoadAPIConfig() (*APIConfig, error) {
	config, err := env.ParseAs[APIConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse API config: %w", err)
	}

	// Set service name if not provided
	if config.ServiceName == "" {
		config.ServiceName = "api"
	}

	// Initialize NATS config if not already set
	if config.NATS == nil {
		config.NATS = &NATSConfig{}
	}

	return &config, nil
}

// LoadWorkerConfig loads configuration for the worker service
func LoadWorkerConfig() (*WorkerConfig, error) {
	config, err := env.ParseAs[WorkerConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse Worker config: %w", err)
	}

	// Set service name if not provided
	if config.ServiceName == "" {
		config.ServiceName = "worker"
	}

	// Initialize NATS config if not already set
	if config.NATS == nil {
		config.NATS = &NATSConfig{}
	}

	return &config, nil
}
