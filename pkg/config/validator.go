package config

import (
	"errors"
	"fmt"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

// Validate checks the whole configuration and reports every problem at
// once. The returned error wraps models.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name is required"))
	}

	validModes := map[string]bool{"development": true, "production": true, "test": true}
	if !validModes[c.App.Mode] {
		errs = append(errs, fmt.Errorf("app.mode must be one of: development, production, test"))
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.App.LogLevel] {
		errs = append(errs, fmt.Errorf("app.log_level must be one of: debug, info, warn, error"))
	}

	// Agent
	if c.Agent.ResourceGroup == "" {
		errs = append(errs, errors.New("agent.resource_group is required"))
	}
	if _, err := models.ParseCriteria(c.Agent.Criteria); err != nil {
		errs = append(errs, errors.New("agent.criteria must be one of: cpu, memory"))
	}
	if c.Agent.MonitoringInterval <= 0 {
		errs = append(errs, errors.New("agent.monitoring_interval must be positive"))
	}
	if c.Agent.DeploymentPollInterval <= 0 {
		errs = append(errs, errors.New("agent.deployment_poll_interval must be positive"))
	}
	if c.Agent.StabilizationDelay < 0 {
		errs = append(errs, errors.New("agent.stabilization_delay must not be negative"))
	}
	if c.Agent.ConsecutiveTriggerThreshold <= 0 {
		errs = append(errs, errors.New("agent.consecutive_trigger_threshold must be positive"))
	}
	if c.Agent.MaxNodes <= 0 {
		errs = append(errs, errors.New("agent.max_nodes must be positive"))
	}
	if c.Agent.CallTimeout <= 0 {
		errs = append(errs, errors.New("agent.call_timeout must be positive"))
	}

	// Collector
	switch c.Collector.Type {
	case "http":
		if c.Collector.Endpoint == "" {
			errs = append(errs, errors.New("collector.endpoint is required (or set SWARM_PORT)"))
		}
	case "simulator":
	default:
		errs = append(errs, errors.New("collector.type must be one of: http, simulator"))
	}
	if c.Collector.Timeout <= 0 {
		errs = append(errs, errors.New("collector.timeout must be positive"))
	}

	// Provisioner
	switch c.Provisioner.Type {
	case "arm":
		if c.Provisioner.SubscriptionID == "" {
			errs = append(errs, errors.New("provisioner.subscription_id is required (or set SUBSCRIPTION)"))
		}
		if c.Provisioner.TenantID == "" || c.Provisioner.ClientID == "" || c.Provisioner.ClientSecret == "" {
			errs = append(errs, errors.New("provisioner.tenant_id, client_id and client_secret are required"))
		}
	case "simulator":
		if c.Collector.Type != "simulator" {
			errs = append(errs, errors.New("provisioner.type simulator requires collector.type simulator"))
		}
	default:
		errs = append(errs, errors.New("provisioner.type must be one of: arm, simulator"))
	}

	if c.Manifest.Directory == "" || c.Manifest.FileName == "" {
		errs = append(errs, errors.New("manifest.directory and manifest.file_name are required"))
	}
	if c.Manifest.IndexToken == "" {
		errs = append(errs, errors.New("manifest.index_token is required"))
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, errors.New("database.host is required"))
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, errors.New("database.port must be between 1 and 65535"))
		}
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required"))
		}
	}

	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		errs = append(errs, errors.New("api.port must be between 1 and 65535"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: config validation failed: %v", models.ErrConfiguration, errors.Join(errs...))
	}

	return nil
}
