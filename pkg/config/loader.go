package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/OldStager01/swarm-autoscaler/pkg/models"
)

func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/swarm-autoscaler")
	}

	v.SetEnvPrefix("AUTOSCALER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variables the agent has always been deployed with.
	if err := v.BindEnv("collector.endpoint", "AUTOSCALER_COLLECTOR_ENDPOINT", "SWARM_PORT"); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}
	if err := v.BindEnv("provisioner.subscription_id", "AUTOSCALER_PROVISIONER_SUBSCRIPTION_ID", "SUBSCRIPTION"); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
	}

	// AutomaticEnv only reaches keys viper already knows, so keys without a
	// default are bound explicitly.
	for _, key := range unsetKeys {
		if err := v.BindEnv(key, envName(key)); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrConfiguration, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("%w: failed to read config file: %v", models.ErrConfiguration, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %v", models.ErrConfiguration, err)
	}

	return &cfg, nil
}

// ApplyArgs overrides the resource group and criteria with the positional
// command line arguments, when given.
func (c *Config) ApplyArgs(args []string) {
	if len(args) > 0 && args[0] != "" {
		c.Agent.ResourceGroup = args[0]
	}
	if len(args) > 1 && args[1] != "" {
		c.Agent.Criteria = args[1]
	}
}

// unsetKeys have no default and are commonly supplied through the
// environment, credentials in particular.
var unsetKeys = []string{
	"agent.resource_group",
	"agent.criteria",
	"provisioner.tenant_id",
	"provisioner.client_id",
	"provisioner.client_secret",
	"manifest.source_deployment",
	"database.password",
	"simulator.cpu_demand",
	"simulator.memory_demand_gib",
}

func envName(key string) string {
	return "AUTOSCALER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "swarm-autoscaler")
	v.SetDefault("app.mode", "production")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.shutdown_timeout", "10s")

	v.SetDefault("agent.monitoring_interval", "60s")
	v.SetDefault("agent.deployment_poll_interval", "30s")
	v.SetDefault("agent.stabilization_delay", "5m")
	v.SetDefault("agent.consecutive_trigger_threshold", 2)
	v.SetDefault("agent.max_nodes", 25)
	v.SetDefault("agent.min_free_memory_gib", 1.0)
	v.SetDefault("agent.call_timeout", "30s")

	v.SetDefault("collector.type", "http")
	v.SetDefault("collector.endpoint", "http://localhost:2375")
	v.SetDefault("collector.timeout", "10s")

	v.SetDefault("provisioner.type", "arm")
	v.SetDefault("provisioner.base_url", "https://management.azure.com")
	v.SetDefault("provisioner.authority_url", "https://login.microsoftonline.com")
	v.SetDefault("provisioner.api_version", "2021-04-01")
	v.SetDefault("provisioner.resource_type", "Microsoft.Compute/virtualMachines/extensions")
	v.SetDefault("provisioner.timeout", "30s")
	v.SetDefault("provisioner.provision_time", "10s")

	v.SetDefault("manifest.directory", "files")
	v.SetDefault("manifest.file_name", "deploymentTemplate.json")
	v.SetDefault("manifest.index_token", "(INDEX)")
	v.SetDefault("manifest.max_fetch_time", "2m")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "autoscaler")
	v.SetDefault("database.user", "autoscaler")
	v.SetDefault("database.max_connections", 5)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.migration_timeout", "1m")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")
	v.SetDefault("api.idle_timeout", "60s")

	v.SetDefault("simulator.initial_nodes", 2)
	v.SetDefault("simulator.cpus_per_node", 2)
	v.SetDefault("simulator.memory_gib_per_node", 8.0)

	v.SetDefault("events.buffer_size", 100)
}
