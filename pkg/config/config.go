package config

import (
	"time"
)

type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Agent       AgentConfig       `mapstructure:"agent"`
	Collector   CollectorConfig   `mapstructure:"collector"`
	Provisioner ProvisionerConfig `mapstructure:"provisioner"`
	Manifest    ManifestConfig    `mapstructure:"manifest"`
	Database    DatabaseConfig    `mapstructure:"database"`
	API         APIConfig         `mapstructure:"api"`
	Simulator   SimulatorConfig   `mapstructure:"simulator"`
	Events      EventsConfig      `mapstructure:"events"`
}

type AppConfig struct {
	Name            string        `mapstructure:"name"`
	Mode            string        `mapstructure:"mode"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AgentConfig is fixed once the agent is built.
type AgentConfig struct {
	ResourceGroup               string        `mapstructure:"resource_group"`
	Criteria                    string        `mapstructure:"criteria"`
	MonitoringInterval          time.Duration `mapstructure:"monitoring_interval"`
	DeploymentPollInterval      time.Duration `mapstructure:"deployment_poll_interval"`
	StabilizationDelay          time.Duration `mapstructure:"stabilization_delay"`
	ConsecutiveTriggerThreshold int           `mapstructure:"consecutive_trigger_threshold"`
	MaxNodes                    int           `mapstructure:"max_nodes"`
	MinFreeMemoryGiB            float64       `mapstructure:"min_free_memory_gib"`
	CallTimeout                 time.Duration `mapstructure:"call_timeout"`
}

type CollectorConfig struct {
	Type     string        `mapstructure:"type"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ProvisionerConfig struct {
	Type           string        `mapstructure:"type"`
	SubscriptionID string        `mapstructure:"subscription_id"`
	TenantID       string        `mapstructure:"tenant_id"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	BaseURL        string        `mapstructure:"base_url"`
	AuthorityURL   string        `mapstructure:"authority_url"`
	APIVersion     string        `mapstructure:"api_version"`
	ResourceType   string        `mapstructure:"resource_type"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ProvisionTime  time.Duration `mapstructure:"provision_time"`
}

type ManifestConfig struct {
	Directory        string        `mapstructure:"directory"`
	FileName         string        `mapstructure:"file_name"`
	IndexToken       string        `mapstructure:"index_token"`
	SourceDeployment string        `mapstructure:"source_deployment"`
	MaxFetchTime     time.Duration `mapstructure:"max_fetch_time"`
}

type DatabaseConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Name             string        `mapstructure:"name"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	MaxConnections   int           `mapstructure:"max_connections"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	MigrationTimeout time.Duration `mapstructure:"migration_timeout"`
}

type APIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type SimulatorConfig struct {
	InitialNodes     int     `mapstructure:"initial_nodes"`
	CPUsPerNode      int     `mapstructure:"cpus_per_node"`
	MemoryGiBPerNode float64 `mapstructure:"memory_gib_per_node"`
	CPUDemand        float64 `mapstructure:"cpu_demand"`
	MemoryDemandGiB  float64 `mapstructure:"memory_demand_gib"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}
