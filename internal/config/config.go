package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AMI      AMIConfig      `yaml:"ami"`
	VoiceAI  VoiceAIConfig  `yaml:"voiceai"`
	Dialer   DialerConfig   `yaml:"dialer"`
	Transfer TransferConfig `yaml:"transfer"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	AuthToken       string        `yaml:"auth_token"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// AMIConfig holds Asterisk Manager Interface connection configuration
type AMIConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	Username          string        `yaml:"username"`
	Secret            string        `yaml:"secret"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ActionTimeout     time.Duration `yaml:"action_timeout"`
	OriginateContext  string        `yaml:"originate_context"`
	OriginateChannel  string        `yaml:"originate_channel"`
	OriginateTimeout  time.Duration `yaml:"originate_timeout"`
	BridgeContext     string        `yaml:"bridge_context"`
	AgentChannelTech  string        `yaml:"agent_channel_tech"`
}

// VoiceAIConfig holds the voice-AI platform API configuration
type VoiceAIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	DefaultAgentID    string        `yaml:"default_agent_id"`
	DefaultFromNumber string        `yaml:"default_from_number"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

// DialerConfig holds queue and origination configuration
type DialerConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	QueueCapacity  int           `yaml:"queue_capacity"`
	Strategy       string        `yaml:"strategy"` // sync or webhook
	AMDTimeout     time.Duration `yaml:"amd_timeout"`
	AnswerTimeout  time.Duration `yaml:"answer_timeout"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	JobTTL         time.Duration `yaml:"job_ttl"`
	SingleCallWait time.Duration `yaml:"single_call_wait"`
}

// TransferConfig holds transfer orchestrator configuration
type TransferConfig struct {
	DefaultAgentExtension string        `yaml:"default_agent_extension"`
	DiscoveryTimeout      time.Duration `yaml:"discovery_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// applyDefaults fills in values the file may omit
func (c *Config) applyDefaults() {
	if c.Dialer.Concurrency <= 0 {
		c.Dialer.Concurrency = 20
	}
	if c.Dialer.QueueCapacity <= 0 {
		c.Dialer.QueueCapacity = 1000
	}
	if c.Dialer.Strategy == "" {
		c.Dialer.Strategy = "sync"
	}
	if c.Dialer.AMDTimeout <= 0 {
		c.Dialer.AMDTimeout = 8 * time.Second
	}
	if c.Dialer.AnswerTimeout <= 0 {
		c.Dialer.AnswerTimeout = 52 * time.Second
	}
	if c.Dialer.CallTimeout <= 0 {
		c.Dialer.CallTimeout = 15 * time.Minute
	}
	if c.Dialer.JobTTL <= 0 {
		c.Dialer.JobTTL = 2 * time.Hour
	}
	if c.Dialer.SingleCallWait <= 0 {
		c.Dialer.SingleCallWait = 10 * time.Second
	}
	if c.AMI.ConnectTimeout <= 0 {
		c.AMI.ConnectTimeout = 10 * time.Second
	}
	if c.AMI.ActionTimeout <= 0 {
		c.AMI.ActionTimeout = 5 * time.Second
	}
	if c.AMI.OriginateContext == "" {
		c.AMI.OriginateContext = "ai-bridge"
	}
	if c.AMI.OriginateChannel == "" {
		c.AMI.OriginateChannel = "outbound-originate"
	}
	if c.AMI.OriginateTimeout <= 0 {
		c.AMI.OriginateTimeout = 60 * time.Second
	}
	if c.AMI.BridgeContext == "" {
		c.AMI.BridgeContext = "bridge-transfer"
	}
	if c.AMI.AgentChannelTech == "" {
		c.AMI.AgentChannelTech = "PJSIP"
	}
	if c.VoiceAI.RequestTimeout <= 0 {
		c.VoiceAI.RequestTimeout = 30 * time.Second
	}
	if c.Transfer.DiscoveryTimeout <= 0 {
		c.Transfer.DiscoveryTimeout = 5 * time.Second
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("redis host is required")
	}

	if c.Redis.Port < MinPort || c.Redis.Port > MaxPort {
		return fmt.Errorf("invalid redis port: %d (must be between %d and %d)", c.Redis.Port, MinPort, MaxPort)
	}

	if c.AMI.Host == "" {
		return fmt.Errorf("ami host is required")
	}

	if c.AMI.Port < MinPort || c.AMI.Port > MaxPort {
		return fmt.Errorf("invalid ami port: %d (must be between %d and %d)", c.AMI.Port, MinPort, MaxPort)
	}

	if c.AMI.Username == "" {
		return fmt.Errorf("ami username is required")
	}

	if c.AMI.Secret == "" {
		return fmt.Errorf("ami secret is required")
	}

	if c.VoiceAI.BaseURL == "" {
		return fmt.Errorf("voiceai base_url is required")
	}

	if c.VoiceAI.APIKey == "" {
		return fmt.Errorf("voiceai api_key is required")
	}

	if c.Dialer.Strategy != "sync" && c.Dialer.Strategy != "webhook" {
		return fmt.Errorf("dialer strategy must be sync or webhook, got %q", c.Dialer.Strategy)
	}

	return nil
}
