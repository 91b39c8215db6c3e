package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8500, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "dialer_db", cfg.Database.Database)
				assert.Equal(t, 6379, cfg.Redis.Port)
				assert.Equal(t, "10.0.0.5", cfg.AMI.Host)
				assert.Equal(t, 5038, cfg.AMI.Port)
				assert.Equal(t, "sync", cfg.Dialer.Strategy)
				assert.Equal(t, 20, cfg.Dialer.Concurrency)
				assert.Equal(t, 8*time.Second, cfg.Dialer.AMDTimeout)
				assert.Equal(t, 52*time.Second, cfg.Dialer.AnswerTimeout)
				assert.Equal(t, 15*time.Minute, cfg.Dialer.CallTimeout)
				assert.Equal(t, 2*time.Hour, cfg.Dialer.JobTTL)
				assert.Equal(t, "+18887719555", cfg.VoiceAI.DefaultFromNumber)
			}
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	// Values not present in the file get safe defaults.
	assert.Equal(t, 10*time.Second, cfg.AMI.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.AMI.ActionTimeout)
	assert.Equal(t, 60*time.Second, cfg.AMI.OriginateTimeout)
	assert.Equal(t, "bridge-transfer", cfg.AMI.BridgeContext)
	assert.Equal(t, "PJSIP", cfg.AMI.AgentChannelTech)
	assert.Equal(t, 30*time.Second, cfg.VoiceAI.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.Dialer.SingleCallWait)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "missing redis host",
			mutate:    func(c *Config) { c.Redis.Host = "" },
			wantErr:   true,
			errString: "redis host is required",
		},
		{
			name:      "missing ami username",
			mutate:    func(c *Config) { c.AMI.Username = "" },
			wantErr:   true,
			errString: "ami username is required",
		},
		{
			name:      "missing ami secret",
			mutate:    func(c *Config) { c.AMI.Secret = "" },
			wantErr:   true,
			errString: "ami secret is required",
		},
		{
			name:      "missing voiceai api key",
			mutate:    func(c *Config) { c.VoiceAI.APIKey = "" },
			wantErr:   true,
			errString: "voiceai api_key is required",
		},
		{
			name:      "unknown strategy",
			mutate:    func(c *Config) { c.Dialer.Strategy = "polling" },
			wantErr:   true,
			errString: "dialer strategy must be sync or webhook",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
