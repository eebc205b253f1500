package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal/statemanager"
	"github.com/netbirdio/updateengine/client/internal/updatemanager"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/policy"
	"github.com/netbirdio/updateengine/util"
)

const (
	// DefaultConfigPath is where the daemon looks for its configuration
	DefaultConfigPath       = "/etc/updateengine/config.json"
	DefaultDevicePolicyPath = "/etc/updateengine/device_policy.yaml"
	DefaultOOBEMarkerPath   = "/var/lib/updateengine/.oobe_completed"
)

// ConfigInput carries configuration changes from the command line
type ConfigInput struct {
	ConfigPath              string
	DevicePolicyPath        string
	StateFilePath           string
	VersionURL              *string
	OfficialBuild           *bool
	MetricsPort             *int
	TestUpdateCheckInterval *time.Duration
}

// Config is the daemon configuration file
type Config struct {
	DevicePolicyPath string
	StateFilePath    string
	OOBEMarkerPath   string
	OOBEEnabled      bool
	OfficialBuild    bool
	// VersionURL publishes the latest version as plain text; empty disables real checks
	VersionURL string
	// MetricsPort serves Prometheus metrics, 0 disables the server
	MetricsPort int
	// OSVersion overrides the detected platform version
	OSVersion string

	UpdateCheckTimeout        time.Duration
	UpdateCanStartTimeout     time.Duration
	UpdateCanBeAppliedTimeout time.Duration
	TestUpdateCheckInterval   time.Duration
}

// ReadConfig reads the config file at configPath. A missing file is an error.
func ReadConfig(configPath string) (*Config, error) {
	config := &Config{}
	if _, err := util.ReadJson(configPath, config); err != nil {
		return nil, err
	}

	if _, err := config.apply(ConfigInput{}); err != nil {
		return nil, err
	}
	return config, nil
}

// UpdateOrCreateConfig reads the config file, applies input and writes the
// result back when something changed. A missing file is created with defaults.
func UpdateOrCreateConfig(ctx context.Context, input ConfigInput) (*Config, error) {
	config := &Config{}
	_, err := util.ReadJson(input.ConfigPath, config)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Infof("generating new config %s", input.ConfigPath)
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", input.ConfigPath, err)
	}
	created := err != nil

	updated, err := config.apply(input)
	if err != nil {
		return nil, err
	}

	if created || updated {
		if err := util.WriteJsonWithRestrictedPermission(ctx, input.ConfigPath, config); err != nil {
			return nil, fmt.Errorf("write config %s: %w", input.ConfigPath, err)
		}
	}

	return config, nil
}

func (config *Config) apply(input ConfigInput) (updated bool, err error) {
	if input.DevicePolicyPath != "" && input.DevicePolicyPath != config.DevicePolicyPath {
		log.Infof("new device policy path provided, updated to %s (old value %s)", input.DevicePolicyPath, config.DevicePolicyPath)
		config.DevicePolicyPath = input.DevicePolicyPath
		updated = true
	} else if config.DevicePolicyPath == "" {
		config.DevicePolicyPath = DefaultDevicePolicyPath
		updated = true
	}

	if input.StateFilePath != "" && input.StateFilePath != config.StateFilePath {
		log.Infof("new state file path provided, updated to %s (old value %s)", input.StateFilePath, config.StateFilePath)
		config.StateFilePath = input.StateFilePath
		updated = true
	} else if config.StateFilePath == "" {
		config.StateFilePath = statemanager.GetDefaultStatePath()
		updated = true
	}

	if config.OOBEMarkerPath == "" {
		config.OOBEMarkerPath = DefaultOOBEMarkerPath
		updated = true
	}

	if input.VersionURL != nil && *input.VersionURL != config.VersionURL {
		log.Infof("new version URL provided, updated to %q", *input.VersionURL)
		config.VersionURL = *input.VersionURL
		updated = true
	}

	if input.OfficialBuild != nil && *input.OfficialBuild != config.OfficialBuild {
		log.Infof("switching official build to %t", *input.OfficialBuild)
		config.OfficialBuild = *input.OfficialBuild
		updated = true
	}

	if input.MetricsPort != nil && *input.MetricsPort != config.MetricsPort {
		log.Infof("updating metrics port %d (old value %d)", *input.MetricsPort, config.MetricsPort)
		config.MetricsPort = *input.MetricsPort
		updated = true
	}
	if config.MetricsPort < 0 || config.MetricsPort > 65535 {
		return false, fmt.Errorf("invalid metrics port %d", config.MetricsPort)
	}

	if input.TestUpdateCheckInterval != nil && *input.TestUpdateCheckInterval != config.TestUpdateCheckInterval {
		log.Infof("updating test update check interval to %s", *input.TestUpdateCheckInterval)
		config.TestUpdateCheckInterval = *input.TestUpdateCheckInterval
		updated = true
	}

	for _, t := range []struct {
		value *time.Duration
		def   time.Duration
	}{
		{&config.UpdateCheckTimeout, updatemanager.DefaultUpdateCheckTimeout},
		{&config.UpdateCanStartTimeout, updatemanager.DefaultUpdateCanStartTimeout},
		{&config.UpdateCanBeAppliedTimeout, updatemanager.DefaultUpdateCanBeAppliedTimeout},
	} {
		if *t.value < 0 {
			return false, fmt.Errorf("negative evaluation timeout %s", *t.value)
		}
		if *t.value == 0 {
			*t.value = t.def
			updated = true
		}
	}

	return updated, nil
}

// EngineConfig returns the evaluation budgets of the decision kinds.
func (config *Config) EngineConfig() updatemanager.Config {
	return updatemanager.Config{
		Timeouts: map[evaluation.Kind]time.Duration{
			policy.KindUpdateCheckAllowed: config.UpdateCheckTimeout,
			policy.KindUpdateCanStart:     config.UpdateCanStartTimeout,
			policy.KindUpdateCanBeApplied: config.UpdateCanBeAppliedTimeout,
		},
	}
}
