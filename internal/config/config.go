// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "coffer.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// RunMode represents the operational mode of the coffer instance
type RunMode string

const (
	RunModeServe RunMode = "serve" // Normal operation (default)
	RunModeDev   RunMode = "dev"   // Development mode (seeded in-memory ledger and roles)
)

// Valid returns true if the RunMode is a known valid mode
func (m RunMode) Valid() bool {
	switch m {
	case RunModeServe, RunModeDev, "":
		return true
	default:
		return false
	}
}

// IsDevMode returns true if the mode enables development behaviors
func (m RunMode) IsDevMode() bool {
	return m == RunModeDev
}

type Config struct {
	DataDir         string  `yaml:"dataDir"         split_words:"true"`
	BindAddr        string  `yaml:"bindAddr"        split_words:"true"`
	MetricsPort     uint    `yaml:"metricsPort"     split_words:"true"`
	ShutdownTimeout string  `yaml:"shutdownTimeout" split_words:"true"`
	RunMode         RunMode `yaml:"runMode"         envconfig:"COFFER_RUN_MODE"`
	// Instance identity
	PoolAddress    string `yaml:"poolAddress"    split_words:"true"`
	TokenAddress   string `yaml:"tokenAddress"   split_words:"true"`
	FactoryAddress string `yaml:"factoryAddress" split_words:"true"`
	InstanceId     string `yaml:"instanceId"     split_words:"true"`
	// Policy parameters (zero = use the library defaults)
	MinAmount                uint64 `yaml:"minAmount"                split_words:"true"`
	MaxAmount                uint64 `yaml:"maxAmount"                split_words:"true"`
	MinDeposit               uint64 `yaml:"minDeposit"               split_words:"true"`
	RevealDelay              string `yaml:"revealDelay"              split_words:"true"`
	PaymentWindow            string `yaml:"paymentWindow"            split_words:"true"`
	StaleLockWindow          string `yaml:"staleLockWindow"          split_words:"true"`
	ClosureWindow            string `yaml:"closureWindow"            split_words:"true"`
	RequiredExtraApprovals   int    `yaml:"requiredExtraApprovals"   split_words:"true"`
	RequiredClosureApprovals int    `yaml:"requiredClosureApprovals" split_words:"true"`
	// Tracing
	Tracing       bool `yaml:"tracing"`
	TracingStdout bool `yaml:"tracingStdout" split_words:"true"`
	// Development-mode seeding
	DevPoolBalance uint64 `yaml:"devPoolBalance" split_words:"true"`
}

var globalConfig = &Config{
	DataDir:         ".coffer",
	BindAddr:        "0.0.0.0",
	MetricsPort:     12798,
	ShutdownTimeout: DefaultShutdownTimeout,
	RunMode:         RunModeServe,
	DevPoolBalance:  1_000_000,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.coffer/coffer.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".coffer", "coffer.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}
		// Try to check for /etc/coffer/coffer.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/coffer/coffer.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	if err := envconfig.Process("coffer", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	// Validate and default RunMode
	if !globalConfig.RunMode.Valid() {
		return nil, fmt.Errorf(
			"invalid runMode: %q (must be 'serve' or 'dev')",
			globalConfig.RunMode,
		)
	}
	if globalConfig.RunMode == "" {
		globalConfig.RunMode = RunModeServe
	}
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
