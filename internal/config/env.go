// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"os"
	"regexp"
	"strings"
)

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment
// variable values, falling back to the default when VAR is unset or empty.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// substituteEnvVarsInConfig recursively substitutes environment variables
// across every string field that plausibly names a path or address.
func substituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Node.DataDir = SubstituteEnvVars(cfg.Node.DataDir)
	cfg.Store.DSN = SubstituteEnvVars(cfg.Store.DSN)
	cfg.DHT.ListenAddr = SubstituteEnvVars(cfg.DHT.ListenAddr)
	cfg.DHT.BootstrapToken = SubstituteEnvVars(cfg.DHT.BootstrapToken)
	for i, peer := range cfg.DHT.BootstrapPeers {
		cfg.DHT.BootstrapPeers[i] = SubstituteEnvVars(peer)
	}
	cfg.ControlAPI.ListenAddr = SubstituteEnvVars(cfg.ControlAPI.ListenAddr)
	cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)
	cfg.Logging.Format = SubstituteEnvVars(cfg.Logging.Format)
	cfg.Logging.Output = SubstituteEnvVars(cfg.Logging.Output)
	cfg.Logging.FilePath = SubstituteEnvVars(cfg.Logging.FilePath)
	cfg.Metrics.Path = SubstituteEnvVars(cfg.Metrics.Path)
	cfg.Health.Path = SubstituteEnvVars(cfg.Health.Path)
	cfg.Pushgateway.Path = SubstituteEnvVars(cfg.Pushgateway.Path)
}

// GetEnvironment returns the current environment from DNAMSG_ENV (falling
// back to ENVIRONMENT), defaulting to "development".
func GetEnvironment() string {
	env := os.Getenv("DNAMSG_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}

// IsProduction reports whether the current environment is production.
func IsProduction() bool {
	return GetEnvironment() == "production"
}

// IsDevelopment reports whether the current environment is development
// or local.
func IsDevelopment() bool {
	env := GetEnvironment()
	return env == "development" || env == "local"
}

// applyEnvironmentOverrides applies the highest-priority, single-value
// environment variable overrides, after file loading and substitution.
func applyEnvironmentOverrides(cfg *Config) {
	if dir := os.Getenv("DNAMSG_DATA_DIR"); dir != "" {
		cfg.Node.DataDir = dir
	}
	if dsn := os.Getenv("DNAMSG_STORE_DSN"); dsn != "" {
		cfg.Store.DSN = dsn
	}
	if token := os.Getenv("DNAMSG_DHT_BOOTSTRAP_TOKEN"); token != "" {
		cfg.DHT.BootstrapToken = token
	}
	if addr := os.Getenv("DNAMSG_CONTROL_ADDR"); addr != "" {
		cfg.ControlAPI.ListenAddr = addr
	}
	if mode := os.Getenv("DNAMSG_DHT_MODE"); mode != "" {
		cfg.DHT.Mode = mode
	}
	if level := os.Getenv("DNAMSG_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("DNAMSG_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
	switch os.Getenv("DNAMSG_METRICS_ENABLED") {
	case "true":
		cfg.Metrics.Enabled = true
	case "false":
		cfg.Metrics.Enabled = false
	}
}
