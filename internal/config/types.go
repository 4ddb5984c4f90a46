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

// Package config loads dnamsg-daemon's configuration from YAML files with
// environment-specific overlays and ${VAR} substitution.
package config

import "time"

// Config is the root daemon configuration.
type Config struct {
	Environment string            `yaml:"environment" json:"environment"`
	Node        NodeConfig        `yaml:"node" json:"node"`
	Store       StoreConfig       `yaml:"store" json:"store"`
	DHT         DHTConfig         `yaml:"dht" json:"dht"`
	Workers     WorkerConfig      `yaml:"workers" json:"workers"`
	ControlAPI  ControlAPIConfig  `yaml:"control_api" json:"control_api"`
	Pushgateway PushgatewayConfig `yaml:"pushgateway" json:"pushgateway"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
	Health      HealthConfig      `yaml:"health" json:"health"`
}

// NodeConfig locates the node's on-disk identity and message store.
type NodeConfig struct {
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// StoreConfig selects the backing store for contacts/profile-cache/messages.
// Backend "memory" needs no DSN; "postgres" does, and the DSN is expected to
// arrive via ${DNAMSG_STORE_DSN} rather than live in a checked-in YAML file.
//
// internal/store's Postgres backend is identity-scoped (ForIdentity(fp)
// returns the ContactsDb/ProfileCacheStore/MessageStore triple for one
// fingerprint), but Engine.Deps wires its store triple once at construction,
// before any identity is loaded. Since the Engine is a one-identity-at-a-time
// singleton per process (spec §3), IdentityFingerprint names the fingerprint
// whose rows this process instance owns; it must match whatever fingerprint
// create_identity/load_identity is later called with. Left empty with the
// postgres backend, validation rejects the configuration and Load fails.
type StoreConfig struct {
	Backend            string `yaml:"backend" json:"backend"`
	DSN                 string `yaml:"dsn" json:"dsn"`
	IdentityFingerprint string `yaml:"identity_fingerprint" json:"identity_fingerprint"`
}

// DHTConfig selects the distributed hash table backend the engine joins.
type DHTConfig struct {
	// Mode is "memory" (single-process, for development and tests) or
	// "kademlia" (joins the real overlay via BootstrapPeers). Only "memory"
	// has a concrete dht.Client implementation; validation rejects
	// "kademlia" with an error, so Load fails with it unless SkipValidation
	// is set.
	Mode           string        `yaml:"mode" json:"mode"`
	ListenAddr     string        `yaml:"listen_addr" json:"listen_addr"`
	BootstrapPeers []string      `yaml:"bootstrap_peers" json:"bootstrap_peers"`
	// BootstrapToken authenticates this node to the bootstrap peers; a
	// secret, so it is meant to be supplied via ${DNAMSG_DHT_BOOTSTRAP_TOKEN}
	// rather than committed to a config file.
	BootstrapToken string        `yaml:"bootstrap_token" json:"bootstrap_token"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// WorkerConfig sizes the engine's background task queue workers.
type WorkerConfig struct {
	PoolSize int `yaml:"pool_size" json:"pool_size"`
}

// ControlAPIConfig configures the local HTTP control surface.
type ControlAPIConfig struct {
	ListenAddr string        `yaml:"listen_addr" json:"listen_addr"`
	TokenTTL   time.Duration `yaml:"token_ttl" json:"token_ttl"`
}

// PushgatewayConfig controls the WebSocket event fan-out endpoint.
type PushgatewayConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// LoggingConfig mirrors the teacher's logging configuration shape.
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// HealthConfig controls the health-check HTTP endpoint and cache behavior.
type HealthConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Port     int           `yaml:"port" json:"port"`
	Path     string        `yaml:"path" json:"path"`
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}
