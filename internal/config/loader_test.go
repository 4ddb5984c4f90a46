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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadFallsBackToDefaultsWithNoFiles(t *testing.T) {
	cfg, err := Load(LoaderOptions{ConfigDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DHT.Mode)
	assert.Equal(t, ".dnamsg/data", cfg.Node.DataDir)
	assert.Equal(t, "127.0.0.1:8787", cfg.ControlAPI.ListenAddr)
}

func TestLoadPrefersEnvironmentFileOverDefault(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "default.yaml", "node:\n  data_dir: /var/default\n")
	writeYAML(t, dir, "staging.yaml", "node:\n  data_dir: /var/staging\n")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, "/var/staging", cfg.Node.DataDir)
	assert.Equal(t, "staging", cfg.Environment)
}

func TestLoadFallsBackToConfigYAMLWhenNoEnvOrDefaultFile(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "config.yaml", "node:\n  data_dir: /var/generic\n")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "production"})
	require.NoError(t, err)
	assert.Equal(t, "/var/generic", cfg.Node.DataDir)
}

func TestLoadSubstitutesEnvVars(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "default.yaml", "node:\n  data_dir: ${DNAMSG_TEST_DIR:/fallback}\n")
	t.Setenv("DNAMSG_TEST_DIR", "/from/env")

	cfg, err := Load(LoaderOptions{ConfigDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Node.DataDir)
}

func TestLoadEnvironmentOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "default.yaml", "node:\n  data_dir: /var/default\n")
	t.Setenv("DNAMSG_DATA_DIR", "/override")

	cfg, err := Load(LoaderOptions{ConfigDir: dir})
	require.NoError(t, err)
	assert.Equal(t, "/override", cfg.Node.DataDir)
}

func TestLoadRejectsKademliaModeWithoutBootstrapPeers(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "default.yaml", "dht:\n  mode: kademlia\n")

	_, err := Load(LoaderOptions{ConfigDir: dir})
	require.Error(t, err)
}

func TestLoadSkipValidationAllowsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "default.yaml", "dht:\n  mode: kademlia\n")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, "kademlia", cfg.DHT.Mode)
}

func TestSaveAndLoadFromFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roundtrip.yaml")

	original := &Config{Node: NodeConfig{DataDir: "/round/trip"}}
	require.NoError(t, SaveToFile(original, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/round/trip", loaded.Node.DataDir)
}

func TestValidateConfigurationFlagsEmptyDataDir(t *testing.T) {
	errs := ValidateConfiguration(&Config{ControlAPI: ControlAPIConfig{ListenAddr: "127.0.0.1:8787"}})
	var found bool
	for _, e := range errs {
		if e.Field == "node.data_dir" && e.Level == "error" {
			found = true
		}
	}
	assert.True(t, found, "expected node.data_dir error, got %+v", errs)
}
