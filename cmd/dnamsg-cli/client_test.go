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

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClientAttachesBearerTokenAndUnwrapsResult(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "ok"})
	}))
	defer srv.Close()

	serverAddr = srv.URL
	sessionFile = filepath.Join(t.TempDir(), "session")
	require.NoError(t, writeSessionToken("tok-123"))

	result, err := newAPIClient().do("GET", "/api/v1/contacts", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)

	var decoded string
	require.NoError(t, json.Unmarshal(result, &decoded))
	assert.Equal(t, "ok", decoded)
}

func TestAPIClientSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "wrong_password"})
	}))
	defer srv.Close()

	serverAddr = srv.URL
	sessionFile = filepath.Join(t.TempDir(), "session")

	_, err := newAPIClient().do("POST", "/api/v1/identities/load", map[string]string{"fingerprint": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong_password")
}

func TestReadSessionTokenReturnsEmptyWhenMissing(t *testing.T) {
	sessionFile = filepath.Join(t.TempDir(), "does-not-exist")
	assert.Equal(t, "", readSessionToken())
}
