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

package controlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/dna-messenger-core/internal/engine"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnacrypto"
)

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	eng := engine.New(t.TempDir(), engine.Deps{Kem: dnacrypto.NewKem(), Dsa: dnacrypto.NewDsa()})
	eng.Start(context.Background())
	t.Cleanup(eng.Destroy)

	srv, err := NewServer(eng, nil, logger.GetDefaultLogger(), ":0", 0)
	require.NoError(t, err)
	return srv, eng
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateLoadAndAuthenticatedCall(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.httpSrv.Handler

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/identities", map[string]string{"password": "s3cret!", "name": "alice"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var created struct {
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Result, 128)

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/identities/load", map[string]string{"fingerprint": created.Result, "password": "s3cret!"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var loaded struct {
		Fingerprint string `json:"fingerprint"`
		Token       string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loaded))
	require.Equal(t, created.Result, loaded.Fingerprint)
	require.NotEmpty(t, loaded.Token)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/contacts", nil, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, mux, http.MethodGet, "/api/v1/contacts", nil, loaded.Token)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadIdentityWrongPasswordRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := srv.httpSrv.Handler

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/identities", map[string]string{"password": "correct"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var created struct {
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, mux, http.MethodPost, "/api/v1/identities/load", map[string]string{"fingerprint": created.Result, "password": "wrong"}, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTokenIssuerRejectsTamperedToken(t *testing.T) {
	issuer, err := NewTokenIssuer(time.Minute)
	require.NoError(t, err)

	token, err := issuer.Issue("abc123")
	require.NoError(t, err)

	_, err = issuer.Verify(token + "x")
	require.ErrorIs(t, err, ErrInvalidToken)

	fp, err := issuer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "abc123", fp)
}
