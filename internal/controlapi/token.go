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
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrNoToken and ErrInvalidToken are returned by the auth middleware's
// inner verification path; handlers only ever see them wrapped in the
// 401 response, not directly.
var (
	ErrNoToken      = errors.New("controlapi: missing bearer token")
	ErrInvalidToken = errors.New("controlapi: invalid or expired token")
)

// sessionClaims is this process's own local session token, minted once
// load_identity succeeds and required on every subsequent request. It is
// never sent to, or verified by, any external identity provider — compare
// oidc/auth0's Agent.RequestToken, which signs an RS256 assertion *for*
// Auth0's /oauth/token endpoint; this is the same jwt.NewWithClaims +
// SignedString shape turned inward.
type sessionClaims struct {
	jwt.RegisteredClaims
	Fingerprint string `json:"fingerprint"`
}

// TokenIssuer mints and verifies local session tokens with a process-
// lifetime HS256 secret. A restart invalidates every outstanding token,
// which is correct: the control API has no durable session store, and a
// restarted daemon has no loaded identity either.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer generates a fresh random signing secret. ttl bounds how
// long a minted token remains valid; zero defaults to 12h.
func NewTokenIssuer(ttl time.Duration) (*TokenIssuer, error) {
	if ttl == 0 {
		ttl = 12 * time.Hour
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	return &TokenIssuer{secret: secret, ttl: ttl}, nil
}

// Issue mints a bearer token bound to fingerprint, to be returned from the
// load_identity endpoint.
func (i *TokenIssuer) Issue(fingerprint string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fingerprint,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		Fingerprint: fingerprint,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify parses and validates raw, returning the bound fingerprint.
func (i *TokenIssuer) Verify(raw string) (string, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	return claims.Fingerprint, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header.
func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrNoToken
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", ErrNoToken
	}
	return strings.TrimPrefix(h, prefix), nil
}
