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

// Package controlapi is the local HTTP control surface a UI process (or the
// CLI) drives the Engine singleton through. It exists because the Engine's
// public API is callback-based, request-id-addressed (spec §6) — a shape
// suited to an in-process native binding, not an HTTP client; every handler
// here bridges exactly one Engine call back into a synchronous JSON
// response. A session token minted on a successful load_identity call
// guards every route but /api/v1/identities, /api/v1/identities/load and
// /healthz.
package controlapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sage-x-project/dna-messenger-core/internal/engine"
	"github.com/sage-x-project/dna-messenger-core/internal/eventbus"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/internal/pushgateway"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

// Server exposes a subset of the Engine's public API over HTTP, guarded by
// a locally-minted JWT session token.
type Server struct {
	engine  *engine.Engine
	tokens  *TokenIssuer
	log     logger.Logger
	gateway *pushgateway.Gateway
	httpSrv *http.Server
	timeout time.Duration
}

// NewServer wires eng and an optional pushgateway (nil disables /ws) behind
// an HTTP mux listening on addr. tokenTTL bounds how long a session token
// minted by load_identity remains valid; zero defers to TokenIssuer's own
// 12h default.
func NewServer(eng *engine.Engine, gw *pushgateway.Gateway, log logger.Logger, addr string, tokenTTL time.Duration) (*Server, error) {
	tokens, err := NewTokenIssuer(tokenTTL)
	if err != nil {
		return nil, err
	}
	s := &Server{engine: eng, tokens: tokens, log: log, gateway: gw, timeout: 30 * time.Second}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/v1/identities", s.requireNone(s.handleIdentities))
	mux.HandleFunc("/api/v1/identities/load", s.requireNone(s.handleLoadIdentity))
	mux.HandleFunc("/api/v1/identities/delete", s.requireAuth(s.handleDeleteIdentity))
	mux.HandleFunc("/api/v1/contacts", s.requireAuth(s.handleContacts))
	mux.HandleFunc("/api/v1/contacts/requests/send", s.requireAuth(s.handleSendContactRequest))
	mux.HandleFunc("/api/v1/contacts/requests/approve", s.requireAuth(s.handleApproveContactRequest))
	mux.HandleFunc("/api/v1/messages/send", s.requireAuth(s.handleSendMessage))
	mux.HandleFunc("/api/v1/messages/conversation", s.requireAuth(s.handleGetConversation))
	mux.HandleFunc("/api/v1/profile", s.requireAuth(s.handleGetProfile))
	mux.HandleFunc("/api/v1/profile/update", s.requireAuth(s.handleUpdateProfile))
	if gw != nil {
		mux.Handle("/ws", s.requireAuth(gw.Handler().ServeHTTP))
		eng.Subscribe(func(evt eventbus.Event, userData interface{}) { gw.Broadcast(evt) }, nil)
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) Start() error {
	s.log.Info("starting control api server", logger.String("addr", s.httpSrv.Addr))
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("control api server error", logger.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// --- auth middleware ---------------------------------------------------

// requireNone wraps a handler that mints or doesn't yet need a token
// (identity listing/loading).
func (s *Server) requireNone(h http.HandlerFunc) http.HandlerFunc { return h }

// requireAuth wraps a handler that needs a valid session token, injecting
// the bound fingerprint into the request context.
func (s *Server) requireAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		fp, err := s.tokens.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		h(w, r.WithContext(context.WithValue(r.Context(), ctxFingerprintKey{}, fp)))
	}
}

type ctxFingerprintKey struct{}

// --- plumbing ------------------------------------------------------------

func (s *Server) callCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeCallResult(w http.ResponseWriter, r callResult, err error) {
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err)
		return
	}
	if r.Code != dnaerr.OK {
		writeJSON(w, httpStatusFor(r.Code), map[string]interface{}{"error": r.Code.String()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": r.Result})
}

func httpStatusFor(code dnaerr.Code) int {
	switch code {
	case dnaerr.NotFound:
		return http.StatusNotFound
	case dnaerr.AlreadyExists:
		return http.StatusConflict
	case dnaerr.Permission, dnaerr.WrongPassword, dnaerr.PasswordRequired:
		return http.StatusForbidden
	case dnaerr.InvalidArg, dnaerr.InvalidParam:
		return http.StatusBadRequest
	case dnaerr.NoIdentity, dnaerr.NotInitialized:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- handlers --------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIdentities(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Password string `json:"password"`
			Name     string `json:"name"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ctx, cancel := s.callCtx(r)
		defer cancel()
		res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}) , ud interface{}) uint64 {
			return s.engine.CreateIdentity(req.Password, req.Name, engine.Callback(cb), ud)
		})
		writeCallResult(w, res, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}), ud interface{}) uint64 {
		return s.engine.ListIdentities(engine.Callback(cb), ud)
	})
	writeCallResult(w, res, err)
}

func (s *Server) handleLoadIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fingerprint string `json:"fingerprint"`
		Password    string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := s.callCtx(r)
	defer cancel()
	res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}), ud interface{}) uint64 {
		return s.engine.LoadIdentity(req.Fingerprint, req.Password, engine.Callback(cb), ud)
	})
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, err)
		return
	}
	if res.Code != dnaerr.OK {
		writeJSON(w, httpStatusFor(res.Code), map[string]interface{}{"error": res.Code.String()})
		return
	}

	fp, _ := res.Result.(string)
	token, err := s.tokens.Issue(fp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fingerprint": fp, "token": token})
}

func (s *Server) handleDeleteIdentity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := s.callCtx(r)
	defer cancel()
	res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}), ud interface{}) uint64 {
		return s.engine.DeleteIdentity(req.Fingerprint, engine.Callback(cb), ud)
	})
	writeCallResult(w, res, err)
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.callCtx(r)
	defer cancel()
	res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}), ud interface{}) uint64 {
		return s.engine.GetContacts(engine.Callback(cb), ud)
	})
	writeCallResult(w, res, err)
}

func (s *Server) handleSendContactRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientFP string `json:"recipient_fp"`
		Message     string `json:"message"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := s.callCtx(r)
	defer cancel()
	res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}), ud interface{}) uint64 {
		return s.engine.SendContactRequest(req.RecipientFP, req.Message, engine.Callback(cb), ud)
	})
	writeCallResult(w, res, err)
}

func (s *Server) handleApproveContactRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderFP string `json:"sender_fp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := s.callCtx(r)
	defer cancel()
	res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}), ud interface{}) uint64 {
		return s.engine.ApproveContactRequest(req.SenderFP, engine.Callback(cb), ud)
	})
	writeCallResult(w, res, err)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RecipientFP string `json:"recipient_fp"`
		Plaintext   []byte `json:"plaintext"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := s.callCtx(r)
	defer cancel()
	res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}), ud interface{}) uint64 {
		return s.engine.SendMessage(req.RecipientFP, req.Plaintext, 0, engine.Callback(cb), ud)
	})
	writeCallResult(w, res, err)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	contactFP := r.URL.Query().Get("contact_fp")
	if contactFP == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing contact_fp"))
		return
	}
	ctx, cancel := s.callCtx(r)
	defer cancel()
	res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}), ud interface{}) uint64 {
		return s.engine.GetConversation(contactFP, engine.Callback(cb), ud)
	})
	writeCallResult(w, res, err)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	fp := r.URL.Query().Get("fingerprint")
	ctx, cancel := s.callCtx(r)
	defer cancel()
	res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}), ud interface{}) uint64 {
		return s.engine.GetProfile(fp, engine.Callback(cb), ud)
	})
	writeCallResult(w, res, err)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req engine.Profile
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := s.callCtx(r)
	defer cancel()
	res, err := await(ctx, func(cb func(uint64, dnaerr.Code, interface{}, interface{}), ud interface{}) uint64 {
		return s.engine.UpdateProfile(req, engine.Callback(cb), ud)
	})
	writeCallResult(w, res, err)
}
