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

package engine

import (
	"github.com/sage-x-project/dna-messenger-core/internal/wallets"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

// Callback is the single completion shape every async operation delivers
// exactly once (spec §6 collapses the four native-binding callback
// families — completion/strings/items/single-item — into one Go shape;
// Result carries whatever the per-task-type doc comment promises, nil on
// error). userData is passed through unexamined, as in the source.
type Callback func(requestID uint64, code dnaerr.Code, result interface{}, userData interface{})

// LifecycleState is the engine's own state machine (spec §4.10 "Engine
// lifecycle").
type LifecycleState int

const (
	StateCreated LifecycleState = iota
	StateRunning
	StateIdentityLoaded
	StateDestroyed
)

func (s LifecycleState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateIdentityLoaded:
		return "IDENTITY_LOADED"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// --- Per-task-type params -----------------------------------------------
//
// Each struct is the Params payload attached to a taskqueue.Task alongside
// its TaskType. Handlers type-assert Task.Params to the matching struct;
// the dispatch switch in Engine.dispatch is exhaustive by construction (see
// spec §9 "tagged task variants" redesign note).

type CreateIdentityParams struct {
	Password string
	Name     string // optional, registered after creation
}

type LoadIdentityParams struct {
	Fingerprint string
	Password    string
}

type DeleteIdentityParams struct {
	Fingerprint string
}

type RegisterNameParams struct {
	Name string
}

type LookupNameParams struct {
	Name string
}

type GetProfileParams struct {
	Fingerprint string // empty = self
}

type LookupProfileParams struct {
	Fingerprint string
}

type UpdateProfileParams struct {
	Profile Profile
}

// Profile is the engine-facing profile shape (spec §3 Profile, minus the
// signature/DSA pubkey the engine fills in itself).
type Profile struct {
	DisplayName string
	Wallets     wallets.Addresses
	Telegram    string
	X           string
	GitHub      string
	Bio         string
	AvatarB64   string
}

type AddContactParams struct {
	Identifier string // 128-hex fingerprint, or a registered name
	Notes      string
}

type RemoveContactParams struct {
	Fingerprint string
}

type SendContactRequestParams struct {
	RecipientFP string
	Message     string
}

type ApproveContactRequestParams struct {
	SenderFP string
}

type DenyContactRequestParams struct {
	SenderFP string
}

type BlockUserParams struct {
	Fingerprint string
}

type UnblockUserParams struct {
	Fingerprint string
}

type SendMessageParams struct {
	RecipientFP string
	Plaintext   []byte
	SlotID      uint64 // 0 when not submitted via the send queue
}

type GetConversationParams struct {
	ContactFP string
}

// ConversationMessage is the GET_CONVERSATION result item (spec §4.10).
type ConversationMessage struct {
	Seq       uint64
	Outbound  bool
	Plaintext []byte
	Status    int
	SentAtMS  int64
}

type WalletTaskParams struct {
	Chain     wallets.Chain
	ToAddress string
	Amount    string
	Limit     int
}
