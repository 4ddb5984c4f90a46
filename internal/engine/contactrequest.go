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
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// acceptedMessage is the reciprocal-acceptance sentinel (spec §3
// ContactRequest: "a request whose message equals this is treated as an
// acceptance, not a new request").
const acceptedMessage = "Contact request accepted"

// contactRequest is the spec §3 ContactRequest record, signed and
// published to inbox:<recipient_fp> (a fan-in key).
type contactRequest struct {
	SenderFP    string
	SenderName  string
	Message     string
	TimestampMS int64
	Signature   []byte
}

func (r contactRequest) canonicalEncoding() []byte {
	var buf bytes.Buffer
	writeStr := func(s string) {
		var lenField [4]byte
		binary.BigEndian.PutUint32(lenField[:], uint32(len(s)))
		buf.Write(lenField[:])
		buf.WriteString(s)
	}
	writeStr(r.SenderFP)
	writeStr(r.SenderName)
	writeStr(r.Message)
	var tsField [8]byte
	binary.BigEndian.PutUint64(tsField[:], uint64(r.TimestampMS))
	buf.Write(tsField[:])
	return buf.Bytes()
}

func marshalContactRequest(r contactRequest) ([]byte, error) {
	return json.Marshal(r)
}

func unmarshalContactRequest(data []byte) (contactRequest, error) {
	var r contactRequest
	if err := json.Unmarshal(data, &r); err != nil {
		return contactRequest{}, fmt.Errorf("engine: unmarshal contact request: %w", err)
	}
	return r, nil
}

// contactListEntry is one row of the signed contact list published to
// contactlist:<self_fp> (spec §3 Contact: "contact list also synced to DHT
// ... so that reinstalls can restore it").
type contactListEntry struct {
	IdentityFP string `json:"identity_fp"`
	Notes      string `json:"notes,omitempty"`
	AddedAtMS  int64  `json:"added_at_ms"`
	Blocked    bool   `json:"blocked,omitempty"`
}

type signedContactList struct {
	Entries     []contactListEntry `json:"entries"`
	TimestampMS int64               `json:"timestamp_ms"`
	Signature   []byte              `json:"signature"`
}

func (l signedContactList) canonicalEncoding() []byte {
	var buf bytes.Buffer
	var countField [4]byte
	binary.BigEndian.PutUint32(countField[:], uint32(len(l.Entries)))
	buf.Write(countField[:])
	for _, e := range l.Entries {
		var lenField [4]byte
		binary.BigEndian.PutUint32(lenField[:], uint32(len(e.IdentityFP)))
		buf.Write(lenField[:])
		buf.WriteString(e.IdentityFP)
		if e.Blocked {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}
	var tsField [8]byte
	binary.BigEndian.PutUint64(tsField[:], uint64(l.TimestampMS))
	buf.Write(tsField[:])
	return buf.Bytes()
}

func marshalContactList(l signedContactList) ([]byte, error) {
	return json.Marshal(l)
}

func unmarshalContactList(data []byte) (signedContactList, error) {
	var l signedContactList
	if err := json.Unmarshal(data, &l); err != nil {
		return signedContactList{}, fmt.Errorf("engine: unmarshal contact list: %w", err)
	}
	return l, nil
}

func inboxKey(recipientFP string) []byte {
	return []byte("inbox:" + recipientFP)
}

func contactListKey(selfFP string) []byte {
	return []byte("contactlist:" + selfFP)
}
