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

package dnacrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// SealMessageBody AES-256-GCM-encrypts (fingerprint || senderTs || plaintext)
// keyed by a KEM shared secret, per spec §3 OfflineMessage. It returns a
// fresh random 12-byte nonce and the sealed (ciphertext||tag) body.
func SealMessageBody(sharedSecret, fingerprint []byte, senderTs uint64, plaintext []byte) (nonce, sealed []byte, err error) {
	gcm, err := newGCM(sharedSecret)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("dnacrypto: generate nonce: %w", err)
	}

	body := make([]byte, 0, len(fingerprint)+8+len(plaintext))
	body = append(body, fingerprint...)
	body = append(body, encodeUint64(senderTs)...)
	body = append(body, plaintext...)

	sealed = gcm.Seal(nil, nonce, body, nil)
	return nonce, sealed, nil
}

// OpenMessageBody reverses SealMessageBody, returning the sender fingerprint,
// sender timestamp and plaintext.
func OpenMessageBody(sharedSecret, nonce, sealed []byte) (fingerprint []byte, senderTs uint64, plaintext []byte, err error) {
	gcm, err := newGCM(sharedSecret)
	if err != nil {
		return nil, 0, nil, err
	}

	body, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("dnacrypto: open message body: %w", err)
	}
	const fpLen = 64
	if len(body) < fpLen+8 {
		return nil, 0, nil, fmt.Errorf("dnacrypto: message body too short")
	}
	fingerprint = body[:fpLen]
	senderTs = decodeUint64(body[fpLen : fpLen+8])
	plaintext = body[fpLen+8:]
	return fingerprint, senderTs, plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	// The KEM shared secret is typically wider than 32 bytes; derive a
	// 256-bit AES key from its leading bytes the way the teacher's vault
	// derives an AES key from a PBKDF2 output of fixed size.
	aesKey := key
	if len(aesKey) > 32 {
		aesKey = aesKey[:32]
	} else if len(aesKey) < 32 {
		padded := make([]byte, 32)
		copy(padded, aesKey)
		aesKey = padded
	}
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("dnacrypto: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
	return b
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
