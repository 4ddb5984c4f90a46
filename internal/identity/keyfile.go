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

// Package identity implements C4: the encrypted identity vault (spec §4.4).
// Key files use a binary header, not the teacher's JSON envelope, per the
// spec's interop format: magic(4) || version(1) || salt(32) || nonce(12) ||
// tag(16) || ciphertext.
package identity

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

var keyFileMagic = [4]byte{'D', 'N', 'A', '1'}

const (
	keyFileVersion  = 1
	pbkdf2Rounds    = 600000
	saltSize        = 32
	nonceSize       = 12
	tagSize         = 16
	derivedKeyBytes = 32
)

var (
	ErrBadMagic   = errors.New("identity: bad key file magic")
	ErrBadVersion = errors.New("identity: unsupported key file version")
	ErrTruncated  = errors.New("identity: truncated key file")
)

// IsEncrypted reports whether data begins with the DNA key-file magic.
func IsEncrypted(data []byte) bool {
	return len(data) >= 4 && bytes.Equal(data[:4], keyFileMagic[:])
}

// sealKeyMaterial encrypts plaintext key material under password, producing
// the on-disk header+ciphertext blob described in spec §4.4.
func sealKeyMaterial(password string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("identity: generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("identity: generate nonce: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	// crypto/cipher's GCM.Seal appends the tag; split so the on-disk layout
	// matches the spec's explicit tag(16) || ciphertext fields.
	if len(sealed) < tagSize {
		return nil, fmt.Errorf("identity: sealed output shorter than tag size")
	}
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	buf := bytes.NewBuffer(make([]byte, 0, 4+1+saltSize+nonceSize+tagSize+len(ciphertext)))
	buf.Write(keyFileMagic[:])
	buf.WriteByte(keyFileVersion)
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(tag)
	buf.Write(ciphertext)
	return buf.Bytes(), nil
}

// openKeyMaterial decrypts a blob produced by sealKeyMaterial. A wrong
// password surfaces as dnaerr.WrongPassword (GCM tag mismatch).
func openKeyMaterial(password string, blob []byte) ([]byte, error) {
	if len(blob) < 4+1+saltSize+nonceSize+tagSize {
		return nil, dnaerr.New(dnaerr.Internal, ErrTruncated)
	}
	if !bytes.Equal(blob[:4], keyFileMagic[:]) {
		return nil, dnaerr.New(dnaerr.Internal, ErrBadMagic)
	}
	version := blob[4]
	if version != keyFileVersion {
		return nil, dnaerr.New(dnaerr.Internal, ErrBadVersion)
	}

	off := 5
	salt := blob[off : off+saltSize]
	off += saltSize
	nonce := blob[off : off+nonceSize]
	off += nonceSize
	tag := blob[off : off+tagSize]
	off += tagSize
	ciphertext := blob[off:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, dnaerr.New(dnaerr.WrongPassword, err)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, derivedKeyBytes, sha256.New)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("identity: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("identity: new gcm: %w", err)
	}
	return gcm, nil
}

// zero overwrites a secret buffer before it is released, per spec §3's
// invariant that secrets are zeroed before their buffer is freed.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
