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

package identity

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnacrypto"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
	"github.com/sage-x-project/dna-messenger-core/pkg/fingerprint"
)

const (
	dsaFileName      = ".dsa"
	kemFileName      = ".kem"
	mnemonicFileName = "mnemonic.enc"
)

// KeyMaterial is the decrypted payload held in session state for a loaded
// identity: the raw DSA and KEM key pairs.
type KeyMaterial struct {
	DsaPub  []byte
	DsaPriv []byte
	KemPub  []byte
	KemPriv []byte
}

// Zero overwrites every secret field, per spec §3's invariant that secrets
// are zeroed before their buffer is freed.
func (k *KeyMaterial) Zero() {
	zero(k.DsaPriv)
	zero(k.KemPriv)
}

// Session is the in-memory state produced by a successful Load/Create,
// consumed by the engine (C10) as part of Engine State.
type Session struct {
	Fingerprint fingerprint.Fingerprint
	Keys        KeyMaterial
	Password    string // empty when the identity is unencrypted
}

// Vault implements C4: load/save encrypted identity key material under a
// per-fingerprint directory tree rooted at DataDir.
type Vault struct {
	DataDir string
	Kem     dnacrypto.Kem
	Dsa     dnacrypto.Dsa
	log     logger.Logger
}

// New builds a Vault rooted at dataDir. kem/dsa may be nil to use the
// package defaults (Kyber1024 / Dilithium5).
func New(dataDir string, kem dnacrypto.Kem, dsa dnacrypto.Dsa, log logger.Logger) *Vault {
	if kem == nil {
		kem = dnacrypto.NewKem()
	}
	if dsa == nil {
		dsa = dnacrypto.NewDsa()
	}
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Vault{DataDir: dataDir, Kem: kem, Dsa: dsa, log: log.WithTag("identity")}
}

func (v *Vault) identityDir(fp fingerprint.Fingerprint) string {
	return filepath.Join(v.DataDir, fp.String())
}

// ListIdentities returns every fingerprint with a directory under DataDir
// (LIST_IDENTITIES task).
func (v *Vault) ListIdentities() ([]fingerprint.Fingerprint, error) {
	entries, err := os.ReadDir(v.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dnaerr.New(dnaerr.Internal, err)
	}
	var out []fingerprint.Fingerprint
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		fp, err := fingerprint.Parse(e.Name())
		if err != nil {
			continue
		}
		out = append(out, fp)
	}
	return out, nil
}

// Create generates a fresh DSA+KEM key pair, derives the fingerprint, and
// persists both files (encrypted if password is non-empty).
func (v *Vault) Create(password string) (*Session, error) {
	dsaPub, dsaPriv, err := v.Dsa.Keypair()
	if err != nil {
		return nil, dnaerr.New(dnaerr.Crypto, err)
	}
	kemPub, kemPriv, err := v.Kem.Keypair()
	if err != nil {
		return nil, dnaerr.New(dnaerr.Crypto, err)
	}

	fp := fingerprint.FromDSAPublicKey(dsaPub, dnacrypto.Hash512)

	dir := v.identityDir(fp)
	if _, statErr := os.Stat(dir); statErr == nil {
		return nil, dnaerr.New(dnaerr.AlreadyExists, fmt.Errorf("identity: %s already exists", fp))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, dnaerr.New(dnaerr.Internal, err)
	}

	if err := v.writeKeyFile(dir, dsaFileName, password, append(append([]byte{}, dsaPub...), dsaPriv...)); err != nil {
		return nil, err
	}
	if err := v.writeKeyFile(dir, kemFileName, password, append(append([]byte{}, kemPub...), kemPriv...)); err != nil {
		return nil, err
	}

	v.log.Info("identity created", logger.String("fingerprint", fp.String()))

	return &Session{
		Fingerprint: fp,
		Password:    password,
		Keys: KeyMaterial{
			DsaPub: dsaPub, DsaPriv: dsaPriv,
			KemPub: kemPub, KemPriv: kemPriv,
		},
	}, nil
}

// Load implements the spec §4.4 load sequence steps 1-2 (steps 3-10 are
// orchestrated by the engine, which owns contacts/listeners/profile state).
func (v *Vault) Load(fp fingerprint.Fingerprint, password string) (*Session, error) {
	dir := v.identityDir(fp)

	kemBlob, err := os.ReadFile(filepath.Join(dir, kemFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, dnaerr.New(dnaerr.NotFound, err)
		}
		return nil, dnaerr.New(dnaerr.Internal, err)
	}

	encrypted := IsEncrypted(kemBlob)
	if encrypted && password == "" {
		return nil, dnaerr.New(dnaerr.PasswordRequired, nil)
	}

	kemMaterial, err := v.readKeyFile(dir, kemFileName, password, encrypted)
	if err != nil {
		return nil, err
	}
	dsaMaterial, err := v.readKeyFile(dir, dsaFileName, password, encrypted)
	if err != nil {
		return nil, err
	}

	kemPubSize := v.Kem.PublicKeySize()
	dsaPubSize := v.Dsa.PublicKeySize()
	if len(kemMaterial) < kemPubSize || len(dsaMaterial) < dsaPubSize {
		return nil, dnaerr.New(dnaerr.Internal, fmt.Errorf("identity: key file shorter than expected public key size"))
	}

	session := &Session{
		Fingerprint: fp,
		Password:    password,
		Keys: KeyMaterial{
			KemPub:  kemMaterial[:kemPubSize],
			KemPriv: kemMaterial[kemPubSize:],
			DsaPub:  dsaMaterial[:dsaPubSize],
			DsaPriv: dsaMaterial[dsaPubSize:],
		},
	}

	v.log.Info("identity loaded", logger.String("fingerprint", fp.String()))
	return session, nil
}

// ChangePassword re-wraps .dsa, then .kem, then mnemonic.enc (if present)
// under newPassword, rolling back files already rewritten if a later step
// fails (spec §4.4).
func (v *Vault) ChangePassword(fp fingerprint.Fingerprint, oldPassword, newPassword string) error {
	dir := v.identityDir(fp)
	names := []string{dsaFileName, kemFileName}
	if _, err := os.Stat(filepath.Join(dir, mnemonicFileName)); err == nil {
		names = append(names, mnemonicFileName)
	}

	var rewritten []string
	var originals [][]byte

	rollback := func() {
		for i, name := range rewritten {
			_ = os.WriteFile(filepath.Join(dir, name), originals[i], 0o600)
		}
	}

	for _, name := range names {
		path := filepath.Join(dir, name)
		original, err := os.ReadFile(path)
		if err != nil {
			rollback()
			return dnaerr.New(dnaerr.Internal, err)
		}

		plaintext := original
		if IsEncrypted(original) {
			plaintext, err = openKeyMaterial(oldPassword, original)
			if err != nil {
				rollback()
				return err
			}
		}

		var fresh []byte
		if newPassword == "" {
			fresh = plaintext
		} else {
			fresh, err = sealKeyMaterial(newPassword, plaintext)
			if err != nil {
				rollback()
				return dnaerr.New(dnaerr.Crypto, err)
			}
		}

		if err := os.WriteFile(path, fresh, 0o600); err != nil {
			rollback()
			return dnaerr.New(dnaerr.Internal, err)
		}
		rewritten = append(rewritten, name)
		originals = append(originals, original)
	}

	return nil
}

// Delete removes fp's identity directory and its per-identity
// SQLite files (spec §4.4). Unloading a currently-active session is the
// engine's responsibility (it owns the singleton Engine State).
func (v *Vault) Delete(fp fingerprint.Fingerprint, dbDir string) error {
	dir := v.identityDir(fp)
	if err := os.RemoveAll(dir); err != nil {
		return dnaerr.New(dnaerr.Internal, err)
	}
	for _, suffix := range []string{"_contacts.db", "_profiles.db", "_groups.db"} {
		path := filepath.Join(dbDir, fp.String()+suffix)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return dnaerr.New(dnaerr.Internal, err)
		}
	}
	v.log.Info("identity deleted", logger.String("fingerprint", fp.String()))
	return nil
}

func (v *Vault) writeKeyFile(dir, name, password string, plaintext []byte) error {
	data := plaintext
	if password != "" {
		sealed, err := sealKeyMaterial(password, plaintext)
		if err != nil {
			return dnaerr.New(dnaerr.Crypto, err)
		}
		data = sealed
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		return dnaerr.New(dnaerr.Internal, err)
	}
	return nil
}

func (v *Vault) readKeyFile(dir, name, password string, encrypted bool) ([]byte, error) {
	blob, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, dnaerr.New(dnaerr.Internal, err)
	}
	if !encrypted {
		return blob, nil
	}
	return openKeyMaterial(password, blob)
}
