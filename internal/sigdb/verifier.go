// Copyright 2026 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sigdb

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/sumdb/note"
)

// algECDSA marks an ECDSA P-256 verifier key, whose key material is a DER
// SubjectPublicKeyInfo.
const algECDSA = 2

var errVerifierID = errors.New("malformed verifier key")

// NewVerifier returns a verifier for signed signature tables.
//
// vkey is either a standard note Ed25519 verifier key, or an ECDSA key in
// the form <name>+<hash>+<base64(0x02 || SPKI)>, where hash is the first
// four bytes of the SHA-256 of the SPKI, in hex. ECDSA signatures are ASN.1
// over the SHA-256 of the note text.
func NewVerifier(vkey string) (note.Verifier, error) {
	name, rest, ok1 := strings.Cut(vkey, "+")
	hash16, key64, ok2 := strings.Cut(rest, "+")
	if !ok1 || !ok2 {
		return nil, errVerifierID
	}
	key, err := base64.StdEncoding.DecodeString(key64)
	if err != nil || len(key) == 0 {
		return nil, errVerifierID
	}
	if key[0] != algECDSA {
		return note.NewVerifier(vkey)
	}

	hash, err := strconv.ParseUint(hash16, 16, 32)
	if err != nil || len(hash16) != 8 {
		return nil, errVerifierID
	}
	pub, err := x509.ParsePKIXPublicKey(key[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errVerifierID, err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ECDSA key", errVerifierID)
	}
	if kh := ECDSAKeyHash(key[1:]); kh != uint32(hash) {
		return nil, fmt.Errorf("%w: key hash %08x, want %08x", errVerifierID, hash, kh)
	}
	return &ecdsaVerifier{name: name, hash: uint32(hash), pub: ecPub}, nil
}

// ECDSAVerifierKey encodes pub as a key NewVerifier accepts.
func ECDSAVerifierKey(name string, pub *ecdsa.PublicKey) (string, error) {
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	key := append([]byte{algECDSA}, spki...)
	return fmt.Sprintf("%s+%08x+%s", name, ECDSAKeyHash(spki), base64.StdEncoding.EncodeToString(key)), nil
}

// ECDSAKeyHash returns the key hash of an ECDSA key. Unlike Ed25519 note
// keys, the name is not part of the preimage.
func ECDSAKeyHash(spki []byte) uint32 {
	h := sha256.Sum256(spki)
	return binary.BigEndian.Uint32(h[:])
}

type ecdsaVerifier struct {
	name string
	hash uint32
	pub  *ecdsa.PublicKey
}

func (v *ecdsaVerifier) Name() string    { return v.name }
func (v *ecdsaVerifier) KeyHash() uint32 { return v.hash }

func (v *ecdsaVerifier) Verify(msg, sig []byte) bool {
	dgst := sha256.Sum256(msg)
	return ecdsa.VerifyASN1(v.pub, dgst[:], sig)
}
