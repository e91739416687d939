// Copyright 2026 The Shopfloor Authors
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

package identity

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength = 16
	keyLength  = 64 // 512-bit digest
)

// Authenticator performs one-way password hashing and verification.
// The derivation combines a server-wide pepper with the stored per-user
// salt, so registry rows alone are not enough to mount an offline attack.
type Authenticator struct {
	pepper     []byte
	iterations int
}

// NewAuthenticator creates an authenticator. An empty pepper is a
// configuration error and fatal at startup.
func NewAuthenticator(pepper string, iterations int) (*Authenticator, error) {
	if pepper == "" {
		return nil, errors.New("password pepper is required")
	}
	if iterations < 1000 {
		return nil, fmt.Errorf("pbkdf2 iterations too low: %d", iterations)
	}
	return &Authenticator{pepper: []byte(pepper), iterations: iterations}, nil
}

// NewSalt returns a fresh random salt, hex encoded for storage.
func (a *Authenticator) NewSalt() (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

// Hash derives a digest for the password under the given salt. The same
// inputs always produce the same digest.
func (a *Authenticator) Hash(password, salt string) string {
	material := append(append([]byte{}, a.pepper...), []byte(password)...)
	digest := pbkdf2.Key(material, []byte(salt), a.iterations, keyLength, sha512.New)
	return hex.EncodeToString(digest)
}

// Verify recomputes the digest and compares it in constant time. A
// mismatch is a false return, never an error.
func (a *Authenticator) Verify(password, salt, expectedDigest string) bool {
	actual := a.Hash(password, salt)
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expectedDigest)) == 1
}
