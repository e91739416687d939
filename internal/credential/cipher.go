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

// Package credential seals and opens tenant database access tokens.
//
// A token is sealed separately for every user allowed to open the tenant's
// database: the encryption key is derived from the server secret plus that
// user's subject salt, so one user's stored blob is useless to another even
// though both decrypt to the same underlying token.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/pbkdf2"
)

// SubjectSalt is the canonical per-subject salt for a user id. Every
// sealing and opening of a given user's blob must use this same value.
func SubjectSalt(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// ErrUnreadable is returned when a sealed blob cannot be authenticated and
// decrypted. This is a distinct state from "no token": callers must never
// treat it as an empty credential.
var ErrUnreadable = errors.New("credential unreadable")

const (
	keyIterations = 4096
	keyLength     = 32 // AES-256
	nonceLength   = 12 // standard GCM nonce
)

// Cipher performs authenticated symmetric encryption of access tokens,
// keyed by a server-wide secret plus a per-subject salt.
type Cipher struct {
	secret []byte
}

// NewCipher creates a cipher from the server-wide credential secret.
// An empty secret is a configuration error and fatal at startup.
func NewCipher(serverSecret string) (*Cipher, error) {
	if serverSecret == "" {
		return nil, errors.New("credential secret is required")
	}
	return &Cipher{secret: []byte(serverSecret)}, nil
}

// Seal encrypts secretText under a key derived for subjectSalt and returns
// the ciphertext and the nonce used as IV. A fresh random IV is generated
// on every call, including for identical inputs.
func (c *Cipher) Seal(secretText, subjectSalt string) (ciphertext, iv []byte, err error) {
	gcm, err := c.aead(subjectSalt)
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, nonceLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	ciphertext = gcm.Seal(nil, iv, []byte(secretText), nil)
	return ciphertext, iv, nil
}

// Open decrypts a blob previously produced by Seal with the same
// subjectSalt and IV. A wrong salt or IV fails GCM authentication and
// surfaces as ErrUnreadable; garbage is never returned as a valid token.
func (c *Cipher) Open(ciphertext []byte, subjectSalt string, iv []byte) (string, error) {
	gcm, err := c.aead(subjectSalt)
	if err != nil {
		return "", err
	}

	if len(iv) != nonceLength {
		return "", ErrUnreadable
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return "", ErrUnreadable
	}
	return string(plaintext), nil
}

// aead builds an AES-256-GCM instance keyed for the given subject.
func (c *Cipher) aead(subjectSalt string) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.secret, []byte(subjectSalt), keyIterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gcm: %w", err)
	}
	return gcm, nil
}
