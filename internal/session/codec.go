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

package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shopfloor/shopfloor/internal/id"
)

// Codec serializes sessions into the opaque signed artifact stored in the
// client cookie. The artifact is HMAC-signed; tampering or an unknown
// signing algorithm invalidates it.
type Codec struct {
	secret   []byte
	lifetime time.Duration
}

// NewCodec creates a session codec. An empty signing secret is a
// configuration error and fatal at startup.
func NewCodec(signingSecret string, lifetime time.Duration) (*Codec, error) {
	if signingSecret == "" {
		return nil, errors.New("session signing secret is required")
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &Codec{secret: []byte(signingSecret), lifetime: lifetime}, nil
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Session *Session `json:"sess"`
}

// Encode signs the session into its transport form.
func (c *Codec) Encode(s *Session) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.NewUUIDv7(),
			Subject:   fmt.Sprintf("%d", s.User.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.lifetime)),
		},
		Session: s,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	artifact, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return artifact, nil
}

// Decode verifies the signature and expiry and returns the embedded
// session. Any verification failure is ErrInvalidArtifact.
func (c *Codec) Decode(artifact string) (*Session, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(artifact, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid || claims.Session == nil {
		return nil, ErrInvalidArtifact
	}
	return claims.Session, nil
}
