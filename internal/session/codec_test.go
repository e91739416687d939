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
	"strings"
	"testing"
	"time"

	"github.com/shopfloor/shopfloor/internal/identity"
)

func testSession() *Session {
	dbURL := "libsql://tenant-1.example.com"
	return &Session{
		User: identity.Public{ID: 10, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		TenantAccess: []Grant{
			{
				TenantID:        1,
				IV:              []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
				AccessTokenHash: []byte("sealed-blob"),
				Tenant:          GrantTenant{DBUrl: &dbURL},
			},
		},
		CurrentTenantID: 1,
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec("signing-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	artifact, err := codec.Encode(testSession())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := codec.Decode(artifact)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if got.User.ID != 10 || got.User.Email != "ada@example.com" {
		t.Errorf("decoded user = %+v", got.User)
	}
	if got.CurrentTenantID != 1 {
		t.Errorf("decoded CurrentTenantID = %d, want 1", got.CurrentTenantID)
	}
	if len(got.TenantAccess) != 1 || string(got.TenantAccess[0].AccessTokenHash) != "sealed-blob" {
		t.Errorf("decoded grants = %+v", got.TenantAccess)
	}
	if got.TenantAccess[0].Tenant.DBUrl == nil || *got.TenantAccess[0].Tenant.DBUrl != "libsql://tenant-1.example.com" {
		t.Errorf("decoded grant tenant = %+v", got.TenantAccess[0].Tenant)
	}
}

func TestCodecRejectsTampering(t *testing.T) {
	codec, err := NewCodec("signing-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	artifact, err := codec.Encode(testSession())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	// Flip a character in the payload segment
	parts := strings.Split(artifact, ".")
	if len(parts) != 3 {
		t.Fatalf("artifact has %d segments, want 3", len(parts))
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := codec.Decode(tampered); !errors.Is(err, ErrInvalidArtifact) {
		t.Errorf("Decode(tampered) error = %v, want ErrInvalidArtifact", err)
	}
}

func TestCodecRejectsWrongSecret(t *testing.T) {
	codec, err := NewCodec("secret-one", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	other, err := NewCodec("secret-two", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	artifact, err := codec.Encode(testSession())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if _, err := other.Decode(artifact); !errors.Is(err, ErrInvalidArtifact) {
		t.Errorf("Decode() with wrong secret error = %v, want ErrInvalidArtifact", err)
	}
}

func TestCodecRejectsExpired(t *testing.T) {
	codec, err := NewCodec("signing-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	codec.lifetime = -time.Minute

	artifact, err := codec.Encode(testSession())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	if _, err := codec.Decode(artifact); !errors.Is(err, ErrInvalidArtifact) {
		t.Errorf("Decode(expired) error = %v, want ErrInvalidArtifact", err)
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec, err := NewCodec("signing-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	for _, artifact := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := codec.Decode(artifact); !errors.Is(err, ErrInvalidArtifact) {
			t.Errorf("Decode(%q) error = %v, want ErrInvalidArtifact", artifact, err)
		}
	}
}
