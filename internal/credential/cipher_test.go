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

package credential

import (
	"bytes"
	"errors"
	"testing"
)

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher("test-server-secret-0123456789")
	if err != nil {
		t.Fatalf("NewCipher() error = %v", err)
	}
	return c
}

func TestNewCipherRequiresSecret(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Fatal("NewCipher(\"\") expected error, got nil")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := newTestCipher(t)
	salt := SubjectSalt(42)
	token := "eyJhbGciOiJFZERTQSJ9.access-token"

	ciphertext, iv, err := c.Seal(token, salt)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if len(iv) != nonceLength {
		t.Fatalf("iv length = %d, want %d", len(iv), nonceLength)
	}
	if bytes.Contains(ciphertext, []byte(token)) {
		t.Fatal("ciphertext contains the plaintext token")
	}

	got, err := c.Open(ciphertext, salt, iv)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != token {
		t.Errorf("Open() = %q, want %q", got, token)
	}
}

// TestPurpose: Verify per-user key separation for sealed credentials
// Scope: Cipher.Seal / Cipher.Open
// Security: One user's stored blob must be useless under another user's salt
// Expected: Opening with a different subject salt fails with ErrUnreadable
// Test Case ID: TC-CRED-001
func TestOpenWithWrongSubjectSalt(t *testing.T) {
	c := newTestCipher(t)
	token := "shared-tenant-token"

	ciphertext, iv, err := c.Seal(token, SubjectSalt(1))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if _, err := c.Open(ciphertext, SubjectSalt(2), iv); !errors.Is(err, ErrUnreadable) {
		t.Errorf("Open() with wrong salt error = %v, want ErrUnreadable", err)
	}
}

func TestOpenWithWrongIV(t *testing.T) {
	c := newTestCipher(t)
	salt := SubjectSalt(7)

	ciphertext, iv, err := c.Seal("token", salt)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	wrongIV := make([]byte, len(iv))
	copy(wrongIV, iv)
	wrongIV[0] ^= 0xff

	if _, err := c.Open(ciphertext, salt, wrongIV); !errors.Is(err, ErrUnreadable) {
		t.Errorf("Open() with tampered iv error = %v, want ErrUnreadable", err)
	}

	if _, err := c.Open(ciphertext, salt, iv[:4]); !errors.Is(err, ErrUnreadable) {
		t.Errorf("Open() with short iv error = %v, want ErrUnreadable", err)
	}
}

func TestSealGeneratesFreshIV(t *testing.T) {
	c := newTestCipher(t)
	salt := SubjectSalt(9)

	ct1, iv1, err := c.Seal("same-token", salt)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	ct2, iv2, err := c.Seal("same-token", salt)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if bytes.Equal(iv1, iv2) {
		t.Error("two Seal() calls produced the same iv")
	}
	if bytes.Equal(ct1, ct2) {
		t.Error("two Seal() calls produced the same ciphertext")
	}
}

func TestSealEmptyToken(t *testing.T) {
	// Local-mode tenants carry an empty token; it must round-trip like any
	// other credential.
	c := newTestCipher(t)
	salt := SubjectSalt(5)

	ciphertext, iv, err := c.Seal("", salt)
	if err != nil {
		t.Fatalf("Seal(\"\") error = %v", err)
	}

	got, err := c.Open(ciphertext, salt, iv)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != "" {
		t.Errorf("Open() = %q, want empty string", got)
	}
}

func TestSubjectSalt(t *testing.T) {
	if got := SubjectSalt(1234); got != "1234" {
		t.Errorf("SubjectSalt(1234) = %q, want %q", got, "1234")
	}
}
