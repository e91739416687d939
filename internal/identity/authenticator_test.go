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

import "testing"

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator("test-pepper", 1000)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	return a
}

func TestNewAuthenticatorValidation(t *testing.T) {
	if _, err := NewAuthenticator("", 1000); err == nil {
		t.Error("NewAuthenticator with empty pepper expected error")
	}
	if _, err := NewAuthenticator("pepper", 999); err == nil {
		t.Error("NewAuthenticator with 999 iterations expected error")
	}
}

func TestHashIsDeterministic(t *testing.T) {
	a := newTestAuthenticator(t)

	salt, err := a.NewSalt()
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}

	h1 := a.Hash("correct horse battery staple", salt)
	h2 := a.Hash("correct horse battery staple", salt)
	if h1 != h2 {
		t.Error("same password and salt produced different digests")
	}

	otherSalt, err := a.NewSalt()
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}
	if a.Hash("correct horse battery staple", otherSalt) == h1 {
		t.Error("different salts produced the same digest")
	}
}

func TestVerify(t *testing.T) {
	a := newTestAuthenticator(t)

	salt, err := a.NewSalt()
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}
	digest := a.Hash("s3cret-password", salt)

	if !a.Verify("s3cret-password", salt, digest) {
		t.Error("Verify() with correct password = false, want true")
	}
	if a.Verify("wrong-password", salt, digest) {
		t.Error("Verify() with wrong password = true, want false")
	}
	if a.Verify("s3cret-password", "0000", digest) {
		t.Error("Verify() with wrong salt = true, want false")
	}
}

func TestPepperChangesDigest(t *testing.T) {
	a1, err := NewAuthenticator("pepper-one", 1000)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}
	a2, err := NewAuthenticator("pepper-two", 1000)
	if err != nil {
		t.Fatalf("NewAuthenticator() error = %v", err)
	}

	if a1.Hash("password123", "fixed-salt") == a2.Hash("password123", "fixed-salt") {
		t.Error("different peppers produced the same digest")
	}
}
