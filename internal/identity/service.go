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
	"context"
	"fmt"
	"strings"

	"github.com/shopfloor/shopfloor/internal/audit"
)

// Service provides identity-related business logic
type Service struct {
	repo          Repository
	authenticator *Authenticator
	auditLogger   audit.Logger
}

// NewService creates a new identity service
func NewService(repo Repository, authenticator *Authenticator, auditLogger audit.Logger) *Service {
	return &Service{
		repo:          repo,
		authenticator: authenticator,
		auditLogger:   auditLogger,
	}
}

// Register creates a new user with a freshly salted password digest.
// Emails are globally unique across the registry.
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName, role string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !isStrongPassword(password) {
		return nil, ErrWeakPassword
	}

	if existing, err := s.repo.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrUserAlreadyExists
	}

	salt, err := s.authenticator.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user := &User{
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: s.authenticator.Hash(password, salt),
		Salt:         salt,
		Role:         role,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeUserCreated,
		ActorID:  user.ID,
		Resource: "user",
		Metadata: map[string]any{"email": user.Email},
	})

	return user, nil
}

// Authenticate verifies email/password and returns the user on success.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			Resource: email,
			Metadata: map[string]any{audit.AttrReason: "user_not_found"},
		})
		return nil, ErrInvalidCredentials
	}

	if !s.authenticator.Verify(password, user.Salt, user.PasswordHash) {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeLoginFailed,
			ActorID:  user.ID,
			Resource: "login",
			Metadata: map[string]any{audit.AttrReason: "invalid_password"},
		})
		return nil, ErrInvalidCredentials
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeLoginSuccess,
		ActorID:  user.ID,
		Resource: "login",
	})

	return user, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID int64) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile updates the self-service profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, firstName, lastName string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	user.FirstName = firstName
	user.LastName = lastName
	return s.repo.Update(ctx, user)
}

// ChangePassword verifies the old password, then stores a new digest under
// a fresh salt.
func (s *Service) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return ErrUserNotFound
	}

	if !s.authenticator.Verify(oldPassword, user.Salt, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if !isStrongPassword(newPassword) {
		return ErrWeakPassword
	}

	salt, err := s.authenticator.NewSalt()
	if err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, userID, s.authenticator.Hash(newPassword, salt), salt); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePasswordChanged,
		ActorID:  userID,
		Resource: "user_credentials",
	})

	return nil
}

// Helper functions
func isValidEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1 && len(email) < 255
}

func isStrongPassword(password string) bool {
	return len(password) >= 8
}
