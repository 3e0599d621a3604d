// Package user resolves and updates the signed-in principal's AdminUser record.
package user

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	iam "github.com/chimerakang/portfolio-iam"
)

// Backend defines the contract for pluggable admin-user backends (REST, in-memory, etc.).
type Backend interface {
	// GetCurrent returns the AdminUser linked to the principal that issued token.
	GetCurrent(ctx context.Context, token string) (*iam.AdminUser, error)

	// UpdateCurrent applies a partial update to the signed-in AdminUser.
	UpdateCurrent(ctx context.Context, req UpdateRequest) (*iam.AdminUser, error)
}

// UpdateRequest is a partial profile update. Empty fields are left unchanged.
type UpdateRequest struct {
	DisplayName string `json:"display_name,omitempty" validate:"omitempty,max=100"`
	Email       string `json:"email,omitempty" validate:"omitempty,email,max=254"`
}

// Service implements iam.AdminUserResolver with a configurable backend.
type Service struct {
	backend  Backend
	validate *validator.Validate
}

var _ iam.AdminUserResolver = (*Service)(nil)

// New creates a new Service with the given backend.
func New(backend Backend) *Service {
	return &Service{backend: backend, validate: validator.New()}
}

// CurrentAdminUser returns the AdminUser for token. Backend failures keep
// their *iam.APIError so callers can branch on the HTTP status.
func (s *Service) CurrentAdminUser(ctx context.Context, token string) (*iam.AdminUser, error) {
	if token == "" {
		return nil, fmt.Errorf("iam/user: token cannot be empty")
	}

	u, err := s.backend.GetCurrent(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("iam/user: %w", err)
	}
	return u, nil
}

// UpdateCurrent validates and submits a profile update.
// Callers refresh the session afterwards to pick up the new record.
func (s *Service) UpdateCurrent(ctx context.Context, req UpdateRequest) (*iam.AdminUser, error) {
	if req.DisplayName == "" && req.Email == "" {
		return nil, fmt.Errorf("iam/user: nothing to update")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("iam/user: invalid update: %w", err)
	}

	u, err := s.backend.UpdateCurrent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("iam/user: %w", err)
	}
	return u, nil
}
