package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/backoffice/internal/authorization"
)

type Service interface {
	CreateUser(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	AssignRoles(ctx context.Context, req AssignRolesRequest) (*Response, error)
	AddRole(ctx context.Context, userID, roleID string) (*Response, error)
	RemoveRole(ctx context.Context, userID, roleID string) (*Response, error)
	Me(ctx context.Context, userID string) (*MeResponse, error)
}

// CreateRequest creates an account with a temporary password. When
// Password is empty one is generated and returned once.
type CreateRequest struct {
	Email      string   `json:"email"`
	Password   string   `json:"password"`
	Role       string   `json:"role"`
	MerchantID string   `json:"merchantId"`
	RoleIDs    []string `json:"roleIds"`
}

type AssignRolesRequest struct {
	UserID  string   `json:"-"`
	RoleIDs []string `json:"roleIds"`
}

type RoleView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

type Response struct {
	ID                     string             `json:"id"`
	Email                  string             `json:"email"`
	Role                   authorization.Role `json:"role"`
	MerchantID             *string            `json:"merchantId"`
	RequiresPasswordChange bool               `json:"requiresPasswordChange"`
	Roles                  []RoleView         `json:"roles"`
	CreatedAt              time.Time          `json:"createdAt"`
}

type CreateResponse struct {
	User              Response `json:"user"`
	TemporaryPassword string   `json:"temporaryPassword,omitempty"`
}

type MeResponse struct {
	Response
	Permissions []authorization.PermissionView `json:"permissions"`
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidPassword    = errors.New("invalid_password")
	ErrInvalidRole        = errors.New("invalid_role")
	ErrMerchantRequired   = errors.New("merchant_required")
	ErrMerchantNotAllowed = errors.New("merchant_not_allowed")
	ErrEmailTaken         = errors.New("email_taken")
	ErrRoleNotFound       = errors.New("role_not_found")
	ErrRoleTypeMismatch   = errors.New("role_type_mismatch")
	ErrNotFound           = errors.New("user_not_found")
)
