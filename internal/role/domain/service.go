package domain

import (
	"context"
	"errors"
	"time"

	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type ListRequest struct {
	Type string
}

// GrantRequest names a feature by id or slug. An empty Actions list is a
// full grant.
type GrantRequest struct {
	FeatureID   string   `json:"featureId,omitempty"`
	FeatureSlug string   `json:"featureSlug,omitempty"`
	Actions     []string `json:"actions"`
}

type CreateRequest struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Type           featuredomain.RoleType `json:"type"`
	HierarchyLevel int                    `json:"hierarchyLevel"`
	Grants         []GrantRequest         `json:"grants"`

	IsSystemRole bool `json:"-"`
}

type UpdateRequest struct {
	ID             string          `json:"-"`
	Name           *string         `json:"name,omitempty"`
	Description    *string         `json:"description,omitempty"`
	HierarchyLevel *int            `json:"hierarchyLevel,omitempty"`
	Grants         *[]GrantRequest `json:"grants,omitempty"`
}

type GrantResponse struct {
	FeatureID   string   `json:"featureId"`
	FeatureSlug string   `json:"featureSlug"`
	Actions     []string `json:"actions"`
}

type Response struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Type           featuredomain.RoleType `json:"type"`
	HierarchyLevel int                    `json:"hierarchyLevel"`
	IsSystemRole   bool                   `json:"isSystemRole"`
	Grants         []GrantResponse        `json:"grants"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

var (
	ErrInvalidID                = errors.New("invalid_id")
	ErrInvalidName              = errors.New("invalid_name")
	ErrInvalidType              = errors.New("invalid_role_type")
	ErrInvalidHierarchyLevel    = errors.New("invalid_hierarchy_level")
	ErrInvalidAction            = errors.New("invalid_action")
	ErrRoleNameTaken            = errors.New("role_name_taken")
	ErrFeatureNotFound          = errors.New("feature_not_found")
	ErrFeatureTypeMismatch      = errors.New("feature_type_mismatch")
	ErrHierarchyCeilingExceeded = errors.New("hierarchy_ceiling_exceeded")
	ErrSystemRoleProtected      = errors.New("system_role_protected")
	ErrNotFound                 = errors.New("role_not_found")
)
