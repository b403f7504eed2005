package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, req ListRequest) ([]Response, error)
	GetBySlug(ctx context.Context, slug string) (*Response, error)
}

type ListRequest struct {
	Type       string
	ActiveOnly bool
}

type CreateRequest struct {
	Slug              string   `json:"slug"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	IsPageLevel       bool     `json:"isPageLevel"`
	RoleType          RoleType `json:"roleType"`
	MinHierarchyLevel *int     `json:"minHierarchyLevel,omitempty"`
	Active            *bool    `json:"active,omitempty"`
}

// UpdateRequest carries the mutable fields. Slug, RoleType and IsPageLevel
// are accepted only so a change attempt can be rejected explicitly.
type UpdateRequest struct {
	ID                string    `json:"-"`
	Name              *string   `json:"name,omitempty"`
	Description       *string   `json:"description,omitempty"`
	Active            *bool     `json:"active,omitempty"`
	MinHierarchyLevel *int      `json:"minHierarchyLevel,omitempty"`
	Slug              *string   `json:"slug,omitempty"`
	RoleType          *RoleType `json:"roleType,omitempty"`
	IsPageLevel       *bool     `json:"isPageLevel,omitempty"`
}

type Response struct {
	ID                string    `json:"id"`
	Slug              string    `json:"slug"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	IsPageLevel       bool      `json:"isPageLevel"`
	RoleType          RoleType  `json:"roleType"`
	MinHierarchyLevel int       `json:"minHierarchyLevel"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

var (
	ErrInvalidSlug           = errors.New("invalid_slug")
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidRoleType       = errors.New("invalid_role_type")
	ErrInvalidHierarchyLevel = errors.New("invalid_hierarchy_level")
	ErrInvalidID             = errors.New("invalid_id")
	ErrSlugTaken             = errors.New("feature_slug_taken")
	ErrImmutableField        = errors.New("feature_immutable_field")
	ErrFeatureInUse          = errors.New("feature_in_use")
	ErrNotFound              = errors.New("feature_not_found")
)
