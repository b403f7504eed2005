package authorization

import (
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
)

// Role is the coarse legacy role carried on every user and used as the
// first-pass gate before feature checks.
type Role string

const (
	RolePlatformOwner Role = "PLATFORM_OWNER"
	RoleMerchantAdmin Role = "MERCHANT_ADMIN"
	RoleMerchantStaff Role = "MERCHANT_STAFF"
)

func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RolePlatformOwner:
		return RolePlatformOwner, true
	case RoleMerchantAdmin:
		return RoleMerchantAdmin, true
	case RoleMerchantStaff:
		return RoleMerchantStaff, true
	}
	return "", false
}

// IsMerchant reports whether the role belongs to the merchant family.
func (r Role) IsMerchant() bool {
	return r == RoleMerchantAdmin || r == RoleMerchantStaff
}

// Session is the authenticated caller together with the permission set
// resolved for this request. It is passed explicitly to every check.
type Session struct {
	UserID                 snowflake.ID
	Email                  string
	Role                   Role
	MerchantID             *snowflake.ID
	RequiresPasswordChange bool
	Permissions            PermissionSet

	// SubscriptionActive is the effective subscription state of the
	// caller's merchant. Nil for platform users.
	SubscriptionActive *bool
}

func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != 0
}

func (s *Session) HasRole(roles ...Role) bool {
	if !s.Authenticated() {
		return false
	}
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

func (s *Session) HasFeature(slug string) bool {
	return s.Authenticated() && s.Permissions.HasFeature(slug)
}

func (s *Session) HasAction(slug, action string) bool {
	return s.Authenticated() && s.Permissions.HasAction(slug, action)
}

func (s *Session) CanAccess(slug, action string) bool {
	return s.Authenticated() && s.Permissions.CanAccess(slug, action)
}

// SubscriptionBlocked reports whether a merchant caller lacks an
// effectively active subscription.
func (s *Session) SubscriptionBlocked() bool {
	if !s.Authenticated() || !s.Role.IsMerchant() {
		return false
	}
	return s.SubscriptionActive == nil || !*s.SubscriptionActive
}
