package routeguard

import (
	"path"
	"strings"

	"github.com/smallbiznis/backoffice/internal/authorization"
)

var (
	merchantRoles = []authorization.Role{authorization.RoleMerchantAdmin, authorization.RoleMerchantStaff}
	ownerRoles    = []authorization.Role{authorization.RolePlatformOwner}
)

// Table maps a page path to its requirement. Lookup falls back to the
// closest registered parent path.
type Table map[string]Requirement

func (t Table) Lookup(destination string) (Requirement, bool) {
	for p := Normalize(destination); ; p = path.Dir(p) {
		if req, ok := t[p]; ok {
			return req, true
		}
		if p == "/" {
			return Requirement{}, false
		}
	}
}

// Normalize strips the query and fragment and cleans the path.
func Normalize(destination string) string {
	dest := strings.TrimSpace(destination)
	if i := strings.IndexAny(dest, "?#"); i >= 0 {
		dest = dest[:i]
	}
	if !strings.HasPrefix(dest, "/") {
		dest = "/" + dest
	}
	return path.Clean(dest)
}

func merchantPage(feature, action string) Requirement {
	return Requirement{Roles: merchantRoles, Feature: feature, Action: action, Subscription: true}
}

func ownerPage(feature, action string) Requirement {
	return Requirement{Roles: ownerRoles, Feature: feature, Action: action}
}

// Pages is the back-office page table.
func Pages() Table {
	return Table{
		PathLogin:               {Public: true},
		PathUnauthorized:        {Public: true},
		"/register":             {Public: true},
		PathChangePassword:      {},
		PathSubscriptionExpired: {Roles: merchantRoles},
		"/subscription":         {Roles: merchantRoles},

		"/dashboard": merchantPage("merchant.dashboard", ""),
		"/products":  merchantPage("products.view", authorization.ActionView),
		"/inventory": merchantPage("inventory.view", authorization.ActionView),
		"/sales":     merchantPage("sales.view", authorization.ActionView),
		"/sales/new": merchantPage("sales.create", authorization.ActionCreate),
		"/expenses":  merchantPage("expenses.view", authorization.ActionView),
		"/reports":   merchantPage("reports.view", ""),
		"/staff": {
			Roles:        []authorization.Role{authorization.RoleMerchantAdmin},
			Feature:      "staff.manage",
			Subscription: true,
		},

		"/admin":                   ownerPage("platform.dashboard", ""),
		"/admin/merchants":         ownerPage("merchants.view", authorization.ActionView),
		"/admin/merchants/pending": ownerPage("merchants.approve", ""),
		"/admin/subscriptions":     ownerPage("subscriptions.view", authorization.ActionView),
		"/admin/roles":             ownerPage("roles.view", authorization.ActionView),
		"/admin/users":             ownerPage("users.view", authorization.ActionView),
		"/admin/features":          ownerPage("features.view", ""),
	}
}
