package seed

import (
	"github.com/smallbiznis/backoffice/internal/authorization"
	featuredomain "github.com/smallbiznis/backoffice/internal/feature/domain"
)

type featureDef struct {
	slug     string
	name     string
	pageOnly bool
	minLevel int
}

var platformFeatures = []featureDef{
	{slug: "platform.dashboard", name: "Platform dashboard", pageOnly: true, minLevel: 1},
	{slug: "merchants.view", name: "View merchants", minLevel: 1},
	{slug: "merchants.approve", name: "Approve merchants", pageOnly: true, minLevel: 2},
	{slug: "subscriptions.view", name: "View subscriptions", minLevel: 1},
	{slug: "subscriptions.manage", name: "Manage subscriptions", minLevel: 1},
	{slug: "roles.view", name: "View roles", minLevel: 1},
	{slug: "roles.manage", name: "Manage roles", minLevel: 1},
	{slug: "users.view", name: "View users", minLevel: 1},
	{slug: "users.manage", name: "Manage users", minLevel: 1},
	{slug: "features.view", name: "Feature catalog", pageOnly: true, minLevel: 1},
}

var merchantFeatures = []featureDef{
	{slug: "merchant.dashboard", name: "Store dashboard", pageOnly: true, minLevel: 1},
	{slug: "products.view", name: "Products", minLevel: 1},
	{slug: "inventory.view", name: "Inventory", minLevel: 1},
	{slug: "sales.view", name: "Sales", minLevel: 1},
	{slug: "sales.create", name: "Record sales", minLevel: 1},
	{slug: "expenses.view", name: "Expenses", minLevel: 2},
	{slug: "reports.view", name: "Reports", pageOnly: true, minLevel: 2},
	{slug: "staff.manage", name: "Staff management", minLevel: 3},
}

// roleDef grants: a nil action list is a full grant.
type roleDef struct {
	name        string
	description string
	roleType    featuredomain.RoleType
	level       int
	grants      map[string][]string
}

func systemRoles() []roleDef {
	return []roleDef{
		{
			name:        "Super Admin",
			description: "Full platform access.",
			roleType:    featuredomain.RoleTypePlatformOwner,
			level:       3,
			grants:      fullGrants(platformFeatures),
		},
		{
			name:        "Admin",
			description: "Platform operations without role management.",
			roleType:    featuredomain.RoleTypePlatformOwner,
			level:       2,
			grants:      fullGrants(platformFeatures, "roles.manage"),
		},
		{
			name:        "Auditor",
			description: "Read-only platform access.",
			roleType:    featuredomain.RoleTypePlatformOwner,
			level:       1,
			grants:      viewGrants(platformFeatures),
		},
		{
			name:        "Owner",
			description: "Full store access.",
			roleType:    featuredomain.RoleTypeMerchant,
			level:       3,
			grants:      fullGrants(merchantFeatures),
		},
		{
			name:        "Manager",
			description: "Store operations without staff management.",
			roleType:    featuredomain.RoleTypeMerchant,
			level:       2,
			grants:      fullGrants(merchantFeatures, "staff.manage"),
		},
		{
			name:        "Staff",
			description: "Point of sale access.",
			roleType:    featuredomain.RoleTypeMerchant,
			level:       1,
			grants: map[string][]string{
				"sales.view":    {authorization.ActionView},
				"sales.create":  {authorization.ActionView, authorization.ActionCreate},
				"products.view": {authorization.ActionView},
			},
		},
	}
}

func fullGrants(features []featureDef, except ...string) map[string][]string {
	skip := make(map[string]struct{}, len(except))
	for _, slug := range except {
		skip[slug] = struct{}{}
	}
	out := make(map[string][]string, len(features))
	for _, f := range features {
		if _, ok := skip[f.slug]; ok {
			continue
		}
		out[f.slug] = nil
	}
	return out
}

func viewGrants(features []featureDef) map[string][]string {
	out := make(map[string][]string, len(features))
	for _, f := range features {
		if f.pageOnly {
			continue
		}
		out[f.slug] = []string{authorization.ActionView}
	}
	return out
}
