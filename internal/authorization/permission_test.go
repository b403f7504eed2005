package authorization

import (
	"encoding/json"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perm(slug string, id int64, grant Grant) Permission {
	return Permission{FeatureSlug: slug, FeatureID: snowflake.ID(id), Grant: grant}
}

func TestPermissionSetFailsClosedOnUnknownFeature(t *testing.T) {
	set := NewPermissionSet(perm("sales.view", 1, FullGrant()))

	assert.False(t, set.HasFeature("products.view"))
	assert.False(t, set.HasAction("products.view", ActionView))
	assert.False(t, set.CanAccess("products.view", ""))

	var empty PermissionSet
	assert.False(t, empty.CanAccess("sales.view", ""))
	assert.False(t, empty.CanAccess("sales.view", ActionView))
}

func TestFullGrantAllowsEveryAction(t *testing.T) {
	set := NewPermissionSet(perm("sales.view", 1, GrantFromWire([]string{})))

	assert.True(t, set.CanAccess("sales.view", ""))
	for _, action := range []string{ActionView, ActionCreate, ActionEdit, ActionDelete, "export"} {
		assert.True(t, set.HasAction("sales.view", action), action)
	}
	assert.False(t, set.CanAccess("products.view", ""))
}

func TestActionGrantAllowsOnlyListedActions(t *testing.T) {
	set := NewPermissionSet(perm("sales.view", 1, GrantFromWire([]string{"view"})))

	assert.True(t, set.CanAccess("sales.view", ActionView))
	assert.False(t, set.CanAccess("sales.view", ActionDelete))
	assert.True(t, set.CanAccess("sales.view", ""))
}

func TestActionGrantWithoutActionsIsNotFull(t *testing.T) {
	g := ActionGrant()
	assert.False(t, g.IsFull())
	assert.False(t, g.Allows(ActionView))
	assert.Equal(t, []string{}, g.Wire())
}

func TestDuplicateFeaturesMergeByUnion(t *testing.T) {
	set := NewPermissionSet(
		perm("sales.view", 1, ActionGrant(ActionView)),
		perm("sales.view", 1, ActionGrant(ActionCreate, ActionView)),
	)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, []string{ActionCreate, ActionView}, set.Permissions()[0].Grant.Actions())

	withFull := NewPermissionSet(
		perm("sales.view", 1, ActionGrant(ActionView)),
		perm("sales.view", 1, FullGrant()),
	)
	assert.True(t, withFull.HasAction("sales.view", ActionDelete))
}

func TestUnionIsMonotone(t *testing.T) {
	r1 := NewPermissionSet(
		perm("sales.view", 1, ActionGrant(ActionView)),
		perm("products.view", 2, FullGrant()),
	)
	r2 := NewPermissionSet(
		perm("sales.view", 1, ActionGrant(ActionDelete)),
		perm("expenses.view", 3, ActionGrant(ActionView)),
	)
	both := r1.Union(r2)

	slugs := []string{"sales.view", "products.view", "expenses.view", "reports.view"}
	actions := []string{"", ActionView, ActionCreate, ActionEdit, ActionDelete}
	for _, slug := range slugs {
		for _, action := range actions {
			if r1.CanAccess(slug, action) || r2.CanAccess(slug, action) {
				assert.True(t, both.CanAccess(slug, action), "%s/%s", slug, action)
			}
		}
	}
	assert.False(t, both.CanAccess("reports.view", ""))
}

func TestPermissionSetWireRoundTrip(t *testing.T) {
	set := NewPermissionSet(
		perm("sales.view", 11, FullGrant()),
		perm("products.view", 12, ActionGrant(ActionView, ActionEdit)),
	)
	raw, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"featureSlug":"products.view","featureId":"12","actions":["edit","view"]},
		{"featureSlug":"sales.view","featureId":"11","actions":[]}
	]`, string(raw))

	var decoded PermissionSet
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.True(t, decoded.HasAction("sales.view", ActionDelete))
	assert.False(t, decoded.HasAction("products.view", ActionDelete))
}

func TestSessionChecks(t *testing.T) {
	var anonymous *Session
	assert.False(t, anonymous.Authenticated())
	assert.False(t, anonymous.CanAccess("sales.view", ""))

	active := false
	s := &Session{
		UserID:             1,
		Role:               RoleMerchantStaff,
		Permissions:        NewPermissionSet(perm("sales.view", 1, ActionGrant(ActionView))),
		SubscriptionActive: &active,
	}
	assert.True(t, s.HasRole(RoleMerchantAdmin, RoleMerchantStaff))
	assert.False(t, s.HasRole(RolePlatformOwner))
	assert.True(t, s.CanAccess("sales.view", ActionView))
	assert.True(t, s.SubscriptionBlocked())

	owner := &Session{UserID: 2, Role: RolePlatformOwner}
	assert.False(t, owner.SubscriptionBlocked())
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" merchant_admin ")
	assert.True(t, ok)
	assert.Equal(t, RoleMerchantAdmin, r)

	_, ok = ParseRole("ROOT")
	assert.False(t, ok)
}
