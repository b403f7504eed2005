package authorization

import (
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectMerchant     = "merchant"
	ObjectSubscription = "subscription"
	ObjectRole         = "role"
	ObjectFeature      = "feature"
	ObjectUser         = "user"
	ObjectAuditLog     = "audit_log"
)

const (
	ActMerchantView    = "merchant.view"
	ActMerchantApprove = "merchant.approve"
	ActMerchantReject  = "merchant.reject"

	ActSubscriptionView       = "subscription.view"
	ActSubscriptionStatus     = "subscription.status"
	ActSubscriptionConvert    = "subscription.convert"
	ActSubscriptionCancel     = "subscription.cancel"
	ActSubscriptionReactivate = "subscription.reactivate"

	ActRoleView   = "role.view"
	ActRoleManage = "role.manage"

	ActFeatureView   = "feature.view"
	ActFeatureManage = "feature.manage"

	ActUserCreate = "user.create"
	ActUserAssign = "user.assign"

	ActAuditLogView = "audit_log.view"
)

// Enforcer is the coarse legacy-role gate in front of API objects.
// Feature grants are checked separately through the Session.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer persists policies through the gorm adapter and seeds the
// defaults on every start.
func NewEnforcer(db *gorm.DB) (*Enforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	return newEnforcer(adapter)
}

func newEnforcer(adapter persist.Adapter) (*Enforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}

	var enforcer *casbin.SyncedEnforcer
	if adapter != nil {
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
	}
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(adapter != nil)
	enforcer.EnableAutoBuildRoleLinks(true)
	if adapter != nil {
		if err := enforcer.LoadPolicy(); err != nil {
			return nil, err
		}
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return &Enforcer{enforcer: enforcer}, nil
}

func subject(role Role) string {
	return "role:" + strings.ToLower(string(role))
}

// Allow reports whether the coarse role may perform act on obj.
func (e *Enforcer) Allow(role Role, obj, act string) (bool, error) {
	if role == "" {
		return false, nil
	}
	return e.enforcer.Enforce(subject(role), obj, act)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	owner := subject(RolePlatformOwner)
	admin := subject(RoleMerchantAdmin)
	staff := subject(RoleMerchantStaff)

	policies := [][]string{
		{owner, ObjectMerchant, ActMerchantView},
		{owner, ObjectMerchant, ActMerchantApprove},
		{owner, ObjectMerchant, ActMerchantReject},
		{owner, ObjectSubscription, ActSubscriptionView},
		{owner, ObjectSubscription, ActSubscriptionConvert},
		{owner, ObjectSubscription, ActSubscriptionCancel},
		{owner, ObjectSubscription, ActSubscriptionReactivate},
		{owner, ObjectRole, ActRoleView},
		{owner, ObjectRole, ActRoleManage},
		{owner, ObjectFeature, ActFeatureView},
		{owner, ObjectFeature, ActFeatureManage},
		{owner, ObjectUser, ActUserCreate},
		{owner, ObjectUser, ActUserAssign},
		{owner, ObjectAuditLog, ActAuditLogView},

		{staff, ObjectSubscription, ActSubscriptionStatus},
		{staff, ObjectMerchant, ActMerchantView},

		{admin, ObjectUser, ActUserCreate},
		{admin, ObjectUser, ActUserAssign},
		{admin, ObjectRole, ActRoleView},
		{admin, ObjectFeature, ActFeatureView},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// Merchant admins inherit everything staff can do.
	_, err := enforcer.AddGroupingPolicy(admin, staff)
	return err
}
