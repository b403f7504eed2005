// Package routeguard decides whether a session may open a destination.
// Pages receive a redirect target; API handlers map the same decision to
// an error.
package routeguard

import (
	"context"
	"errors"

	"github.com/smallbiznis/backoffice/internal/authorization"
	"github.com/smallbiznis/backoffice/internal/observability/metrics"
	"go.uber.org/fx"
)

const (
	PathLogin               = "/login"
	PathUnauthorized        = "/unauthorized"
	PathChangePassword      = "/change-password"
	PathSubscriptionExpired = "/subscription-expired"
)

// Gate names the check that produced a decision.
type Gate string

const (
	GateNone           Gate = ""
	GateAuthentication Gate = "authentication"
	GateRole           Gate = "role"
	GateFeature        Gate = "feature"
	GatePasswordChange Gate = "password_change"
	GateSubscription   Gate = "subscription"
)

var (
	ErrPasswordChangeRequired = errors.New("password_change_required")
	ErrSubscriptionInactive   = errors.New("subscription_inactive")
)

// Requirement is what a destination asks of the caller. Roles and
// Feature are both necessary when set.
type Requirement struct {
	Public       bool
	Roles        []authorization.Role
	Feature      string
	Action       string
	Subscription bool
}

type Decision struct {
	Allowed  bool   `json:"allowed"`
	Redirect string `json:"redirect,omitempty"`
	Gate     Gate   `json:"gate,omitempty"`
}

// Err is the API form of a denied decision.
func (d Decision) Err() error {
	switch d.Gate {
	case GateNone:
		return nil
	case GateAuthentication:
		return authorization.ErrUnauthenticated
	case GatePasswordChange:
		return ErrPasswordChangeRequired
	case GateSubscription:
		return ErrSubscriptionInactive
	default:
		return authorization.ErrUnauthorized
	}
}

func allow() Decision { return Decision{Allowed: true} }

func deny(gate Gate, redirect string) Decision {
	return Decision{Redirect: redirect, Gate: gate}
}

// Decide runs the checks in order and stops at the first failure:
// authentication, coarse role, feature, pending password change, then the
// merchant subscription.
func Decide(s *authorization.Session, req Requirement, destination string) Decision {
	if req.Public {
		return allow()
	}
	if !s.Authenticated() {
		return deny(GateAuthentication, PathLogin)
	}
	if len(req.Roles) > 0 && !s.HasRole(req.Roles...) {
		return deny(GateRole, PathUnauthorized)
	}
	if req.Feature != "" && !s.CanAccess(req.Feature, req.Action) {
		return deny(GateFeature, PathUnauthorized)
	}
	if s.RequiresPasswordChange && destination != PathChangePassword {
		return deny(GatePasswordChange, PathChangePassword)
	}
	if req.Subscription && s.SubscriptionBlocked() {
		return deny(GateSubscription, PathSubscriptionExpired)
	}
	return allow()
}

type Params struct {
	fx.In

	Metrics *metrics.Metrics `optional:"true"`
}

// Guard resolves destinations against the page table and records every
// decision.
type Guard struct {
	routes  Table
	metrics *metrics.Metrics
}

func New(p Params) *Guard {
	return &Guard{routes: Pages(), metrics: p.Metrics}
}

func NewWithTable(routes Table, m *metrics.Metrics) *Guard {
	return &Guard{routes: routes, metrics: m}
}

// Page decides for a page destination. Unknown pages only require an
// authenticated session.
func (g *Guard) Page(ctx context.Context, s *authorization.Session, destination string) Decision {
	dest := Normalize(destination)
	req, _ := g.routes.Lookup(dest)
	return g.Check(ctx, s, req, dest)
}

// Check decides for an explicit requirement.
func (g *Guard) Check(ctx context.Context, s *authorization.Session, req Requirement, destination string) Decision {
	d := Decide(s, req, destination)
	gate := string(d.Gate)
	if d.Allowed {
		gate = "route"
	}
	g.metrics.RecordAuthorizationDecision(ctx, gate, d.Allowed)
	return d
}
