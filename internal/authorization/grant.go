package authorization

import (
	"encoding/json"
	"sort"
	"strings"
)

// Actions attachable to an action-level grant.
const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

var knownActions = map[string]struct{}{
	ActionView:   {},
	ActionCreate: {},
	ActionEdit:   {},
	ActionDelete: {},
}

// IsKnownAction reports whether action belongs to the grant vocabulary.
func IsKnownAction(action string) bool {
	_, ok := knownActions[action]
	return ok
}

// Grant is either a full grant (page-level or unconditional) or a grant
// scoped to a set of actions. The zero value is an action grant with no
// actions, which allows nothing beyond possession of the feature.
type Grant struct {
	full    bool
	actions map[string]struct{}
}

func FullGrant() Grant {
	return Grant{full: true}
}

func ActionGrant(actions ...string) Grant {
	g := Grant{actions: make(map[string]struct{}, len(actions))}
	for _, action := range actions {
		action = strings.ToLower(strings.TrimSpace(action))
		if action == "" {
			continue
		}
		g.actions[action] = struct{}{}
	}
	return g
}

// GrantFromWire decodes the API form where an empty list means a full grant.
func GrantFromWire(actions []string) Grant {
	g := ActionGrant(actions...)
	if len(g.actions) == 0 {
		return FullGrant()
	}
	return g
}

func (g Grant) IsFull() bool { return g.full }

// Allows reports whether action is permitted by the grant.
func (g Grant) Allows(action string) bool {
	if g.full {
		return true
	}
	_, ok := g.actions[strings.ToLower(strings.TrimSpace(action))]
	return ok
}

// Actions returns the sorted action set, nil for a full grant.
func (g Grant) Actions() []string {
	if g.full {
		return nil
	}
	out := make([]string, 0, len(g.actions))
	for action := range g.actions {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

// Union is at least as permissive as either operand.
func (g Grant) Union(other Grant) Grant {
	if g.full || other.full {
		return FullGrant()
	}
	merged := ActionGrant(g.Actions()...)
	for action := range other.actions {
		merged.actions[action] = struct{}{}
	}
	return merged
}

// Wire encodes the grant for the API: a full grant is an empty list.
func (g Grant) Wire() []string {
	if g.full {
		return []string{}
	}
	return g.Actions()
}

func (g Grant) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Wire())
}

func (g *Grant) UnmarshalJSON(data []byte) error {
	var actions []string
	if err := json.Unmarshal(data, &actions); err != nil {
		return err
	}
	*g = GrantFromWire(actions)
	return nil
}
