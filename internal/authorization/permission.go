package authorization

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// Permission is one flattened feature grant of a user.
type Permission struct {
	FeatureSlug string
	FeatureID   snowflake.ID
	Grant       Grant
}

// PermissionView is the wire shape served by /auth/me.
type PermissionView struct {
	FeatureSlug string   `json:"featureSlug"`
	FeatureID   string   `json:"featureId"`
	Actions     []string `json:"actions"`
}

// PermissionSet is the resolved, deduplicated permission list of a user.
// Lookups on unknown slugs fail closed.
type PermissionSet struct {
	bySlug map[string]Permission
}

// NewPermissionSet merges duplicate features by union of their grants.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := PermissionSet{bySlug: make(map[string]Permission, len(perms))}
	for _, p := range perms {
		set.add(p)
	}
	return set
}

func (s *PermissionSet) add(p Permission) {
	p.FeatureSlug = strings.TrimSpace(p.FeatureSlug)
	if p.FeatureSlug == "" {
		return
	}
	if existing, ok := s.bySlug[p.FeatureSlug]; ok {
		existing.Grant = existing.Grant.Union(p.Grant)
		s.bySlug[p.FeatureSlug] = existing
		return
	}
	s.bySlug[p.FeatureSlug] = p
}

func (s PermissionSet) HasFeature(slug string) bool {
	_, ok := s.bySlug[strings.TrimSpace(slug)]
	return ok
}

func (s PermissionSet) HasAction(slug, action string) bool {
	p, ok := s.bySlug[strings.TrimSpace(slug)]
	if !ok {
		return false
	}
	return p.Grant.Allows(action)
}

// CanAccess checks the action when one is given, otherwise feature possession.
func (s PermissionSet) CanAccess(slug, action string) bool {
	if strings.TrimSpace(action) != "" {
		return s.HasAction(slug, action)
	}
	return s.HasFeature(slug)
}

func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := NewPermissionSet(s.Permissions()...)
	for _, p := range other.bySlug {
		out.add(p)
	}
	return out
}

func (s PermissionSet) Len() int { return len(s.bySlug) }

// Permissions returns the entries ordered by slug.
func (s PermissionSet) Permissions() []Permission {
	out := make([]Permission, 0, len(s.bySlug))
	for _, p := range s.bySlug {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeatureSlug < out[j].FeatureSlug })
	return out
}

func (s PermissionSet) Views() []PermissionView {
	perms := s.Permissions()
	out := make([]PermissionView, 0, len(perms))
	for _, p := range perms {
		out = append(out, PermissionView{
			FeatureSlug: p.FeatureSlug,
			FeatureID:   p.FeatureID.String(),
			Actions:     p.Grant.Wire(),
		})
	}
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Views())
}

func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var views []PermissionView
	if err := json.Unmarshal(data, &views); err != nil {
		return err
	}
	perms := make([]Permission, 0, len(views))
	for _, v := range views {
		id, err := snowflake.ParseString(v.FeatureID)
		if err != nil {
			return err
		}
		perms = append(perms, Permission{FeatureSlug: v.FeatureSlug, FeatureID: id, Grant: GrantFromWire(v.Actions)})
	}
	*s = NewPermissionSet(perms...)
	return nil
}
