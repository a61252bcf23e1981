package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// PermissionSet is the capability set attached to an API key. Entries are
// "resource:action" strings; "*" wildcards are allowed on either side.
// Wildcard levels are expanded at construction so lookups are a map hit.
type PermissionSet struct {
	entries map[string]struct{}
	all     bool
}

// NewPermissionSet builds a set from raw "resource:action" strings.
// Malformed entries (no colon, except the bare "*") are dropped.
func NewPermissionSet(raw []string) PermissionSet {
	s := PermissionSet{entries: make(map[string]struct{}, len(raw))}
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == "*" || p == "*:*" {
			s.all = true
			continue
		}
		if !strings.Contains(p, ":") {
			continue
		}
		s.entries[p] = struct{}{}
	}
	return s
}

// Allows reports whether the set grants "resource:action". A grant exists for
// the exact pair, "resource:*", "*:action", or the full wildcard.
func (s PermissionSet) Allows(required string) bool {
	if required == "" {
		return false
	}
	if s.all {
		return true
	}
	if _, ok := s.entries[required]; ok {
		return true
	}
	resource, action, ok := strings.Cut(required, ":")
	if !ok {
		return false
	}
	if _, ok := s.entries[resource+":*"]; ok {
		return true
	}
	if _, ok := s.entries["*:"+action]; ok {
		return true
	}
	return false
}

// Strings returns the set in raw form for persistence, sorted for stability.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s.entries)+1)
	if s.all {
		out = append(out, "*")
	}
	for p := range s.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON serializes the set as a string array.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON parses a string array into the set.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewPermissionSet(raw)
	return nil
}

// IsEmpty reports whether the set grants nothing.
func (s PermissionSet) IsEmpty() bool { return !s.all && len(s.entries) == 0 }
