package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// tokenKind discriminates the closed set of token shapes.
type tokenKind int

const (
	kindExact tokenKind = iota
	kindResourceWildcard
	kindGlobal
)

// Token is a parsed permission token. The zero value is not a valid
// token; construct with ParseToken or MustToken.
type Token struct {
	kind     tokenKind
	resource string
	action   string
}

// ParseToken parses a permission token string into its typed form.
// Accepted shapes are "resource.action", "resource.*" and "*".
func ParseToken(s string) (Token, error) {
	s = strings.TrimSpace(s)
	if s == "*" {
		return Token{kind: kindGlobal}, nil
	}

	idx := strings.IndexByte(s, '.')
	if idx <= 0 || idx == len(s)-1 {
		return Token{}, fmt.Errorf("malformed permission token %q", s)
	}

	resource := s[:idx]
	action := s[idx+1:]
	if strings.ContainsAny(resource, ".* ") {
		return Token{}, fmt.Errorf("malformed permission token %q", s)
	}

	if action == "*" {
		return Token{kind: kindResourceWildcard, resource: resource}, nil
	}
	if strings.ContainsAny(action, ".* ") {
		return Token{}, fmt.Errorf("malformed permission token %q", s)
	}

	return Token{kind: kindExact, resource: resource, action: action}, nil
}

// MustToken parses a token string and panics on failure. Intended for
// package-level constants and tests.
func MustToken(s string) Token {
	t, err := ParseToken(s)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the canonical string form of the token.
func (t Token) String() string {
	switch t.kind {
	case kindGlobal:
		return "*"
	case kindResourceWildcard:
		return t.resource + ".*"
	default:
		return t.resource + "." + t.action
	}
}

// Resource returns the resource segment; empty for the global wildcard.
func (t Token) Resource() string { return t.resource }

// IsGlobal reports whether the token is the global wildcard "*".
func (t Token) IsGlobal() bool { return t.kind == kindGlobal }

// IsWildcard reports whether the token grants more than one action.
func (t Token) IsWildcard() bool { return t.kind != kindExact }

// PermissionSet is a resolved set of granted tokens. Membership checks
// apply wildcard semantics: a set holding "projects.*" satisfies
// Has("projects.view") and the global wildcard satisfies everything.
type PermissionSet struct {
	global    bool
	resources map[string]bool // resource wildcards
	exact     map[string]bool // canonical exact token strings
}

// NewPermissionSet returns an empty permission set.
func NewPermissionSet() *PermissionSet {
	return &PermissionSet{
		resources: make(map[string]bool),
		exact:     make(map[string]bool),
	}
}

// Add inserts a granted token into the set.
func (ps *PermissionSet) Add(t Token) {
	switch t.kind {
	case kindGlobal:
		ps.global = true
	case kindResourceWildcard:
		ps.resources[t.resource] = true
	default:
		ps.exact[t.String()] = true
	}
}

// Has reports whether the set grants the requested token. The request
// is expected to be an exact "resource.action" token; wildcard requests
// only match a grant at least as broad.
func (ps *PermissionSet) Has(t Token) bool {
	if ps.global {
		return true
	}
	switch t.kind {
	case kindGlobal:
		return false
	case kindResourceWildcard:
		return ps.resources[t.resource]
	default:
		if ps.resources[t.resource] {
			return true
		}
		return ps.exact[t.String()]
	}
}

// IsEmpty reports whether the set grants nothing.
func (ps *PermissionSet) IsEmpty() bool {
	return !ps.global && len(ps.resources) == 0 && len(ps.exact) == 0
}

// Tokens returns the canonical string form of every granted token,
// sorted, with wildcards first. Used for the wire representation handed
// to clients for their session cache.
func (ps *PermissionSet) Tokens() []string {
	out := make([]string, 0, len(ps.exact)+len(ps.resources)+1)
	if ps.global {
		out = append(out, "*")
	}
	for r := range ps.resources {
		out = append(out, r+".*")
	}
	for e := range ps.exact {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}
