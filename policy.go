package authgate

import "strings"

// RoutePolicy maps requested path prefixes to allowed role sets. Public
// prefixes are checked first and bypass all auth logic. For non-public
// paths, absence from the role map means any authenticated role is
// sufficient, not deny-all.
type RoutePolicy struct {
	// Public lists prefixes requiring no authentication at all.
	Public []string
	// Roles maps a path prefix to its allow-list. Longest matching prefix
	// wins so a broad prefix can be narrowed by a more specific one.
	Roles map[string][]Role
}

// DefaultRoutePolicy mirrors the application's route layout: one protected
// prefix per role plus the public marketing and auth surfaces.
func DefaultRoutePolicy() *RoutePolicy {
	return &RoutePolicy{
		Public: []string{
			"/login",
			"/unauthorized",
			"/about",
			"/contact",
			"/static/",
			"/favicon.ico",
		},
		Roles: map[string][]Role{
			"/admin":   {RoleAdmin, RoleSuperAdmin},
			"/teacher": {RoleTeacher},
			"/student": {RoleStudent},
		},
	}
}

// IsPublic reports whether path matches a public prefix. The bare root path
// is always public.
func (p *RoutePolicy) IsPublic(path string) bool {
	if path == "/" || path == "" {
		return true
	}
	for _, prefix := range p.Public {
		if matchPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// RolesFor returns the allow-list for path, or nil when any authenticated
// role may pass.
func (p *RoutePolicy) RolesFor(path string) []Role {
	var (
		best    string
		matched []Role
	)
	for prefix, roles := range p.Roles {
		if matchPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
			matched = roles
		}
	}
	if best == "" {
		return nil
	}
	return matched
}

// Allowed reports whether role may access path. Public paths are allowed for
// any role including the empty one.
func (p *RoutePolicy) Allowed(path string, role Role) bool {
	if p.IsPublic(path) {
		return true
	}
	roles := p.RolesFor(path)
	if roles == nil {
		return role != ""
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// matchPrefix treats "/admin" as matching "/admin" and "/admin/…" but not
// "/administration".
func matchPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
