package middleware

import (
	"context"
	"net/http"

	authgate "github.com/masabinhok/authgate"
)

type userContextKey struct{}

// UserFromContext returns the store-confirmed user injected by [Guard].
func UserFromContext(ctx context.Context) (*authgate.User, bool) {
	u, ok := ctx.Value(userContextKey{}).(*authgate.User)
	return u, ok
}

// Guard returns the authoritative gate over a route policy: public prefixes
// bypass, everything else requires a confirmed session whose role the policy
// allows.
func Guard(store *authgate.Store, policy *authgate.RoutePolicy) func(http.Handler) http.Handler {
	return guard(store, func(path string) (roles []authgate.Role, public bool) {
		if policy.IsPublic(path) {
			return nil, true
		}
		return policy.RolesFor(path), false
	})
}

// GuardRoles returns a gate with an explicit allow-list for the wrapped
// subtree. An empty list means any authenticated role is sufficient.
func GuardRoles(store *authgate.Store, roles ...authgate.Role) func(http.Handler) http.Handler {
	return guard(store, func(string) ([]authgate.Role, bool) {
		return roles, false
	})
}

func guard(store *authgate.Store, rolesFor func(string) ([]authgate.Role, bool)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roles, public := rolesFor(r.URL.Path)
			if public {
				next.ServeHTTP(w, r)
				return
			}

			// Cold load or rehydrated snapshot: confirm against the live
			// profile before deciding anything. Provisional state never
			// grants access on its own.
			if store.Provisional() || (!store.IsAuthenticated() && !store.Loading()) {
				_ = store.FetchUser(r.Context())
			}

			if store.Loading() {
				// Another goroutine is resolving the session. Neutral
				// response, no protected content.
				w.Header().Set("Retry-After", "1")
				http.Error(w, "session loading", http.StatusServiceUnavailable)
				return
			}

			user := store.User()
			if user == nil {
				redirectToLogin(w, r)
				return
			}
			if len(roles) > 0 && !roleAllowed(user.Role, roles) {
				http.Redirect(w, r, UnauthorizedRoute, http.StatusSeeOther)
				return
			}

			// Mandatory password-change interposition: with the flag set,
			// every protected path except the change flow itself and logout
			// redirects. The only exits are a valid change or logging out.
			if store.RequiresPasswordChange() || user.NeedsPasswordChange() {
				if r.URL.Path != ChangePasswordRoute && r.URL.Path != LogoutRoute {
					http.Redirect(w, r, ChangePasswordRoute, http.StatusSeeOther)
					return
				}
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func roleAllowed(role authgate.Role, allowed []authgate.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
