package middleware

import (
	"context"
	"net/http"
	"net/url"

	authgate "github.com/masabinhok/authgate"
	"github.com/masabinhok/authgate/jwtclaims"
)

// Route targets used by both gates.
const (
	LoginRoute          = "/login"
	UnauthorizedRoute   = "/unauthorized"
	ChangePasswordRoute = "/change-password"
	LogoutRoute         = "/logout"

	redirectParam = "redirect"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the edge-decoded claims injected by [EdgeGate].
func ClaimsFromContext(ctx context.Context) (*jwtclaims.AccessClaims, bool) {
	c, ok := ctx.Value(claimsContextKey{}).(*jwtclaims.AccessClaims)
	return c, ok
}

// EdgeGate returns the pre-render gate. Public prefixes bypass entirely. An
// absent, malformed, or expired access token redirects to login with the
// requested path preserved; an unexpired token whose role claim mismatches
// the path's allow-list redirects to the unauthorized page. No network call
// is made: the decision uses only the token's local claims.
func EdgeGate(policy *authgate.RoutePolicy, dec *jwtclaims.Decoder, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.IsPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(cookieName)
			if err != nil {
				redirectToLogin(w, r)
				return
			}
			claims, err := dec.Decode(cookie.Value)
			if err != nil {
				// Malformed and expired both mean "cannot prove identity":
				// same treatment as an absent token.
				redirectToLogin(w, r)
				return
			}
			role := authgate.Role(claims.Role)
			if !role.Valid() {
				redirectToLogin(w, r)
				return
			}
			if !policy.Allowed(r.URL.Path, role) {
				http.Redirect(w, r, UnauthorizedRoute, http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// redirectToLogin sends the visitor to the login route, preserving the
// originally requested path (including its query) for post-login return.
func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, LoginRoute+"?"+redirectParam+"="+url.QueryEscape(target), http.StatusSeeOther)
}
