package authgate

import (
	"errors"
	"fmt"

	"github.com/masabinhok/authgate/password"
)

var (
	// ErrInvalidCredentials is returned when the login endpoint rejects the
	// supplied username/password. It never triggers a refresh.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionExpired is returned when a previously valid session can no
	// longer be refreshed. Emitting it is always paired with exactly one
	// auth-failure broadcast.
	ErrSessionExpired = errors.New("session expired")
	// ErrRoleDenied is returned when the session is valid but the role is not
	// allowed for the requested route. The session itself stays intact.
	ErrRoleDenied = errors.New("role not permitted")
	// ErrNetwork is returned when no HTTP response was obtained at all,
	// including request timeouts.
	ErrNetwork = errors.New("network failure")
	// ErrUnsupportedMethod is returned for HTTP verbs outside the known set.
	ErrUnsupportedMethod = errors.New("unsupported http method")
	// ErrGateNotReady is returned when a nil or unbuilt Gate is used.
	ErrGateNotReady = errors.New("gate not initialized")
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrNotAuthenticated is returned by operations that require a live
	// session when the store is anonymous.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// Password policy sentinels, re-exported from package password so callers
// can match them without importing the subpackage.
var (
	// ErrPasswordRequired is an alias for [password.ErrRequired].
	ErrPasswordRequired = password.ErrRequired
	// ErrPasswordMismatch is an alias for [password.ErrMismatch].
	ErrPasswordMismatch = password.ErrMismatch
	// ErrPasswordReuse is an alias for [password.ErrReuse].
	ErrPasswordReuse = password.ErrReuse
	// ErrPasswordPolicy is an alias for [password.ErrPolicy].
	ErrPasswordPolicy = password.ErrPolicy
)

// APIError carries the status and best-effort server message of a non-2xx
// response that is neither a credential nor a session failure. It is
// constructed once at the transport boundary and matched downstream with
// [errors.As], never by shape-sniffing response bodies.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("api error: status %d: %s", e.Status, e.Message)
}

// IsAuthFailure reports whether err is a terminal session failure, i.e. the
// caller should treat the session as dead rather than retry.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
