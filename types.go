package authgate

// Role is one of the closed set of authority levels recognized by the
// school-management API. The set is closed: the server never issues a role
// outside it, and an unknown tag in a decoded token is treated as a
// malformed token by the edge gate.
type Role string

const (
	// RoleSuperAdmin is the platform operator role.
	RoleSuperAdmin Role = "SUPERADMIN"
	// RoleAdmin is the school administrator role.
	RoleAdmin Role = "ADMIN"
	// RoleTeacher is the teaching staff role.
	RoleTeacher Role = "TEACHER"
	// RoleStudent is the student role.
	RoleStudent Role = "STUDENT"
)

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// User is the authenticated identity as served by the profile endpoint.
type User struct {
	ID                  string `json:"id"`
	Username            string `json:"username"`
	Role                Role   `json:"role"`
	ProfileID           string `json:"profileId,omitempty"`
	Email               string `json:"email,omitempty"`
	FullName            string `json:"fullName,omitempty"`
	PasswordChangeCount int    `json:"passwordChangeCount"`
}

// NeedsPasswordChange reports the derived first-login condition: a change
// count of zero means the account still carries its issued password.
func (u *User) NeedsPasswordChange() bool {
	return u != nil && u.PasswordChangeCount == 0
}

// Credentials is the login request payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult is the login endpoint's JSON body. PasswordChangeCount is a
// pointer because the server may omit it; when present it is fresher than
// the profile's copy and wins the merge.
type LoginResult struct {
	Message                string `json:"message"`
	RequiresPasswordChange bool   `json:"requiresPasswordChange"`
	PasswordChangeCount    *int   `json:"passwordChangeCount,omitempty"`
}

// changePasswordRequest is the change-password endpoint payload.
type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// loginRequest is the login endpoint payload. The role rides along so the
// server can reject cross-role logins at the credential check.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}
