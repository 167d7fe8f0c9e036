package session

// UserRecord is the persisted shape of the authenticated user.
type UserRecord struct {
	ID                  string `json:"id"`
	Username            string `json:"username"`
	Role                string `json:"role"`
	ProfileID           string `json:"profileId,omitempty"`
	Email               string `json:"email,omitempty"`
	FullName            string `json:"fullName,omitempty"`
	PasswordChangeCount int    `json:"passwordChangeCount"`
}

// Snapshot is the durable subset of session state.
type Snapshot struct {
	User                   *UserRecord `json:"user"`
	IsAuthenticated        bool        `json:"isAuthenticated"`
	RequiresPasswordChange bool        `json:"requiresPasswordChange"`
	SavedAt                int64       `json:"savedAt"`
}
