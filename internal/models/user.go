package models

// Identity is the authenticated caller as supplied by the external auth
// provider. The service never issues or checks credentials itself.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Profile is the display record stored per user, refreshed when the user
// starts a session.
type Profile struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
