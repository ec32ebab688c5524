package model

// Session is the locally persisted view of who is signed in and what they
// may do. It is overwritten as a whole on every auth transition and cleared
// on sign-out; Role is never RoleUploader with an empty UserID.
type Session struct {
	UserID      string `json:"user_id"`
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
}
