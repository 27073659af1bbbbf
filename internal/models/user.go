package models

// User represents the account allowed to sign in
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // Not serialized
}
