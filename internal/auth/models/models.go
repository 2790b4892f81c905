// Package models holds the identity types shared by the auth packages.
package models

// User is the authenticated session user. Linked items are owned by ID.
type User struct {
	ID       string                 `json:"id"`
	Email    string                 `json:"email,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Picture  string                 `json:"picture,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
