package model

import "time"

// User is a row of the credential table. PasswordHash never leaves the store.
type User struct {
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"-"`
}

// Page is one of the logical views of the front-end.
type Page string

const (
	PageLogin  Page = "login"
	PageSignup Page = "signup"
	PageMain   Page = "main"
)

// SignupRequest is the request to register a new user.
type SignupRequest struct {
	Username        string `json:"username"`
	DisplayName     string `json:"display_name"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// LoginRequest is the request to authenticate.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	DisplayName string    `json:"display_name"`
	View        Page      `json:"view"`
}

// ViewResponse names the view the client should render next.
type ViewResponse struct {
	View Page `json:"view"`
}
