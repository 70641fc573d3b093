package model

// LoginCredentials is the payload of the login form. Never persisted.
type LoginCredentials struct {
	Email    string `json:"email"    validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SignupCredentials is the payload of the signup form. Never persisted.
//
// The validate tags are evaluated by service.AuthService; "demoemail" and
// "utf16min" are custom rules registered there. Password length is counted
// in UTF-16 code units, as a browser counts it.
type SignupCredentials struct {
	Email           string `json:"email"           validate:"required,demoemail"`
	Password        string `json:"password"        validate:"required,utf16min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}
