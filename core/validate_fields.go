package core

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldError is a user-correctable validation failure tied to one field.
// It is surfaced per-field and never as the global auth error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidateRegistration applies the field rules in a fixed order and
// fails fast on the first violated category: username, then email, then
// password, then confirmation.
func ValidateRegistration(username, email, password, confirm string) *FieldError {
	if err := validateUsername(username); err != nil {
		return err
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := validatePassword(password); err != nil {
		return err
	}
	if confirm != password {
		return &FieldError{Field: "confirmPassword", Message: "passwords do not match"}
	}
	return nil
}

func validateUsername(username string) *FieldError {
	switch {
	case len(username) < 3:
		return &FieldError{Field: "username", Message: "username must be at least 3 characters long"}
	case len(username) > 50:
		return &FieldError{Field: "username", Message: "username must be at most 50 characters long"}
	case !usernameRe.MatchString(username):
		return &FieldError{Field: "username", Message: "username may only contain letters, digits and underscores"}
	}
	return nil
}

func validateEmail(email string) *FieldError {
	switch {
	case email == "" || len(email) > 255:
		return &FieldError{Field: "email", Message: "email must be between 1 and 255 characters"}
	case strings.Count(email, "@") != 1 || !emailRe.MatchString(email):
		return &FieldError{Field: "email", Message: "email address is not valid"}
	}
	return nil
}

func validatePassword(password string) *FieldError {
	switch {
	case len(password) < 8:
		return &FieldError{Field: "password", Message: "password must be at least 8 characters long"}
	case len(password) > 128:
		return &FieldError{Field: "password", Message: "password must be at most 128 characters long"}
	}
	return nil
}
