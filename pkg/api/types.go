package api

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/pulse/pkg/storage"
)

// registerRequest is the body of POST /auth/register
type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

// userResponse is the public view of a user account
type userResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// loginRequest is the body of POST /auth/login
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenPairResponse is returned by login and refresh
type tokenPairResponse struct {
	Access      string `json:"access"`
	Refresh     string `json:"refresh"`
	TokenType   string `json:"token_type"`
	RedirectURL string `json:"redirect_url"`
}

// accessTokenResponse is returned by the OAuth2 password flow
type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// refreshRequest is the body of POST /auth/{user_id}/refresh
type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// logoutRequest is the body of POST /auth/{user_id}/logout
type logoutRequest struct {
	Refresh string `json:"refresh"`
}

// changePasswordRequest is the body of POST /auth/{user_id}/change-password
type changePasswordRequest struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

// eventRequest is one event in the body of POST /events/
type eventRequest struct {
	EventID    uuid.UUID              `json:"event_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	UserID     int64                  `json:"user_id"`
	EventType  string                 `json:"event_type"`
	Properties map[string]interface{} `json:"properties"`
}

// eventsResponse reports which submitted event ids were new
type eventsResponse struct {
	Inserted   []uuid.UUID `json:"inserted"`
	Duplicates []uuid.UUID `json:"duplicates"`
}

const (
	passwordMinLength = 8
	passwordMaxLength = 24
	eventTypeMaxLen   = 100
)

var (
	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[^\w]`)
)

const forbiddenPasswordChars = `@"'<>`

// validatePassword enforces the account password rules: length bounds, at
// least one uppercase, lowercase, digit, and special character, and none of
// the characters that tend to leak through template or quoting bugs.
func validatePassword(password string) error {
	if len(password) < passwordMinLength || len(password) > passwordMaxLength {
		return fmt.Errorf("password must be between %d and %d characters", passwordMinLength, passwordMaxLength)
	}
	if !upperRe.MatchString(password) {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !lowerRe.MatchString(password) {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !digitRe.MatchString(password) {
		return fmt.Errorf("password must contain at least one digit")
	}
	if !specialRe.MatchString(password) {
		return fmt.Errorf("password must contain at least one special character")
	}
	if strings.ContainsAny(password, forbiddenPasswordChars) {
		return fmt.Errorf(`password contains not allowed symbols (@, ", ', <, >)`)
	}
	return nil
}

// normalizeEmail lowercases and trims an email address and checks its shape
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("invalid email address")
	}
	return email, nil
}

// validate checks a registration payload
func (r *registerRequest) validate() error {
	if err := validatePassword(r.Password); err != nil {
		return err
	}
	if r.Password != r.PasswordConfirm {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

// validate checks a change-password payload
func (r *changePasswordRequest) validate() error {
	if len(r.CurrentPassword) < passwordMinLength || len(r.CurrentPassword) > passwordMaxLength {
		return fmt.Errorf("current password must be between %d and %d characters", passwordMinLength, passwordMaxLength)
	}
	if err := validatePassword(r.NewPassword); err != nil {
		return err
	}
	if r.NewPassword != r.NewPasswordConfirm {
		return fmt.Errorf("new password and confirmation do not match")
	}
	if r.NewPassword == r.CurrentPassword {
		return fmt.Errorf("new password must differ from current password")
	}
	return nil
}

// validate checks one submitted event
func (e *eventRequest) validate() error {
	if e.EventID == uuid.Nil {
		return fmt.Errorf("event_id is required")
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	if e.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if len(e.EventType) > eventTypeMaxLen {
		return fmt.Errorf("event_type must be at most %d characters", eventTypeMaxLen)
	}
	return nil
}

// toEvent converts a request into the storage representation
func (e *eventRequest) toEvent() storage.Event {
	props := e.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	return storage.Event{
		EventID:    e.EventID,
		OccurredAt: e.OccurredAt,
		UserID:     e.UserID,
		EventType:  e.EventType,
		Properties: props,
	}
}
