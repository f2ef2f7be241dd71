package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidInput = errors.New("invalid input")

const DefaultMaxMessageLength = 2000

var (
	usernamePattern    = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)
	roomNamePattern    = regexp.MustCompile(`^[a-zA-Z0-9 _-]{2,50}$`)
	displayNamePattern = regexp.MustCompile(`^[a-zA-Z0-9 .,!?_-]{1,50}$`)
)

// Validator checks the format of user-supplied identifiers and content.
// Rules are registered once on a validator instance so struct-level
// validation in the HTTP layer can reuse the same tags.
type Validator struct {
	v                *validator.Validate
	maxMessageLength int
}

func New(maxMessageLength int) *Validator {
	if maxMessageLength <= 0 {
		maxMessageLength = DefaultMaxMessageLength
	}
	v := validator.New()
	mustRegister(v, "quad_username", usernamePattern)
	mustRegister(v, "quad_roomname", roomNamePattern)
	mustRegister(v, "quad_displayname", displayNamePattern)
	return &Validator{v: v, maxMessageLength: maxMessageLength}
}

func mustRegister(v *validator.Validate, tag string, pattern *regexp.Regexp) {
	err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	})
	if err != nil {
		panic(err)
	}
}

func (va *Validator) MaxMessageLength() int {
	return va.maxMessageLength
}

// Username accepts 3-20 characters: letters, digits, underscore, hyphen.
func (va *Validator) Username(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("%w: username cannot be empty", ErrInvalidInput)
	}
	if err := va.v.Var(username, "quad_username"); err != nil {
		return fmt.Errorf("%w: username must be 3-20 characters of letters, numbers, underscores, and hyphens", ErrInvalidInput)
	}
	return nil
}

// RoomName accepts 2-50 characters: letters, digits, spaces, underscore,
// hyphen. A name that is only spaces is rejected.
func (va *Validator) RoomName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: room name cannot be empty", ErrInvalidInput)
	}
	if err := va.v.Var(name, "quad_roomname"); err != nil {
		return fmt.Errorf("%w: room name must be 2-50 characters of letters, numbers, spaces, hyphens, and underscores", ErrInvalidInput)
	}
	return nil
}

// DisplayName accepts 1-50 characters including common punctuation.
func (va *Validator) DisplayName(displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return fmt.Errorf("%w: display name cannot be empty", ErrInvalidInput)
	}
	if err := va.v.Var(displayName, "quad_displayname"); err != nil {
		return fmt.Errorf("%w: display name contains invalid characters", ErrInvalidInput)
	}
	return nil
}

// Email defers to the validator's built-in rule.
func (va *Validator) Email(email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: email cannot be empty", ErrInvalidInput)
	}
	if err := va.v.Var(email, "email"); err != nil {
		return fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	return nil
}

// Message trims the content and enforces the configured length bound.
// The trimmed content is returned so callers persist exactly what was
// validated.
func (va *Validator) Message(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", fmt.Errorf("%w: message cannot be empty", ErrInvalidInput)
	}
	if len(trimmed) > va.maxMessageLength {
		return "", fmt.Errorf("%w: message must be no more than %d characters", ErrInvalidInput, va.maxMessageLength)
	}
	return trimmed, nil
}

// Reason strips the sentinel prefix so the remaining text can be shown to
// the user who caused the failure.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
}
