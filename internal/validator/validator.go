// Package validator holds the registration field rules. Error texts are
// the codes the client shows next to each form field.
package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrBadFormat     = errors.New("bad_format")
	ErrLongEmail     = errors.New("long_email")
	ErrShortPassword = errors.New("short_password")
	ErrLongPassword  = errors.New("long_password")
	ErrNoLowercase   = errors.New("no_lowercase")
	ErrNoUppercase   = errors.New("no_uppercase")
	ErrNoNumber      = errors.New("no_number")
	ErrShortUsername = errors.New("short_username")
	ErrLongUsername  = errors.New("long_username")
)

const (
	maxEmailLength    = 64
	minPasswordLength = 6
	maxPasswordLength = 32
	minUsernameLength = 2
	maxUsernameLength = 32
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._+-]*[a-zA-Z0-9])?@[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?\.[a-zA-Z]{2,}$`)

// passwordRules are checked in order, the first miss is reported.
var passwordRules = []struct {
	pattern *regexp.Regexp
	err     error
}{
	{regexp.MustCompile(`[a-z]`), ErrNoLowercase},
	{regexp.MustCompile(`[A-Z]`), ErrNoUppercase},
	{regexp.MustCompile(`\d`), ErrNoNumber},
}

func Email(email string) error {
	if len(email) > maxEmailLength {
		return ErrLongEmail
	}
	if !emailRegex.MatchString(email) {
		return ErrBadFormat
	}
	return nil
}

func Password(password string) error {
	switch length := len(password); {
	case length < minPasswordLength:
		return ErrShortPassword
	case length > maxPasswordLength:
		return ErrLongPassword
	}

	for _, rule := range passwordRules {
		if !rule.pattern.MatchString(password) {
			return rule.err
		}
	}
	return nil
}

// Username allows 2 to 32 characters without surrounding spaces or
// control whitespace.
func Username(username string) error {
	switch length := utf8.RuneCountInString(username); {
	case length < minUsernameLength:
		return ErrShortUsername
	case length > maxUsernameLength:
		return ErrLongUsername
	}

	if strings.TrimSpace(username) != username || strings.ContainsAny(username, "\r\n\t") {
		return ErrBadFormat
	}
	return nil
}
