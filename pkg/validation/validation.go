package validation

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var (
	// IdentityRegex accepts anything shaped like an email address.
	IdentityRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	ErrEmpty     = errors.New("value is required")
	ErrMalformed = errors.New("invalid format")
)

const maxIdentityLength = 254

// ValidateIdentity checks that identity is present and email-shaped.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return ErrEmpty
	}
	if len(identity) > maxIdentityLength {
		return fmt.Errorf("%w: longer than %d characters", ErrMalformed, maxIdentityLength)
	}
	if !IdentityRegex.MatchString(identity) {
		return ErrMalformed
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateOrigin accepts "*" or an http(s) origin.
func ValidateOrigin(origin string) error {
	if origin == "*" {
		return nil
	}
	return ValidateURL(origin)
}
