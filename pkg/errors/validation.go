package errors

import (
	"strings"
	"unicode"
)

// reservedNames are instance capabilities that a view may never shadow.
// Comparison is case-insensitive.
var reservedNames = map[string]struct{}{
	"add":         {},
	"dispose":     {},
	"element":     {},
	"query":       {},
	"register":    {},
	"removeview":  {},
	"render":      {},
	"replaceview": {},
	"usestate":    {},
}

// IsReservedName reports whether name collides with a built-in instance
// capability.
func IsReservedName(name string) bool {
	_, ok := reservedNames[strings.ToLower(name)]
	return ok
}

// ValidateViewName validates a view name or alias before registration.
//
// The rules:
//   - No empty names
//   - Letters, digits, '-' and '_' only, starting with a letter
//   - Maximum length of 64 characters
//   - Not a reserved instance capability
func ValidateViewName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidRegistration, "view name cannot be empty")
	}
	if len(name) > 64 {
		return New(ErrCodeInvalidRegistration, "view name too long (max 64 characters)")
	}
	for i, r := range name {
		switch {
		case unicode.IsLetter(r):
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '_'):
		default:
			return New(ErrCodeInvalidRegistration, "view name %q contains invalid character %q", name, r)
		}
	}
	if IsReservedName(name) {
		return New(ErrCodeInvalidRegistration, "view name %q is reserved", name)
	}
	return nil
}

// ValidateInstanceID validates an embed point identifier. Identifiers are
// used to namespace persisted state, so they must not contain separators
// that could collide with another instance's keys.
func ValidateInstanceID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "instance id cannot be empty")
	}
	if len(id) > 128 {
		return New(ErrCodeInvalidInput, "instance id too long (max 128 characters)")
	}
	for _, r := range id {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidInput, "instance id contains invalid characters")
		}
	}
	if strings.ContainsAny(id, ":/\\") {
		return New(ErrCodeInvalidInput, "instance id %q cannot contain ':', '/' or '\\'", id)
	}
	return nil
}
