package auth

import (
	"strings"

	apperrors "github.com/target/opsconsole/internal/errors"
)

// Validate checks the fields the directory relies on.
func (i Identity) Validate() error {
	if strings.TrimSpace(i.Key) == "" {
		return apperrors.ValidationField("key", "key is required")
	}
	if !i.Role.Valid() {
		return apperrors.ValidationField("role", "unknown role "+string(i.Role))
	}
	return nil
}

// Normalize trims whitespace and canonicalizes the role.
func (i Identity) Normalize() Identity {
	i.Key = strings.TrimSpace(i.Key)
	i.FirstName = strings.TrimSpace(i.FirstName)
	i.LastName = strings.TrimSpace(i.LastName)
	i.Area = strings.TrimSpace(i.Area)
	i.Email = strings.TrimSpace(i.Email)
	i.Role, _ = ParseRole(string(i.Role))
	return i
}
