// Package errors turns errors into low-cardinality tag values.
package errors

import (
	"errors"
	"reflect"
	"strings"

	apperrors "github.com/target/opsconsole/internal/errors"
)

// Classify returns a tag value for err: the AppError code when one is present,
// otherwise the snake_cased type name of the innermost error.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}

	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return "unknown"
	}
	return name
}
