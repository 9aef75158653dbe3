// Package validation checks request payloads before they are sent, so the
// CLI can report field problems without a round trip.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MinPasswordLength is the shortest password the API accepts
const MinPasswordLength = 8

// FieldErrors maps a field's JSON name to a human-readable message
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	names := make([]string, 0, len(fe))
	for name := range fe {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, fe[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var (
	instance *validator.Validate
	once     sync.Once
)

func get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(fieldName)
		_ = v.RegisterValidation("password", strongPassword)
		instance = v
	})
	return instance
}

// fieldName reports fields by their JSON name. Confirmation fields are not
// serialized, so they fall back to the lower-camel Go name.
func fieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name != "" && name != "-" {
		return name
	}
	r := []rune(f.Name)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func strongPassword(fl validator.FieldLevel) bool {
	return PasswordProblem(fl.Field().String()) == ""
}

// PasswordProblem describes why password is too weak, or returns "" when it
// is acceptable: 8+ characters with an uppercase letter, a lowercase letter
// and a digit.
func PasswordProblem(password string) string {
	if len([]rune(password)) < MinPasswordLength {
		return fmt.Sprintf("must be at least %d characters", MinPasswordLength)
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return "must contain an uppercase letter, a lowercase letter and a number"
	}
	return ""
}

// Validate checks v's validate tags. It returns FieldErrors when fields fail
// and nil when v is valid.
func Validate(v any) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		if _, seen := out[fe.Field()]; seen {
			continue
		}
		out[fe.Field()] = message(fe)
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Bool {
			return "must be accepted"
		}
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "password":
		return PasswordProblem(fe.Value().(string))
	case "eqfield":
		return "passwords do not match"
	case "nefield":
		return "must differ from the current password"
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
