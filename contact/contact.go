// Package contact holds the contact form submission and its validation rules.
package contact

import (
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	ErrMissingField = errors.New("all fields are required")
	ErrInvalidEmail = errors.New("invalid email address")
)

// emailPattern is only anchored at the start: "a@b.c" and "a@b.cANYTHING" both pass.
var emailPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+`)

// ValidEmail reports whether s looks like an email address.
// This is a basic check: an @ followed somewhere by a dot.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Submission is one POST of the contact form.
type Submission struct {
	Name    string `form:"name" validate:"required"`
	Email   string `form:"email" validate:"required,basicemail"`
	Message string `form:"message" validate:"required"`
}

// Parse builds a Submission from form values. Missing keys become "",
// every value is trimmed.
func Parse(form url.Values) Submission {
	return Submission{
		Name:    Trim(form.Get("name")),
		Email:   Trim(form.Get("email")),
		Message: Trim(form.Get("message")),
	}
}

// Trim strips leading and trailing whitespace. The ASCII file, group,
// record and unit separators (0x1c-0x1f) count as whitespace too.
func Trim(s string) string {
	return strings.TrimFunc(s, isSpace)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	if err := v.RegisterValidation("basicemail", func(fl validator.FieldLevel) bool {
		return ValidEmail(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate runs the presence check on every field, then the email check.
// The returned error wraps ErrMissingField or ErrInvalidEmail.
func (s Submission) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	var missing []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		}
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrMissingField, "missing %s", strings.Join(missing, ", "))
	}
	return errors.Wrapf(ErrInvalidEmail, "email %q", s.Email)
}
