package validation

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultNameMinLength = 1
	DefaultNameMaxLength = 255
)

// Validator checks user supplied task fields. Struct rules live in tags on
// the domain types and are evaluated by go-playground/validator.
type Validator struct {
	structs   *validator.Validate
	minLength int
	maxLength int
}

// NewValidator creates a validator with the default name length limits.
func NewValidator() *Validator {
	return NewValidatorWithLimits(DefaultNameMinLength, DefaultNameMaxLength)
}

// NewValidatorWithLimits creates a validator with configured name length limits.
func NewValidatorWithLimits(minLength, maxLength int) *Validator {
	if minLength < 1 {
		minLength = DefaultNameMinLength
	}
	if maxLength < minLength {
		maxLength = DefaultNameMaxLength
	}
	return &Validator{
		structs:   validator.New(validator.WithRequiredStructEnabled()),
		minLength: minLength,
		maxLength: maxLength,
	}
}

// IsNonEmptyString checks if a string is not empty after trimming whitespace
func (v *Validator) IsNonEmptyString(s string) bool {
	return strings.TrimSpace(s) != ""
}

// HasControlCharacters reports whether s contains newlines, tabs or other control runes.
func (v *Validator) HasControlCharacters(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

// Struct validates a tagged struct and converts failures into a ValidationError.
func (v *Validator) Struct(s interface{}) error {
	err := v.structs.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	result := NewValidationError()
	for _, fe := range fieldErrs {
		field := toSnake(fe.Field())
		switch fe.Tag() {
		case "required":
			result.AddRequiredError(field)
		case "max", "min":
			result.AddInvalidLengthError(field, fe.Value(), v.minLength, v.maxLength)
		case "datetime":
			result.AddError(field, ErrorTypeInvalidFormat, field+" must be a YYYY-MM-DD date", fe.Value())
		default:
			result.AddError(field, ErrorTypeInvalidValue, field+" failed "+fe.Tag()+" check", fe.Value())
		}
	}
	return result
}

func (v *Validator) runeLengthOK(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= v.minLength && n <= v.maxLength
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
