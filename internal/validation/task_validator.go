package validation

import (
	"strings"

	"chronotask/internal/domain"
)

// TaskValidator provides validation for task names and inserted records
type TaskValidator struct {
	validator *Validator
}

// NewTaskValidator creates a new task validator
func NewTaskValidator() *TaskValidator {
	return &TaskValidator{validator: NewValidator()}
}

// NewTaskValidatorWithLimits creates a task validator using configured name limits.
func NewTaskValidatorWithLimits(minLength, maxLength int) *TaskValidator {
	return &TaskValidator{validator: NewValidatorWithLimits(minLength, maxLength)}
}

// ValidateTaskName validates a task name for creation or rename
func (tv *TaskValidator) ValidateTaskName(name string) error {
	validationError := NewValidationError()
	trimmed := strings.TrimSpace(name)

	if !tv.validator.IsNonEmptyString(trimmed) {
		validationError.AddRequiredError("name")
		return validationError
	}
	if !tv.validator.runeLengthOK(trimmed) {
		validationError.AddInvalidLengthError("name", trimmed, tv.validator.minLength, tv.validator.maxLength)
	}
	if tv.validator.HasControlCharacters(trimmed) {
		validationError.AddInvalidCharacterError("name", trimmed)
	}

	if validationError.HasErrors() {
		return validationError
	}
	return nil
}

// GetValidTaskName returns the trimmed name if valid
func (tv *TaskValidator) GetValidTaskName(name string) (string, error) {
	if err := tv.ValidateTaskName(name); err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

// CleanNames trims every entry and drops blank ones. Blank entries are not
// an error: a multi-line paste routinely contains empty lines.
func (tv *TaskValidator) CleanNames(names []string) []string {
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

// ValidateNewTask checks a record about to be inserted into the store.
func (tv *TaskValidator) ValidateNewTask(fields domain.NewTask) error {
	if err := tv.validator.Struct(fields); err != nil {
		return err
	}
	return tv.ValidateTaskName(fields.Name)
}
