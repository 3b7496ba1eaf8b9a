package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FormatValidationError flattens validator errors into field -> message.
// Errors that are not validator.ValidationErrors are reported under "body".
func FormatValidationError(err error) map[string]string {
	result := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		result["body"] = err.Error()
		return result
	}

	for _, fieldErr := range validationErrors {
		field := strings.ToLower(fieldErr.Field())

		switch fieldErr.Tag() {
		case "required":
			result[field] = fmt.Sprintf("%s is required", field)
		case "min":
			result[field] = fmt.Sprintf("%s must be at least %s characters", field, fieldErr.Param())
		case "max":
			result[field] = fmt.Sprintf("%s must be at most %s characters", field, fieldErr.Param())
		case "len":
			result[field] = fmt.Sprintf("%s must be exactly %s characters", field, fieldErr.Param())
		case "email":
			result[field] = fmt.Sprintf("%s must be a valid email", field)
		case "numeric":
			result[field] = fmt.Sprintf("%s must contain digits only", field)
		case "hexadecimal":
			result[field] = fmt.Sprintf("%s must be hexadecimal", field)
		default:
			result[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return result
}

// ValidationMessage renders FormatValidationError as one sorted line.
func ValidationMessage(err error) string {
	fields := FormatValidationError(err)

	msgs := make([]string, 0, len(fields))
	for _, msg := range fields {
		msgs = append(msgs, msg)
	}
	sort.Strings(msgs)

	return strings.Join(msgs, "; ")
}
