// internal/common/utils/validator.go
// Input validation using struct tags

package utils

import (
    "errors"
    "fmt"
    "strings"

    "github.com/go-playground/validator/v10"
)

// Global validator instance
var validate = validator.New()

// ValidateStruct validates a struct based on its tags
func ValidateStruct(s interface{}) error {
    err := validate.Struct(s)
    if err != nil {
        // Format validation errors into readable messages
        var msgs []string
        for _, fe := range err.(validator.ValidationErrors) {
            msgs = append(msgs, formatFieldError(fe))
        }
        return errors.New(strings.Join(msgs, ", "))
    }
    return nil
}

// formatFieldError converts validator errors to human-readable messages
func formatFieldError(fe validator.FieldError) string {
    field := fe.Field()
    tag := fe.Tag()

    switch tag {
    case "required":
        return fmt.Sprintf("%s is required", field)
    case "min":
        return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
    case "max":
        return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
    case "email":
        return fmt.Sprintf("%s must be a valid email", field)
    case "gt":
        return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
    case "oneof":
        return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
    default:
        return fmt.Sprintf("%s is invalid", field)
    }
}
