// Package utils provides validation and parsing helpers shared by the PSN service layers.
package utils

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/turtacn/psn/pkg/constants"
	"github.com/turtacn/psn/pkg/errors"
)

// domainNamePattern keeps domain names URI-safe (RFC 3986 unreserved characters).
var domainNamePattern = regexp.MustCompile(`^[A-Za-z0-9._~-]+$`)

// Validator holds the singleton instance of the validator.
var defaultValidator *validator.Validate

func init() {
	defaultValidator = validator.New()
	defaultValidator.RegisterValidation("domainname", validateDomainName)
	defaultValidator.RegisterValidation("algorithm", validateAlgorithm)
}

// ValidateStruct validates a struct using the default validator.
// It returns a BadRequest error listing each failed field.
func ValidateStruct(s interface{}) errors.PSNError {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !stderrors.As(err, &validationErrors) {
		return errors.ErrBadRequest(err.Error())
	}
	psnErr := errors.ErrBadRequest("request validation failed")
	for _, fe := range validationErrors {
		psnErr.WithMetadata(toSnakeCase(fe.Field()), formatValidationError(fe))
	}
	return psnErr
}

// IsValidDomainName reports whether name is usable as a URI path segment.
func IsValidDomainName(name string) bool {
	return domainNamePattern.MatchString(name)
}

func validateDomainName(fl validator.FieldLevel) bool {
	return IsValidDomainName(fl.Field().String())
}

func validateAlgorithm(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || constants.Algorithm(value).IsValid()
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "domainname":
		return "must contain only letters, digits, '.', '_', '~' or '-'"
	case "algorithm":
		return "must be a supported algorithm"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

// toSnakeCase converts a string from CamelCase to snake_case.
// This is used to format field names in the validation error response.
func toSnakeCase(str string) string {
	var matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	var matchAllCap = regexp.MustCompile("([a-z0-9])([A-Z])")
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}
