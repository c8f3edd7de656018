package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SchemaValidator decodes request bodies into schema structs and checks their
// validate tags
type SchemaValidator struct {
	validate *validator.Validate
}

// NewSchemaValidator creates a validator that reports fields by their JSON name
func NewSchemaValidator() *SchemaValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &SchemaValidator{validate: v}
}

// Decode fills target from a JSON document and validates it. A nil result
// means target is valid.
func (sv *SchemaValidator) Decode(data []byte, target any) ([]FieldError, error) {
	if err := json.Unmarshal(data, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "body"
			}
			return []FieldError{{Field: field, Message: fmt.Sprintf("must be of type %s", typeErr.Type.Kind())}}, nil
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return []FieldError{{Field: "body", Message: "must be valid JSON"}}, nil
		}
		return nil, fmt.Errorf("failed to decode request body: %w", err)
	}
	return sv.Struct(target)
}

// Struct validates an already populated schema struct
func (sv *SchemaValidator) Struct(target any) ([]FieldError, error) {
	err := sv.validate.Struct(target)
	if err == nil {
		return nil, nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("failed to validate request body: %w", err)
	}

	fields := make([]FieldError, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, FieldError{
			Field:   fieldPath(fe),
			Message: formatValidationError(fe),
		})
	}
	return fields, nil
}

// fieldPath drops the top-level struct name from the namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "ip":
		return "must be a valid IP address"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
