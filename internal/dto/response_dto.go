package dto

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type ErrorResponse struct {
	Message string            `json:"message"`
	Details []string          `json:"details,omitempty"`
	Fields  []ValidationError `json:"fields,omitempty"`
}

// ValidationError is one failed field of a request body.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Rule    string `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// ToValidationErrors converts binding errors from the validator into field errors.
// Anything else (malformed JSON, wrong types) yields nil.
func ToValidationErrors(err error) ValidationErrors {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Message: fieldMessage(fe),
			Rule:    fe.Tag(),
		})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "required_without":
		return fmt.Sprintf("is required when %s is missing", fe.Param())
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}

// NewBindErrorResponse builds the 400 body for a failed ShouldBind call.
func NewBindErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Message: "Invalid request body"}
	if fields := ToValidationErrors(err); len(fields) > 0 {
		resp.Fields = fields
		return resp
	}
	resp.Details = []string{err.Error()}
	return resp
}
