package service

import (
	"errors"
	"fmt"

	"github.com/lshigami/cefrexam/internal/model"
)

var (
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrMockExamNotFound     = errors.New("mock exam not found")
	ErrQuestionNotInAttempt = errors.New("question not found in attempt")
	ErrAttemptNotInProgress = errors.New("attempt is not in progress")
	ErrMissingQuestionID    = errors.New("question_id or attempt_question_id is required")
	ErrWrongAddressing      = errors.New("question id does not match the attempt's addressing mode")
	ErrUploadRejected       = errors.New("upload rejected")
	ErrUploadTooLarge       = errors.New("upload exceeds size limit")
	ErrAIUnavailable        = errors.New("AI service is unavailable")
	ErrNoPurchaseRemaining  = errors.New("no mock exam purchase with remaining uses")
	ErrMockExamEmpty        = errors.New("mock exam has no questions")

	ErrDuplicateQuestionOrder = errors.New("duplicate order_in_exam in questions")
)

// AccessDeniedError carries the entitlement decision that blocked an action.
type AccessDeniedError struct {
	Reason   string
	PlanType model.PlanType
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied (%s plan): %s", e.PlanType, e.Reason)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrMockExamNotFound) ||
		errors.Is(err, ErrQuestionNotInAttempt)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrAttemptNotInProgress)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingQuestionID) ||
		errors.Is(err, ErrWrongAddressing) ||
		errors.Is(err, ErrMockExamEmpty) ||
		errors.Is(err, ErrDuplicateQuestionOrder)
}

func IsUploadRejected(err error) bool {
	return errors.Is(err, ErrUploadRejected) || errors.Is(err, ErrUploadTooLarge)
}

func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
