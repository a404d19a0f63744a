package ledger

import (
	"errors"
	"fmt"
)

// Category errors. Every specific error below wraps exactly one of them.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrOverpayment = errors.New("payment exceeds the semester total")
)

var (
	ErrUnknownClass       = fmt.Errorf("%w: unknown class", ErrValidation)
	ErrInvalidPaymentMode = fmt.Errorf("%w: invalid payment mode", ErrValidation)
	ErrInvalidSemester    = fmt.Errorf("%w: invalid semester", ErrValidation)

	ErrStudentNotFound   = fmt.Errorf("student %w", ErrNotFound)
	ErrAdmissionNotFound = fmt.Errorf("admission %w", ErrNotFound)
	ErrFeeRecordNotFound = fmt.Errorf("fee record %w", ErrNotFound)
	ErrStaffNotFound     = fmt.Errorf("staff %w", ErrNotFound)

	ErrDuplicateFeeRecord = fmt.Errorf("%w: fee record already exists for student, class and section", ErrConflict)
	ErrDuplicateStaff     = fmt.Errorf("%w: staff with this email already exists", ErrConflict)
	ErrVersionConflict    = fmt.Errorf("%w: fee record was modified concurrently", ErrConflict)
	ErrStaleFeeStatus     = fmt.Errorf("%w: a newer fee status is already stored", ErrConflict)
)

// ValidationError reports a single invalid request field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == nil || e.Value == "" {
		return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// OverpaymentError carries the figures of a rejected payment.
type OverpaymentError struct {
	Semester  string `json:"semester"`
	Paid      string `json:"paid"`
	Requested string `json:"requested"`
	Total     string `json:"total"`
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("%s: %s already paid plus %s requested exceeds %s total of %s",
		ErrOverpayment.Error(), e.Paid, e.Requested, e.Semester, e.Total)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpayment
}
