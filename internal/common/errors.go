package common

import (
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// User-facing messages for extraction failures.
const (
	MsgNotInvoice       = "The uploaded file does not look like an invoice"
	MsgExtractionFailed = "Failed to extract information"
)

// Reasons attached to status errors as errdetails.ErrorInfo.
const (
	ReasonNotInvoice       = "NOT_INVOICE"
	ReasonExtractionFailed = "EXTRACTION_FAILED"

	errorDomain = "site-invoices"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func FailedPreconditionError(message string) error {
	return status.Error(codes.FailedPrecondition, message)
}

func InvalidArgumentErrorf(format string, args ...any) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

func InternalErrorf(format string, args ...any) error {
	return InternalError(fmt.Sprintf(format, args...))
}

// StatusWithReason builds a status error carrying an ErrorInfo reason so that
// transports can tell apart errors sharing a code.
func StatusWithReason(code codes.Code, reason, message string) error {
	st := status.New(code, message)
	if withInfo, err := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}); err == nil {
		st = withInfo
	}
	return st.Err()
}

// ReasonOf returns the ErrorInfo reason of a status error, or "".
func ReasonOf(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info.GetReason()
		}
	}
	return ""
}

// NotInvoiceError rejects a document the heuristic parser does not recognize.
func NotInvoiceError() error {
	return StatusWithReason(codes.InvalidArgument, ReasonNotInvoice, MsgNotInvoice)
}

// ExtractionFailedError reports a failed model extraction.
func ExtractionFailedError() error {
	return StatusWithReason(codes.Internal, ReasonExtractionFailed, MsgExtractionFailed)
}
