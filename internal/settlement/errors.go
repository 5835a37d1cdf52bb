package settlement

import (
	"fmt"
	"net/http"
)

// Machine-readable error codes surfaced to API callers. Raw provider error
// shapes never leave this package.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyPaid        = "ALREADY_PAID"
	CodeOrderMismatch      = "ORDER_MISMATCH"
	CodeOrderNotFound      = "ORDER_NOT_FOUND"
	CodeOrderNotApproved   = "ORDER_NOT_APPROVED"
	CodeInstrumentDeclined = "INSTRUMENT_DECLINED"
	CodeNotRefundable      = "NOT_REFUNDABLE"
	CodeCaptureFailed      = "CAPTURE_FAILED"
	CodeUpstream           = "UPSTREAM_GATEWAY_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is the settlement failure taxonomy: a stable code, the HTTP status
// it maps to, and an optional client action hint.
type Error struct {
	Code    string
	Status  int
	Message string
	Action  string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errValidation(message string) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: message}
}

func errUnauthorized() *Error {
	return &Error{Code: CodeUnauthorized, Status: http.StatusUnauthorized, Message: "authentication required"}
}

func errForbidden() *Error {
	return &Error{Code: CodeForbidden, Status: http.StatusForbidden, Message: "caller does not own this booking"}
}

func errNotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: what + " not found"}
}

func errAlreadyPaid() *Error {
	return &Error{Code: CodeAlreadyPaid, Status: http.StatusConflict, Message: "booking is already paid"}
}

func errOrderMismatch() *Error {
	return &Error{Code: CodeOrderMismatch, Status: http.StatusBadRequest, Message: "order id does not match the booking's payment order"}
}

func errOrderNotFound() *Error {
	return &Error{Code: CodeOrderNotFound, Status: http.StatusNotFound, Message: "gateway order not found"}
}

func errOrderNotApproved() *Error {
	return &Error{Code: CodeOrderNotApproved, Status: http.StatusConflict, Message: "order has not been approved by the payer"}
}

func errInstrumentDeclined() *Error {
	return &Error{
		Code:    CodeInstrumentDeclined,
		Status:  http.StatusConflict,
		Message: "funding instrument was declined",
		Action:  "retry",
	}
}

func errNotRefundable(message string) *Error {
	return &Error{Code: CodeNotRefundable, Status: http.StatusConflict, Message: message}
}

func errCaptureFailed(err error) *Error {
	return &Error{Code: CodeCaptureFailed, Status: http.StatusBadGateway, Message: "gateway capture failed", Err: err}
}

func errUpstream(err error) *Error {
	return &Error{Code: CodeUpstream, Status: http.StatusBadGateway, Message: "payment gateway call failed", Err: err}
}

func errInternal(err error) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal error", Err: err}
}
