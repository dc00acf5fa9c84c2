package flow

import (
	"fmt"
	"net/http"
)

// Error codes for aborted flows.
const (
	CodeInvalidInput        = "invalid_input"
	CodeMissingParameter    = "missing_parameter"
	CodeExchangeFailed      = "exchange_failed"
	CodeStoreUnavailable    = "store_unavailable"
	CodeServerMisconfigured = "server_misconfigured"
)

// FlowError is a terminal flow outcome mapped to an HTTP error response.
// An aborted flow never falls back to the success redirect, so callers can
// tell the two outcomes apart deterministically.
type FlowError struct {
	Code        string // stable machine-readable code
	Description string // human-readable detail
	Status      int    // HTTP status code
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// ErrInvalidInput indicates a missing or empty required parameter at flow start.
func ErrInvalidInput(desc string) *FlowError {
	return &FlowError{Code: CodeInvalidInput, Description: desc, Status: http.StatusBadRequest}
}

// ErrMissingParameter indicates an expected correlation value or code was
// absent on an inbound callback.
func ErrMissingParameter(desc string) *FlowError {
	return &FlowError{Code: CodeMissingParameter, Description: desc, Status: http.StatusBadRequest}
}

// ErrExchangeFailed indicates the aggregator rejected the exchange, timed
// out, or returned malformed data. Stale or replayed codes land here too;
// the aggregator is the authority on single-use enforcement.
func ErrExchangeFailed(desc string) *FlowError {
	return &FlowError{Code: CodeExchangeFailed, Description: desc, Status: http.StatusBadGateway}
}

// ErrStoreUnavailable indicates the token could not be persisted.
func ErrStoreUnavailable(desc string) *FlowError {
	return &FlowError{Code: CodeStoreUnavailable, Description: desc, Status: http.StatusBadGateway}
}

// ErrServerMisconfigured indicates missing client credentials.
func ErrServerMisconfigured(desc string) *FlowError {
	return &FlowError{Code: CodeServerMisconfigured, Description: desc, Status: http.StatusInternalServerError}
}
