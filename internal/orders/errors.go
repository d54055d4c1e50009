package orders

import (
	"fmt"
	"net/http"
	"strings"
)

// ValidationError carries the names of the offending request fields.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid fields: " + strings.Join(e.Fields, ", ")
}

// StatusError is a coordinator-level rejection with an HTTP-equivalent
// status and a machine reason code.
type StatusError struct {
	Status  int
	Reason  string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Reason)
}

var (
	errOrderNotFound = &StatusError{Status: http.StatusNotFound, Reason: "not_found", Message: "order not found"}
	errOrderNotOpen  = &StatusError{Status: http.StatusConflict, Reason: "conflict", Message: "order is not open"}
	errMarketClosed  = &StatusError{Status: http.StatusForbidden, Reason: "market_closed", Message: "market is closed for this instrument"}
	errNoEntryPrice  = &StatusError{Status: http.StatusConflict, Reason: "conflict", Message: "entry price could not be resolved"}
	errWrongAccount  = &StatusError{Status: http.StatusForbidden, Reason: "forbidden", Message: "order does not belong to this account"}
)

func triggerDirectionError(msg string) *StatusError {
	return &StatusError{Status: http.StatusBadRequest, Reason: "validation", Message: msg}
}
