// Package runerr defines the error kinds that abort a review run and the
// process exit codes they map to.
package runerr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind identifies why a run stopped.
type Kind string

const (
	KindConfiguration    Kind = "configuration"
	KindTransport        Kind = "transport"
	KindCommunication    Kind = "communication"
	KindStructuredOutput Kind = "structured_output"
	KindSeverityGate     Kind = "severity_gate"
)

// Category narrows a transport error down by response class.
type Category string

const (
	CategoryBadRequest   Category = "bad_request"
	CategoryUnauthorized Category = "unauthorized"
	CategoryServerError  Category = "server_error"
	CategoryUnexpected   Category = "unexpected"
)

// Exit codes per kind. Any error without a kind exits with 1.
const (
	ExitOK               = 0
	ExitGeneric          = 1
	ExitConfiguration    = 2
	ExitTransport        = 3
	ExitCommunication    = 4
	ExitStructuredOutput = 5
	ExitSeverityGate     = 6
)

const unauthorizedHint = "The API token you provided is invalid. Did you or a member of your team regenerate the token? Create a new one and update the credentials of this run."

// Error is a tagged run failure.
type Error struct {
	Kind     Kind
	Category Category // transport errors only
	Op       string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Category != "" {
		b.WriteString(" (" + string(e.Category) + ")")
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Configuration reports a missing or invalid setting found before any network call.
func Configuration(op, format string, args ...interface{}) error {
	return &Error{Kind: KindConfiguration, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Transport reports a failed call to a hosting service or the run API.
func Transport(op string, category Category, message string, err error) error {
	if category == CategoryUnauthorized && message == "" {
		message = unauthorizedHint
	}
	return &Error{Kind: KindTransport, Category: category, Op: op, Message: message, Err: err}
}

// Communication reports a reasoning call that failed at the transport level.
func Communication(stage string, err error) error {
	return &Error{Kind: KindCommunication, Op: "stage " + stage, Err: err}
}

// StructuredOutput reports output that stayed malformed after the corrective pass.
func StructuredOutput(op string, err error) error {
	return &Error{Kind: KindStructuredOutput, Op: op, Err: err}
}

// SeverityGate reports a review that tripped the severity gate.
func SeverityGate(message string) error {
	return &Error{Kind: KindSeverityGate, Message: message}
}

// CategoryForStatus classifies an HTTP status of a failed response.
func CategoryForStatus(status int) Category {
	switch {
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusUnprocessableEntity:
		return CategoryBadRequest
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return CategoryUnauthorized
	case status >= http.StatusInternalServerError:
		return CategoryServerError
	default:
		return CategoryUnexpected
	}
}

// FromStatus builds a transport error for a non-2xx response.
func FromStatus(op string, status int, body string) error {
	category := CategoryForStatus(status)
	message := ""
	if category != CategoryUnauthorized {
		message = fmt.Sprintf("status %d: %s", status, strings.TrimSpace(body))
	}
	return Transport(op, category, message, nil)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsCategory reports whether err is a transport error of category.
func IsCategory(err error, category Category) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTransport && e.Category == category
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	kind, ok := KindOf(err)
	if !ok {
		return ExitGeneric
	}
	switch kind {
	case KindConfiguration:
		return ExitConfiguration
	case KindTransport:
		return ExitTransport
	case KindCommunication:
		return ExitCommunication
	case KindStructuredOutput:
		return ExitStructuredOutput
	case KindSeverityGate:
		return ExitSeverityGate
	default:
		return ExitGeneric
	}
}
