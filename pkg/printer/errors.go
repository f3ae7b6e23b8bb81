package printer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Sentinel errors for the Printer communication taxonomy.
var (
	// ErrAuth indicates the token endpoint was unreachable or rejected the credentials.
	ErrAuth = errors.New("printer authentication failed")

	// ErrTransport indicates no response was received (network error or timeout).
	ErrTransport = errors.New("no response received from printer")

	// ErrNothingToSubmit indicates no line item of a job was eligible for printing.
	ErrNothingToSubmit = errors.New("no printable line items")
)

// Errors is a field-keyed error set as surfaced to callers. Keys are field
// names or HTTP status codes; values are strings, lists or nested objects
// exactly as the Printer returned them.
type Errors map[string]any

// Messages flattens the error set into "key: message" lines sorted by key.
func (e Errors) Messages() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		for _, m := range flatten(e[k]) {
			msgs = append(msgs, k+": "+m)
		}
	}
	return msgs
}

func flatten(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, flatten(item)...)
		}
		return out
	case map[string]any:
		return Errors(t).Messages()
	default:
		return []string{fmt.Sprint(t)}
	}
}

// APIError is a non-success HTTP response from the Printer API.
type APIError struct {
	StatusCode int
	Detail     string
	Errors     Errors
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("printer api error (%d): %s", e.StatusCode, e.Detail)
	}
	if msgs := e.Errors.Messages(); len(msgs) > 0 {
		return fmt.Sprintf("printer api error (%d): %s", e.StatusCode, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("printer api error (%d)", e.StatusCode)
}

// Code returns the status code as an error-set key.
func (e *APIError) Code() string {
	return strconv.Itoa(e.StatusCode)
}

// ParseError indicates a response body did not have the expected shape.
type ParseError struct {
	Operation  string
	StatusCode int
	Cause      error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("decoding %s response (%d): %v", e.Operation, e.StatusCode, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Kind classifies err for logs and metric labels.
func Kind(err error) string {
	var apiErr *APIError
	var parseErr *ParseError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrNothingToSubmit):
		return "validation"
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

// IsRetryable returns true if a later attempt may succeed without changes.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	return errors.Is(err, ErrAuth) || errors.Is(err, ErrTransport) || errors.Is(err, context.DeadlineExceeded)
}
