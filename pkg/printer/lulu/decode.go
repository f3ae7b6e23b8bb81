package lulu

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tournevent/printbridge/pkg/printer"
)

// decodeError maps a non-success response to an APIError.
//
//	401, 403  {"<code>": detail}
//	400       the decoded body itself; non-object bodies are keyed by code
//	other     {"<code>": raw body}
func decodeError(status int, body []byte) *printer.APIError {
	code := strconv.Itoa(status)
	apiErr := &printer.APIError{StatusCode: status}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		var d errorDetail
		if err := json.Unmarshal(body, &d); err == nil && d.Detail != "" {
			apiErr.Detail = d.Detail
		} else {
			apiErr.Detail = string(bytes.TrimSpace(body))
		}
		apiErr.Errors = printer.Errors{code: apiErr.Detail}

	case http.StatusBadRequest:
		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err == nil && obj != nil {
			apiErr.Errors = printer.Errors(obj)
			break
		}
		var v any
		if err := json.Unmarshal(body, &v); err == nil && v != nil {
			apiErr.Errors = printer.Errors{code: v}
		} else {
			apiErr.Errors = printer.Errors{code: string(bytes.TrimSpace(body))}
		}

	default:
		apiErr.Errors = printer.Errors{code: string(bytes.TrimSpace(body))}
	}
	return apiErr
}

// decodeJSON decodes a success body into v, reporting shape mismatches as ParseError.
func decodeJSON(operation string, status int, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &printer.ParseError{Operation: operation, StatusCode: status, Cause: err}
	}
	return nil
}

// transportErrors is the error set surfaced when no response was received.
func transportErrors() printer.Errors {
	return printer.Errors{"Error": "No Response Received from Lulu"}
}
