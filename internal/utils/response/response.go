// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every handler in this application sends JSON back to the client.
// Rather than repeating the same three lines (set header, set status,
// encode JSON) in every handler, we centralise them here.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ─────────────────────────────────────────────────────────────────────────────
// Response is the standard envelope returned for error cases.
//
// Success responses may return any JSON shape. Error responses always
// look like:
//
//	{ "status": "error", "error": "field email is required" }
//
// Form errors additionally carry the per-field messages so the client
// can show each one next to its input:
//
//	{ "status": "error", "error": "...", "fields": { "email": "..." } }
//
// ─────────────────────────────────────────────────────────────────────────────
type Response struct {
	Status string            `json:"status"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrEmptyBody is reported when a handler expected a JSON body.
var ErrEmptyBody = errors.New("request body is empty")

// WriteJSON writes a JSON-encoded response with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// DecodeJSON decodes the request body into v. An empty body yields
// ErrEmptyBody.
func DecodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return ErrEmptyBody
	}
	return err
}

// GeneralError wraps any Go error into our standard Response shape.
func GeneralError(err error) Response {
	return Response{
		Status: StatusError,
		Error:  err.Error(),
	}
}

// FieldErrors builds a form error response from field → message pairs.
// The summary joins the messages in field order.
func FieldErrors(fields map[string]string, summary string) Response {
	return Response{
		Status: StatusError,
		Error:  summary,
		Fields: fields,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ValidationError converts the go-playground/validator errors of a request
// payload into a single Response, one English sentence per failing field.
//
// Example output:
//
//	{ "status": "error", "error": "field message is required",
//	  "fields": { "message": "field message is required" } }
//
// ─────────────────────────────────────────────────────────────────────────────
func ValidationError(errs validator.ValidationErrors) Response {
	var errMessages []string
	fields := make(map[string]string, len(errs))

	for _, e := range errs {
		var msg string
		switch e.ActualTag() {
		case "required":
			msg = fmt.Sprintf("field %s is required", e.Field())
		case "email":
			msg = fmt.Sprintf("field %s must be a valid email address", e.Field())
		case "oneof":
			msg = fmt.Sprintf("field %s must be one of: %s", e.Field(), e.Param())
		case "max":
			msg = fmt.Sprintf("field %s must be at most %s characters", e.Field(), e.Param())
		default:
			msg = fmt.Sprintf("field %s is invalid", e.Field())
		}
		errMessages = append(errMessages, msg)
		if _, seen := fields[e.Field()]; !seen {
			fields[e.Field()] = msg
		}
	}

	return Response{
		Status: StatusError,
		Error:  strings.Join(errMessages, ", "),
		Fields: fields,
	}
}
