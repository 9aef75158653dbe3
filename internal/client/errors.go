package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Fallbacks used when the API's error payload lacks a code or message
const (
	DefaultErrorCode    = "unknown_error"
	DefaultErrorMessage = "An unknown error occurred"
)

// ErrUnauthorized matches any *APIError with status 401 via errors.Is
var ErrUnauthorized = errors.New("unauthorized")

// Kind classifies a failed exchange
type Kind string

const (
	KindTransport    Kind = "transport"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindClient       Kind = "client"
	KindServer       Kind = "server"
)

// APIError is the single shape every failed exchange is converted into.
type APIError struct {
	// Status is the HTTP status, 0 when no response was received
	Status    int             `json:"-"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	Timestamp string          `json:"timestamp"`

	cause error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.Status)
}

// Unwrap returns the transport error, if any
func (e *APIError) Unwrap() error {
	return e.cause
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Kind classifies the error for callers deciding how to surface it
func (e *APIError) Kind() Kind {
	switch {
	case e.Status == 0:
		return KindTransport
	case e.Status == http.StatusUnauthorized:
		return KindUnauthorized
	case e.Status >= 500:
		return KindServer
	case e.Status >= 400 && len(e.FieldErrors()) > 0:
		return KindValidation
	default:
		return KindClient
	}
}

// FieldErrors decodes field-level details. The API may send an object of
// field → message, field → []message, or a list of {field, message}.
func (e *APIError) FieldErrors() map[string]string {
	if len(e.Details) == 0 {
		return nil
	}

	var single map[string]string
	if err := json.Unmarshal(e.Details, &single); err == nil && len(single) > 0 {
		return single
	}

	var multi map[string][]string
	if err := json.Unmarshal(e.Details, &multi); err == nil && len(multi) > 0 {
		out := make(map[string]string, len(multi))
		for field, msgs := range multi {
			if len(msgs) > 0 {
				out[field] = msgs[0]
			}
		}
		return out
	}

	var list []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(e.Details, &list); err == nil && len(list) > 0 {
		out := make(map[string]string, len(list))
		for _, item := range list {
			if item.Field != "" {
				out[item.Field] = item.Message
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// AsAPIError extracts an *APIError from err
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// normalizeError builds an APIError from whatever the exchange produced.
// body may be empty or not JSON; missing fields fall back to the defaults.
func normalizeError(status int, body []byte, cause error, now time.Time) *APIError {
	apiErr := &APIError{Status: status, cause: cause}

	if len(body) > 0 {
		var payload struct {
			Code    string          `json:"code"`
			Message string          `json:"message"`
			Details json.RawMessage `json:"details"`
		}
		if err := json.Unmarshal(body, &payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Message
			if len(payload.Details) > 0 && string(payload.Details) != "null" {
				apiErr.Details = payload.Details
			}
		}
	}

	if apiErr.Code == "" {
		apiErr.Code = DefaultErrorCode
	}
	if apiErr.Message == "" {
		apiErr.Message = DefaultErrorMessage
	}
	apiErr.Timestamp = now.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	return apiErr
}
