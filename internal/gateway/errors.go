package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UnauthorizedError is returned for 401 answers. The caller never receives a
// value; LoginURL is where the viewer has to be sent.
type UnauthorizedError struct {
	LoginURL string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: login required"
}

// NetworkError covers transport failures and every non-2xx answer other than 401.
type NetworkError struct {
	StatusCode int
	Detail     string
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	if e == nil {
		return "network error"
	}
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("network error: %v", e.Err)
		}
		return "network error"
	}
	msg := strings.TrimSpace(e.Detail)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("network error: status=%d message=%s", e.StatusCode, msg)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is a NetworkError raised when the backend rejects the
// payload of a mutating call (400, 409 or 422).
type ValidationError struct {
	*NetworkError
}

func (e *ValidationError) Error() string {
	msg := strings.TrimSpace(e.Detail)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("rejected by backend: %s", msg)
}

func (e *ValidationError) Unwrap() error { return e.NetworkError }

// ParseError means a successful answer carried a body that is not the
// expected JSON document.
type ParseError struct {
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func IsUnauthorized(err error) (*UnauthorizedError, bool) {
	var ue *UnauthorizedError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// parseDetail pulls a message out of the backend's error envelopes:
// {"detail": "..."}, {"detail": [{"msg": "...", "loc": [...]}]} and
// {"error": {"message": "..."}}.
func parseDetail(raw []byte) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(env.Error.Message); msg != "" {
		return msg
	}
	if len(env.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(env.Detail, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var items []struct {
		Msg string `json:"msg"`
		Loc []any  `json:"loc"`
	}
	if err := json.Unmarshal(env.Detail, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, it := range items {
			msg := strings.TrimSpace(it.Msg)
			if msg == "" {
				continue
			}
			if len(it.Loc) > 0 {
				locs := make([]string, 0, len(it.Loc))
				for _, l := range it.Loc {
					locs = append(locs, fmt.Sprint(l))
				}
				msg = strings.Join(locs, ".") + ": " + msg
			}
			parts = append(parts, msg)
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
