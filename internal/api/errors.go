package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned by bearer endpoints when no access token is available.
var ErrUnauthenticated = errors.New("not signed in")

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed: status code %d", e.StatusCode)
	}
	return fmt.Sprintf("api request failed: status code %d, message %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a 401 or 403 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

type errorResponse struct {
	Error  string          `json:"error"`
	Detail json.RawMessage `json:"detail"`
}

func handleApiError(res *http.Response, body []byte) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	return &APIError{StatusCode: res.StatusCode, Message: errorMessage(body)}
}

// errorMessage reads {"error": "..."} or {"detail": ...} and falls back to the raw body.
func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return strings.TrimSpace(string(body))
	}
	if er.Error != "" {
		return er.Error
	}
	if len(er.Detail) > 0 {
		var s string
		if err := json.Unmarshal(er.Detail, &s); err == nil {
			return s
		}
		return string(er.Detail)
	}
	return strings.TrimSpace(string(body))
}
