// Package adrive provides an HTTP client for the Aliyun Drive (alipan) web
// API with automatic retry, backoff, and error classification, plus the
// typed share, file, and batch operations built on it.
package adrive

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for response classification.
// Use errors.Is(err, adrive.ErrUnauthorized) to check.
var (
	ErrUnauthorized      = errors.New("adrive: authorization expired or invalid")
	ErrDriveLocked       = errors.New("adrive: drive locked, manual unlock required")
	ErrRequestFailed     = errors.New("adrive: request failed")
	ErrMalformedResponse = errors.New("adrive: malformed response")
)

// codeDriveLocked is the error code the service returns in a 403 body when
// the account's drive has been locked by risk control.
const codeDriveLocked = "ForbiddenDriveLocked"

// maxBodyChars bounds how much of a response body is embedded in errors.
const maxBodyChars = 500

// redactedToken replaces the bearer token wherever it would appear in text.
const redactedToken = "[REDACTED]"

const unauthorizedHelp = `the access_token has probably expired or the session was logged out.
Update access_token in the config file:
  1) open https://www.alipan.com/ and sign in
  2) open the browser devtools (F12) -> Network, pick any request to api.alipan.com or api.aliyundrive.com
  3) copy the token from the "Authorization: Bearer <token>" request header (only <token>, without "Bearer")
  4) paste it into the access_token field`

const lockedHelp = `the drive is locked (ForbiddenDriveLocked); write APIs (create folder, save) are refused until it is unlocked.
To unlock:
  1) open https://www.alipan.com/ and sign in
  2) the home page or file list shows a "drive locked" notice; follow it to unlock
  3) run alipan-save again`

// APIError wraps a sentinel error with the request, HTTP status, service
// error code, and a truncated, token-free response body.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string // service error code from the JSON body, if any
	Body       string // at most maxBodyChars, bearer token removed
	Attempts   int
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	switch {
	case errors.Is(e.Err, ErrDriveLocked):
		return fmt.Sprintf("%v: %s\nresponse: %s", e.Err, lockedHelp, e.Body)
	case errors.Is(e.Err, ErrUnauthorized):
		return fmt.Sprintf("%v (HTTP %d): %s\nresponse: %s", e.Err, e.StatusCode, unauthorizedHelp, e.Body)
	case e.StatusCode == 0:
		return fmt.Sprintf("%v: %s %s after %d attempts", e.Err, e.Method, e.Path, e.Attempts)
	default:
		return fmt.Sprintf("%v: %s %s (HTTP %d), response: %s", e.Err, e.Method, e.Path, e.StatusCode, e.Body)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// serviceError is the error envelope the service returns on failures.
type serviceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseErrorCode extracts the "code" field from an error body.
// Returns "" when the body is not a JSON object or carries no code.
func parseErrorCode(body []byte) string {
	var se serviceError
	if err := json.Unmarshal(body, &se); err != nil {
		return ""
	}

	return se.Code
}

// classifyStatus maps a non-2xx status code and its body to a sentinel.
// Returns nil for statuses that should be retried.
func classifyStatus(code int, body []byte) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		if parseErrorCode(body) == codeDriveLocked {
			return ErrDriveLocked
		}

		return ErrUnauthorized
	case isRetryable(code):
		return nil
	default:
		return ErrRequestFailed
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// sanitizeBody truncates body to maxBodyChars runes and removes every
// occurrence of secret. Safe to embed in errors and logs.
func sanitizeBody(body []byte, secret string) string {
	s := string(body)
	if secret != "" {
		s = strings.ReplaceAll(s, secret, redactedToken)
	}

	runes := []rune(s)
	if len(runes) > maxBodyChars {
		return string(runes[:maxBodyChars])
	}

	return s
}
