package generation

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrQuotaExceeded is returned by providers when the backend signals a quota limit.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrNotConfigured is returned by providers missing credentials or a model.
	ErrNotConfigured = errors.New("capability not configured")
)

// StatusError carries an HTTP-like status code from a provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return "HTTP " + strconv.Itoa(e.Code) + ": " + body
}

// Classify maps a provider error onto a Status. Quota is recognised from
// ErrQuotaExceeded, a 429 StatusError, or RESOURCE_EXHAUSTED / 429 markers in
// the message of errors from SDKs that do not expose typed codes.
func Classify(err error) Status {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return StatusQuotaExceeded
	}
	if errors.Is(err, ErrNotConfigured) {
		return StatusNotConfigured
	}
	var se *StatusError
	if errors.As(err, &se) && se.Code == 429 {
		return StatusQuotaExceeded
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTransient
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "error 429") ||
		strings.Contains(msg, "status code: 429") || strings.Contains(msg, "http 429") {
		return StatusQuotaExceeded
	}
	return StatusTransient
}
