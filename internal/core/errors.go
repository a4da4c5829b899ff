package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// PermanentError marks a download failure that retrying cannot fix: the
// remote resource is gone, forbidden, or unparseable. Items that fail
// permanently are reported with the reason and left unmarked in history so
// a future run can revisit them if the content reappears.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError with the given reason.
// err may be nil when the reason alone describes the failure.
func Permanent(reason string, err error) *PermanentError {
	return &PermanentError{Reason: reason, Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// FailureReason extracts a human-readable reason string from a download
// error, preferring the specific reason of a PermanentError.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return err.Error()
}

// transientPatterns are error-text fragments that indicate a failure worth
// retrying: the remote side may recover on the next attempt.
var transientPatterns = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"temporary failure",
	"network is unreachable",
	"i/o timeout",
	"too many requests",
}

// IsTransient reports whether err looks like a failure worth retrying.
// Permanent errors are never transient regardless of their message.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
