package browser

import (
	"context"
	"errors"
	"strings"

	"browsermcp/internal/domain"
)

// Class partitions errors by how the caller should react to them.
type Class int

const (
	// ClassTransient errors are worth retrying: DNS hiccups, connection
	// resets, navigation timeouts.
	ClassTransient Class = iota
	// ClassFatal errors abort immediately: crashed session, closed driver,
	// anything not recognizably transient.
	ClassFatal
	// ClassValidation errors are caller mistakes surfaced before any
	// browser work happens.
	ClassValidation
	// ClassSecurity errors are blocked requests, never retried.
	ClassSecurity
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassValidation:
		return "validation"
	case ClassSecurity:
		return "security"
	default:
		return "fatal"
	}
}

// transientPatterns match driver error text for failures that tend to clear
// on retry. Matching is case-insensitive substring.
var transientPatterns = []string{
	"net::err_name_not_resolved",
	"net::err_connection",
	"net::err_timed_out",
	"net::err_network",
	"net::err_internet_disconnected",
	"dns",
	"no such host",
	"name resolution",
	"connection refused",
	"connection reset",
	"timeout",
	"timed out",
	"deadline exceeded",
	"temporarily unavailable",
	"try again",
}

// Classify assigns an error to a Class. Known sentinels are matched first;
// otherwise the decision is made purely from the error text. Unrecognized
// errors classify as fatal so they are never retried blindly.
func Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownEngine):
		return ClassValidation
	case errors.Is(err, domain.ErrSecurityBlocked):
		return ClassSecurity
	case errors.Is(err, domain.ErrSessionNotReady),
		errors.Is(err, domain.ErrSessionFailed),
		errors.Is(err, domain.ErrStartup),
		errors.Is(err, context.Canceled):
		return ClassFatal
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return ClassTransient
		}
	}
	return ClassFatal
}
