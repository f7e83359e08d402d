package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUnavailable    = errors.New("remote service unavailable")
	ErrNotImplemented = errors.New("endpoint not implemented")
)

// StatusError is a non-2xx response. It unwraps to the sentinel matching its
// status code, if any.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code == http.StatusUnauthorized, e.Code == http.StatusForbidden:
		return ErrUnauthorized
	case e.Code == http.StatusMethodNotAllowed, e.Code == http.StatusNotImplemented:
		return ErrNotImplemented
	case e.Code >= 500:
		return ErrUnavailable
	}
	return nil
}
