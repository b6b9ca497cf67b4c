package result

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// StatusError is produced by the HTTP layer for any non-2xx response so
// classification can key off the status code.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// Classify maps a raw failure onto the error taxonomy. It is a pure
// function of the error's type and embedded status code.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden:
			return KindAuth
		case se.Status == http.StatusNotFound:
			return KindNotFound
		case se.Status >= 400:
			return KindApplication
		}
		return KindUnknown
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransport
	}
	return KindUnknown
}

// Record builds an ErrorRecord for err. Auth failures are catastrophic;
// everything else is recoverable unless the caller marks it otherwise.
func Record(err error) ErrorRecord {
	kind := Classify(err)
	return ErrorRecord{
		Kind:         kind,
		Message:      err.Error(),
		Catastrophic: kind == KindAuth,
		Raw:          err,
	}
}
