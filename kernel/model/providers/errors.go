package providers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/FireFreezer630/Wisdom-Core/kernel/model"
)

var (
	// ErrTransport is matched by every terminal transport failure.
	ErrTransport = errors.New("providers: transport failure")
	// ErrCanceled is matched when the caller's context stops a request.
	ErrCanceled = model.ErrCanceled
)

// TransportError is returned once the retry budget is spent. It carries the
// last failure's status and message.
type TransportError struct {
	Attempts   int
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "providers: transport failure"
	}
	var b strings.Builder
	b.WriteString("providers: request failed")
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": http status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// RateLimited reports whether the last failure was a 429.
func (e *TransportError) RateLimited() bool {
	return e != nil && e.StatusCode == http.StatusTooManyRequests
}

// IsTransportError reports whether err is a terminal transport failure and
// returns it.
func IsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// statusError drains and closes resp, returning the failure it describes.
func statusError(resp *http.Response) *TransportError {
	if resp == nil {
		return &TransportError{Message: "empty http response"}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &TransportError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
	}
}
