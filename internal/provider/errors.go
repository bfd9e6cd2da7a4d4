package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProviderTimeout    = errors.New("provider timed out")
	ErrMalformedResponse  = errors.New("malformed provider response")
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// ProviderError is a non-timeout failure from a single backend.
type ProviderError struct {
	Provider   string
	StatusCode int
	Reason     string
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Class names the kind of failure without any upstream-supplied text, which
// may echo request details or a masked key.
func (e *ProviderError) Class() string {
	switch {
	case errors.Is(e.Err, ErrMalformedResponse):
		return "malformed response"
	case e.StatusCode != 0:
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	default:
		return "request failed"
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Failure records why one provider was skipped or failed. Reason is safe to
// return to callers.
type Failure struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// AllProvidersFailedError lists a reason for every configured provider.
type AllProvidersFailedError struct {
	Failures []Failure
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Provider+": "+f.Reason)
	}
	return fmt.Sprintf("all providers failed (%s)", strings.Join(parts, "; "))
}

func (e *AllProvidersFailedError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}
