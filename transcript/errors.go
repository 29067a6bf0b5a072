package transcript

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is wrapped by every validation failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUpstream matches any UpstreamError.
	ErrUpstream = errors.New("upstream engine failure")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// UpstreamError carries a failure reported by an ASR or diarization engine.
// The engine's error is kept intact and reachable through Unwrap.
type UpstreamError struct {
	Engine string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Engine, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Upstream wraps err as an UpstreamError for engine. A nil err stays nil.
func Upstream(engine string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Engine: engine, Err: err}
}
