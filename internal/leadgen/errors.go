package leadgen

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a job or lead lookup misses
var ErrNotFound = errors.New("not found")

// ValidationError reports a rejected run request. It maps to a 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// UpstreamError reports a failure in an external dependency (source
// site or AI provider) that stopped the pipeline.
type UpstreamError struct {
	Upstream string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Upstream, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// PartialSourceFailure records sources that failed while others
// succeeded. The pipeline continues; the failure is reported in events
// and the summary, not as a job error.
type PartialSourceFailure struct {
	Failed    []string
	Succeeded []string
}

func (e *PartialSourceFailure) Error() string {
	return fmt.Sprintf("%d of %d sources failed: %v", len(e.Failed), len(e.Failed)+len(e.Succeeded), e.Failed)
}

// IsValidationError reports whether err is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
