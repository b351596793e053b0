package risk

import (
	"errors"
	"fmt"
)

// ErrInsufficientData signals that a rolling calculation has fewer
// observations than its window. Callers skip, they do not fail.
var ErrInsufficientData = errors.New("insufficient data for rolling window")

// ErrZeroVariance signals a degenerate benchmark with no variance,
// for which beta is undefined.
var ErrZeroVariance = errors.New("zero benchmark variance")

// ValidationError reports invalid calculator inputs. It aborts only the
// computation in progress.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid portfolio inputs: " + e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
