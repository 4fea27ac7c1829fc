package errors

import "errors"

// nonRetryableError marks an error whose job should skip the retry budget
// and move straight to the dead letter table.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string {
	return e.err.Error()
}

func (e *nonRetryableError) Unwrap() error {
	return e.err
}

// NonRetryable wraps err so the worker fails the job permanently regardless
// of remaining retries. Wrapping nil returns nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsNonRetryable reports whether err (or any error in its chain) was marked
// with NonRetryable. Validation and empty selection errors are always
// non-retryable because retrying cannot change their outcome.
func IsNonRetryable(err error) bool {
	if err == nil {
		return false
	}
	var marked *nonRetryableError
	if errors.As(err, &marked) {
		return true
	}
	return IsValidation(err) || IsEmptySelection(err)
}
