package lib

// wrappedError joins a sentinel error with the underlying cause so that
// errors.Is matches either of them.
type wrappedError struct {
	err        error
	wrappedErr error
}

func (e *wrappedError) Error() string {
	return e.err.Error() + ": " + e.wrappedErr.Error()
}

func (e *wrappedError) Is(target error) bool {
	return e.err == target
}

func (e *wrappedError) Unwrap() error {
	return e.wrappedErr
}

func WrapError(outer, inner error) error {
	return &wrappedError{err: outer, wrappedErr: inner}
}
