package tracker

import (
	trackererrors "github.com/23skdu/memtracer/internal/errors"
)

// IsConsistencyViolation reports whether err is a fatal bookkeeping
// violation such as a double release or a kind mismatch.
func IsConsistencyViolation(err error) bool {
	return trackererrors.IsType(err, trackererrors.ErrorTypeConsistency)
}

// IsExhausted reports whether err is an allocation failure.
func IsExhausted(err error) bool {
	return trackererrors.IsType(err, trackererrors.ErrorTypeExhaustion)
}

// IsLifecycle reports whether err was caused by using a tracker after Close.
func IsLifecycle(err error) bool {
	return trackererrors.IsType(err, trackererrors.ErrorTypeLifecycle)
}
