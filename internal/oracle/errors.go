package oracle

import "errors"

var (
	// ErrOracleUnavailable is returned when the oracle could not be reached
	// or kept failing after all retries.
	ErrOracleUnavailable = errors.New("oracle unavailable")

	// ErrInvalidResponse is returned when the oracle answered with
	// something that is not the expected JSON document.
	ErrInvalidResponse = errors.New("invalid oracle response")

	// ErrRequestRejected is returned for non-retryable 4xx responses.
	ErrRequestRejected = errors.New("oracle rejected request")

	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("classification pool closed")
)
