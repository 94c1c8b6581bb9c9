// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Batch lifecycle errors.
var (
	// ErrNoPendingBatch indicates no batch is waiting for processing.
	// This is an expected idle state, not a failure.
	ErrNoPendingBatch = errors.New("no pending batch")

	// ErrBatchClaimed indicates another invocation claimed the batch first.
	ErrBatchClaimed = errors.New("batch already claimed")

	// ErrBatchNotPending indicates an explicitly targeted batch is not in
	// the pending state.
	ErrBatchNotPending = errors.New("batch is not pending")

	// ErrBatchNotFound indicates a batch could not be found.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrNoMessages indicates a batch could not be created because the
	// selection contained no messages.
	ErrNoMessages = errors.New("no messages to batch")
)

// Entity resolution errors.
var (
	// ErrGroupNotFound indicates a group could not be found.
	ErrGroupNotFound = errors.New("group not found")
)

// Gateway errors.
var (
	// ErrGatewayStatus indicates the analysis service returned a non-2xx status.
	ErrGatewayStatus = errors.New("analysis service returned unexpected status")

	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")
)

// Delivery errors.
var (
	// ErrUnknownDeliveryType indicates a delivery item with an unsupported type.
	ErrUnknownDeliveryType = errors.New("unknown delivery type")

	// ErrSenderStatus indicates a delivery relay returned a non-2xx status.
	ErrSenderStatus = errors.New("delivery relay returned unexpected status")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
