package domain

import (
	"errors"
	"strconv"
)

// Domain errors for the relay.
var (
	// ErrQueueFull is returned when the delivery channel is at capacity.
	ErrQueueFull = errors.New("delivery channel is full")

	// ErrMalformedPayload is returned when a submission body cannot be read.
	ErrMalformedPayload = errors.New("submission body could not be read")

	// ErrPayloadTooLarge is returned when a submission exceeds the configured size limit.
	ErrPayloadTooLarge = errors.New("submission body exceeds size limit")

	// ErrRateLimited is returned when ingestion is over its configured rate.
	ErrRateLimited = errors.New("ingestion rate limit exceeded")

	// ErrDeliveryFailed is returned when a delivery attempt does not succeed.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrUnexpectedStatus is returned when the downstream answers with anything but 200.
	ErrUnexpectedStatus = errors.New("unexpected downstream status")
)

// StatusError carries the status code of a rejected delivery.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return "downstream responded with status " + strconv.Itoa(e.StatusCode)
}

// Is lets errors.Is match ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}
