package domain

import "time"

// DeliveryResult represents the outcome of one delivery attempt.
type DeliveryResult struct {
	Success    bool
	StatusCode int
	Error      error
	Duration   time.Duration
}

// NewSuccessResult creates a successful delivery result.
func NewSuccessResult(statusCode int, duration time.Duration) DeliveryResult {
	return DeliveryResult{
		Success:    true,
		StatusCode: statusCode,
		Duration:   duration,
	}
}

// NewFailureResult creates a failed delivery result.
// statusCode is 0 when no response was received.
func NewFailureResult(statusCode int, err error, duration time.Duration) DeliveryResult {
	return DeliveryResult{
		StatusCode: statusCode,
		Error:      err,
		Duration:   duration,
	}
}

// FailureReason classifies a failed result for metrics and logs.
func (r DeliveryResult) FailureReason() string {
	switch {
	case r.Success:
		return ""
	case r.StatusCode >= 500:
		return "server_error"
	case r.StatusCode >= 400:
		return "client_error"
	case r.StatusCode > 0:
		return "unexpected_status"
	case r.Error != nil:
		return classifyError(r.Error)
	default:
		return "unknown"
	}
}
