package metrics

import "errors"

// Sentinel errors for the metrics service layer.
var (
	ErrNotFound        = errors.New("metrics summary not found")
	ErrInvalidProvider = errors.New("provider id is required")
)
