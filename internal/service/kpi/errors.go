package kpi

import (
	"errors"

	"github.com/ignite/kpi-processor/internal/batch"
)

// Sentinel errors for the KPI service layer.
var (
	// ErrInvalidRange is the only error a pipeline run returns.
	ErrInvalidRange = batch.ErrInvalidRange

	ErrUnknownChannel = errors.New("unrecognized medium or channel")
	ErrNotImplemented = errors.New("medium not implemented")
	ErrAllChannels    = errors.New("every channel failed")
)
