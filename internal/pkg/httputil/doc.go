// Package httputil writes the JSON bodies of the KPI API. Errors share one
// envelope carrying a machine-readable code and the chi request id so a
// failed call can be matched to its log lines.
package httputil
