// Package kpi turns raw Marketing Cloud engagement events into KPI records.
//
// A Processor splits the requested range into day windows (package batch)
// and runs them one after another. Inside a window every channel aggregator
// runs concurrently; each aggregator fetches its events, groups and counts
// them, resolves campaign identity and writes one batch of records per key.
//
// Failures are contained at the narrowest level that can absorb them:
//
//	key     -> logged, key skipped, siblings continue
//	channel -> logged, other channels of the window continue
//	window  -> logged, next window still runs
//
// Only an invalid date range is returned to the caller.
package kpi
