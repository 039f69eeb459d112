// Package metrics rolls KPI records up into one MetricsSummary per provider.
//
// The same formula serves three scopes: every provider (general), a single
// provider, and the KPI rows of one date window. Summaries are upserted by
// provider id. Writes for the same provider are serialized through a
// distlock.Locker; a single-provider recompute holds the lock from its KPI
// read to its write.
package metrics
