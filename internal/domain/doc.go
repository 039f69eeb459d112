// Package domain holds the KPI processor's value types: raw Marketing Cloud
// events, date windows, decoded campaign metadata, KPI records, provider
// summaries and the static KPI code table.
//
// Nothing here touches a database or the network, and nothing here imports
// another internal package. Services, repositories and handlers all speak
// in these types.
package domain
