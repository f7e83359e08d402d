// Package engine reconciles the local store with the remote service.
//
// An Orchestrator runs sync cycles one at a time, either on a timer or on
// demand. A cycle snapshots the mutable settings into a SyncContext, resolves
// the tenant the cache is bound to, pushes every pending row (parents before
// children, remapping temporary ids as the server assigns real ones) and then
// pulls canonical state back, either incrementally from the last checkpoint or
// in full when the cache is new or looks inconsistent.
package engine
