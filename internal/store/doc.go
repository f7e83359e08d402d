// Package store is the local relational cache of the sync engine.
//
// # Overview
//
// Store wraps every registry entity table with generic CRUD (Select,
// GetByID, Insert, Update, SoftDelete, Count) and BulkUpsert, plus a few
// entity-shaped queries used by the orchestrator (tenant lookup, tenant purge,
// pending rows, temporary id reassignment, the consistency probe).
//
// Writes made with the default WriteOptions are "pending": the row gets
// sync_status = pending and local_updated_at = now, and an outbox entry is
// appended in the same transaction. Writes with SkipOutbox are considered
// already reconciled and are stored as given.
//
// Rows created locally without an id receive a temporary negative id from a
// counter persisted in sync_metadata; the push pipeline later swaps it for the
// id assigned by the remote service (see ReassignID).
//
// # Failure semantics
//
// Store never returns storage errors to its callers. A failing call is logged
// and degrades to an empty, false or zero result, so a single bad query
// cannot break the reconciliation loop. Filters naming unknown columns or
// carrying unsupported values (maps, slices) are dropped with a warning.
package store
