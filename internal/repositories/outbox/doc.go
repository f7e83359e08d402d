// Package outbox persists the append-only log of local mutations awaiting
// push (table sync_outbox).
//
// # Overview
//
// One Entry is appended per local mutation written with the pending flag. An
// entry references the mutated row by (table, record_id) and carries a JSON
// snapshot of the written fields. The push pipeline reads the latest
// unsynced entry of a row to decide the remote operation, then marks every
// entry up to that one as synced or error. Entries are never rewritten except
// for record_id, which follows a temporary id once the remote service assigns
// the permanent one.
//
// Synced entries are pruned after a retention window; pending and error
// entries are kept until they are pushed or their row disappears (schema
// rebuild, tenant switch).
package outbox
