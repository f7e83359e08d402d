// Package schema is the entity schema registry of the local cache.
//
// # Overview
//
// A Registry declares, for every domain entity, its column set, its foreign
// keys, how it is scoped to the active tenant, and whether it takes part in
// synchronization. The registry carries a single monotonically increasing
// Version; a mismatch with the version stored in the database triggers the
// destructive rebuild performed by the migrator package.
//
// Entities are kept in dependency order (parents before children). Push and
// pull both walk them in that order so that foreign keys always resolve.
//
// Every entity table additionally carries the sync columns declared in
// SyncColumns: deleted_at (omitted for local-only entities), sync_status,
// synced_at and local_updated_at.
package schema
