package common

// Well-known keys in the sync metadata table.
const (
	MetaSchemaVersion        = "schema_version"
	MetaLastSync             = "last_sync"
	MetaInitialSyncCompleted = "initial_sync_completed"
	MetaInitialSyncAzienda   = "initial_sync_azienda"
	MetaNextTempID           = "next_temp_id"
	MetaAuthToken            = "auth_token"

	// MetaEntityCheckpointPrefix prefixes per-entity pull checkpoints used by
	// the per-entity pull fallback, e.g. "last_sync:animali".
	MetaEntityCheckpointPrefix = "last_sync:"
)

// Header names used on outbound requests to the remote service.
const (
	AuthorizationHeaderName = "Authorization"
	RequestIDHeaderName     = "X-Request-ID"
)

// TimeLayout is the fixed-width UTC layout used for every timestamp persisted
// by the local store, so that text comparison matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"
