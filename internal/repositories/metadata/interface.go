package metadata

import (
	"context"
)

// Repository is the key-value store of sync checkpoints (schema version,
// last pull cursor, initial-sync flags, temporary id counter).
type Repository interface {
	// Get returns the value of key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	List(ctx context.Context) (map[string]string, error)
	Clear(ctx context.Context) error
}
