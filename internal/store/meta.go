package store

import (
	"context"
	"strconv"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
)

// Typed accessors over the sync metadata table. Failures are logged and read
// as absent.

func (s *Store) MetaString(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.metadata.Get(ctx, key)
	if err != nil {
		s.logger.Error(ctx, "metadata read failed", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

func (s *Store) MetaBool(ctx context.Context, key string) bool {
	v, ok := s.MetaString(ctx, key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func (s *Store) MetaInt(ctx context.Context, key string) (int64, bool) {
	v, ok := s.MetaString(ctx, key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		s.logger.Warn(ctx, "metadata value is not an integer", "key", key, "value", v)
		return 0, false
	}
	return n, true
}

func (s *Store) MetaTime(ctx context.Context, key string) (time.Time, bool) {
	v, ok := s.MetaString(ctx, key)
	if !ok || v == "" {
		return time.Time{}, false
	}
	t, err := common.ParseTime(v)
	if err != nil {
		s.logger.Warn(ctx, "metadata value is not a timestamp", "key", key, "value", v)
		return time.Time{}, false
	}
	return t, true
}

func (s *Store) SetMeta(ctx context.Context, key, value string) bool {
	if err := s.metadata.Set(ctx, key, value); err != nil {
		s.logger.Error(ctx, "metadata write failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) SetMetaBool(ctx context.Context, key string, v bool) bool {
	return s.SetMeta(ctx, key, strconv.FormatBool(v))
}

func (s *Store) SetMetaInt(ctx context.Context, key string, v int64) bool {
	return s.SetMeta(ctx, key, strconv.FormatInt(v, 10))
}

func (s *Store) SetMetaTime(ctx context.Context, key string, t time.Time) bool {
	return s.SetMeta(ctx, key, common.FormatTime(t))
}

// DeleteMeta removes key; a missing key is not an error.
func (s *Store) DeleteMeta(ctx context.Context, key string) bool {
	if err := s.metadata.Delete(ctx, key); err != nil {
		s.logger.Error(ctx, "metadata delete failed", "key", key, "error", err)
		return false
	}
	return true
}

// ClearCheckpoints drops last_sync and every per-entity pull checkpoint, so
// the next pull starts from scratch.
func (s *Store) ClearCheckpoints(ctx context.Context) bool {
	if !s.DeleteMeta(ctx, common.MetaLastSync) {
		return false
	}
	if err := s.metadata.DeletePrefix(ctx, common.MetaEntityCheckpointPrefix); err != nil {
		s.logger.Error(ctx, "checkpoint reset failed", "error", err)
		return false
	}
	return true
}
