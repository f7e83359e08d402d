package store

import (
	"context"
	"testing"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaHelpers(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	assert.False(t, s.MetaBool(ctx, common.MetaInitialSyncCompleted))
	require.True(t, s.SetMetaBool(ctx, common.MetaInitialSyncCompleted, true))
	assert.True(t, s.MetaBool(ctx, common.MetaInitialSyncCompleted))

	_, ok := s.MetaInt(ctx, common.MetaInitialSyncAzienda)
	assert.False(t, ok)
	require.True(t, s.SetMetaInt(ctx, common.MetaInitialSyncAzienda, 42))
	n, ok := s.MetaInt(ctx, common.MetaInitialSyncAzienda)
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	require.True(t, s.SetMetaTime(ctx, common.MetaLastSync, at))
	got, ok := s.MetaTime(ctx, common.MetaLastSync)
	require.True(t, ok)
	assert.True(t, at.Equal(got))

	require.True(t, s.SetMeta(ctx, common.MetaLastSync, "garbage"))
	_, ok = s.MetaTime(ctx, common.MetaLastSync)
	assert.False(t, ok)
}

func TestClearCheckpoints(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	require.True(t, s.SetMetaTime(ctx, common.MetaLastSync, time.Now()))
	require.True(t, s.SetMetaTime(ctx, common.MetaEntityCheckpointPrefix+schema.Animali, time.Now()))
	require.True(t, s.SetMetaInt(ctx, common.MetaNextTempID, -4))

	require.True(t, s.ClearCheckpoints(ctx))

	_, ok := s.MetaString(ctx, common.MetaLastSync)
	assert.False(t, ok)
	_, ok = s.MetaString(ctx, common.MetaEntityCheckpointPrefix+schema.Animali)
	assert.False(t, ok)
	n, ok := s.MetaInt(ctx, common.MetaNextTempID)
	require.True(t, ok)
	assert.Equal(t, int64(-4), n)
}

func TestListAnimaliBySedeAndTenantIDs(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	seedTenant(t, s, 1)
	seedTenant(t, s, 3)

	for _, r := range []Record{
		{"id": 1, "azienda_id": 1, "sede_id": 5, "auricolare": "IT9"},
		{"id": 2, "azienda_id": 1, "sede_id": 5, "auricolare": "IT3"},
		{"id": 3, "azienda_id": 1, "sede_id": 6, "auricolare": "IT1"},
	} {
		_, ok := s.Insert(ctx, schema.Animali, r, Reconciled)
		require.True(t, ok)
	}

	got := s.ListAnimaliBySede(ctx, 5)
	require.Len(t, got, 2)
	assert.Equal(t, "IT3", got[0]["auricolare"])
	assert.Equal(t, []int64{1, 3}, s.TenantIDs(ctx))
}
