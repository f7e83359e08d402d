package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/config"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/logging"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/store"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/testutil"
)

// fakeServer records requests and answers the few endpoints the tests use.
type fakeServer struct {
	mu    sync.Mutex
	calls []string
	auth  []string
}

func (f *fakeServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls = append(f.calls, r.Method+" "+r.URL.Path)
		f.auth = append(f.auth, r.Header.Get(common.AuthorizationHeaderName))
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "POST /sedi":
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id": 900}`)
		case "POST /sync/pull":
			_, _ = io.WriteString(w, `{"tables": {"aziende": [{"id": 1, "nome": "Cascina Verde"}]}, "record_count": 1}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (f *fakeServer) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([]string(nil), f.auth...)
}

func testConfig(t *testing.T, serverURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ServerURL = serverURL
	cfg.DatabasePath = filepath.Join(t.TempDir(), "data", "regifarm.db")
	cfg.TenantID = 1
	cfg.AuthToken = "tok"
	cfg.DrainTimeout = 2 * time.Second
	cfg.RequestTimeout = 2 * time.Second
	return cfg
}

func testOptions() Options {
	return Options{Logger: logging.NopLogger{}, Clock: testutil.FixedClock()}
}

func TestInitialize_SyncThenDrainOnShutdown(t *testing.T) {
	srv := &fakeServer{}
	ts := httptest.NewServer(srv.handler(t))
	t.Cleanup(ts.Close)
	ctx := context.Background()
	cfg := testConfig(t, ts.URL)

	a, err := Initialize(ctx, cfg, testOptions())
	require.NoError(t, err)
	assert.True(t, a.Migration.Rebuilt)
	assert.Equal(t, 0, a.Migration.From)
	assert.Equal(t, schema.Version, a.Migration.To)

	res := a.Engine().TriggerSync(ctx)
	require.True(t, res.Success, res.Reason)
	assert.True(t, res.Full)
	assert.Equal(t, "Cascina Verde", a.Store().GetByID(ctx, schema.Aziende, 1)["nome"])

	_, ok := a.Store().Insert(ctx, "sedi", store.Record{"azienda_id": 1, "nome": "Nord"}, store.Pending)
	require.True(t, ok)
	require.NoError(t, a.Shutdown(ctx))

	calls, auth := srv.snapshot()
	assert.Equal(t, []string{"POST /sync/pull", "POST /sedi"}, calls)
	for _, h := range auth {
		assert.Equal(t, "Bearer tok", h)
	}

	// reopening keeps the schema and the reconciled row
	a, err = Initialize(ctx, cfg, testOptions())
	require.NoError(t, err)
	assert.False(t, a.Migration.Rebuilt)
	sede := a.Store().GetByID(ctx, "sedi", 900)
	require.NotNil(t, sede)
	assert.Equal(t, schema.StatusSynced, sede["sync_status"])
	assert.False(t, a.Engine().NeedsInitialSync(ctx))
	require.NoError(t, a.Shutdown(ctx))

	calls, _ = srv.snapshot()
	assert.Len(t, calls, 2, "nothing left to drain")
}

func TestSaveAuthToken_UsedByLaterRuns(t *testing.T) {
	srv := &fakeServer{}
	ts := httptest.NewServer(srv.handler(t))
	t.Cleanup(ts.Close)
	ctx := context.Background()
	cfg := testConfig(t, ts.URL)
	cfg.AuthToken = ""

	a, err := Initialize(ctx, cfg, testOptions())
	require.NoError(t, err)
	res := a.Engine().TriggerSync(ctx)
	assert.Equal(t, "missing auth token", res.Reason)

	require.NoError(t, a.SaveAuthToken(ctx, "saved-token"))
	require.NoError(t, a.Shutdown(ctx))

	a, err = Initialize(ctx, cfg, testOptions())
	require.NoError(t, err)
	res = a.Engine().TriggerSync(ctx)
	require.True(t, res.Success, res.Reason)
	require.NoError(t, a.Shutdown(ctx))

	_, auth := srv.snapshot()
	require.NotEmpty(t, auth)
	assert.Equal(t, "Bearer saved-token", auth[len(auth)-1])
}

func TestSaveAuthToken_RejectsExpiredJWT(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "http://127.0.0.1:1")
	a, err := Initialize(ctx, cfg, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(ctx) })

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": testutil.FixedClock().Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	assert.ErrorIs(t, a.SaveAuthToken(ctx, expired), common.ErrTokenExpired)
	_, ok := a.Store().MetaString(ctx, common.MetaAuthToken)
	assert.False(t, ok)
}

func TestInitialize_BadArchiveConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Archive.Type = "tape"

	a, err := Initialize(context.Background(), cfg, testOptions())
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Contains(t, err.Error(), "tape")
}
