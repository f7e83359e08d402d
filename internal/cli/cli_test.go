package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/app"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/config"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/engine"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/logging"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/outbox"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/store"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/testutil"
)

type harness struct {
	db     string
	server string
	stdin  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{db: filepath.Join(t.TempDir(), "regifarm.db"), server: "http://127.0.0.1:1"}
}

func (h *harness) options() app.Options {
	return app.Options{Logger: logging.NopLogger{}, Clock: testutil.FixedClock()}
}

func (h *harness) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd(h.options())
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(h.stdin))
	root.SetArgs(append([]string{"--db", h.db, "--server", h.server}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// seed writes rows through the engine the way the host application would.
func (h *harness) seed(t *testing.T, fn func(*app.App)) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabasePath = h.db
	cfg.ServerURL = h.server
	a, err := app.Initialize(context.Background(), cfg, h.options())
	require.NoError(t, err)
	fn(a)
	require.NoError(t, a.Close())
}

func pullServer(t *testing.T, wantAuth string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+wantAuth, r.Header.Get(common.AuthorizationHeaderName))
		if r.URL.Path != "/sync/pull" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"tables": {"aziende": [{"id": 1, "nome": "Cascina Verde"}]}, "record_count": 1}`)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out, _, err := h.run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "regifarm-sync "+Version+"\n", out)
}

func TestLoginThenSync(t *testing.T) {
	h := newHarness(t)
	h.server = pullServer(t, "secret-token").URL

	out, _, err := h.run(t, "login", "--token", "secret-token")
	require.NoError(t, err)
	assert.Equal(t, "token saved\n", out)

	out, progress, err := h.run(t, "--tenant", "1", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "full sync of azienda 1 completed")
	assert.Contains(t, out, "pull: 1 applied")
	assert.Contains(t, progress, "[push] syncing")

	out, _, err = h.run(t, "--tenant", "1", "--json", "sync")
	require.NoError(t, err)
	var res engine.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Success)
	assert.False(t, res.Full)
	assert.Equal(t, int64(1), res.TenantID)
}

func TestLogin_ReadsTokenFromStdin(t *testing.T) {
	h := newHarness(t)
	h.server = pullServer(t, "piped-token").URL
	h.stdin = "piped-token\n"

	_, prompt, err := h.run(t, "login")
	require.NoError(t, err)
	assert.Contains(t, prompt, "Auth token:")

	_, _, err = h.run(t, "--tenant", "1", "sync")
	require.NoError(t, err)
}

func TestLogin_EmptyToken(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "login")
	require.Error(t, err)
	assert.Equal(t, ExitUserError, ExitCode(err))
}

func TestSync_FailureExitCode(t *testing.T) {
	h := newHarness(t)
	h.seed(t, func(a *app.App) {
		_, ok := a.Store().Insert(context.Background(), "aziende", store.Record{"id": 1, "nome": "Azienda"}, store.Reconciled)
		require.True(t, ok)
	})

	out, _, err := h.run(t, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitSysError, ExitCode(err))
	assert.Contains(t, out, "sync failed: missing auth token")
}

func TestStatusAndOutbox(t *testing.T) {
	h := newHarness(t)
	h.seed(t, func(a *app.App) {
		ctx := context.Background()
		_, ok := a.Store().Insert(ctx, "aziende", store.Record{"id": 1, "nome": "Azienda"}, store.Reconciled)
		require.True(t, ok)
		_, ok = a.Store().Insert(ctx, "sedi", store.Record{"azienda_id": 1, "nome": "Nord"}, store.Pending)
		require.True(t, ok)
	})

	out, _, err := h.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "pending changes:    1")
	assert.Contains(t, out, "last sync:          never")
	assert.Contains(t, out, "sedi")

	out, _, err = h.run(t, "--json", "status")
	require.NoError(t, err)
	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, float64(1), rep["pending_outbox"])
	assert.Equal(t, true, rep["needs_initial_sync"])

	out, _, err = h.run(t, "--json", "outbox", "--status", "pending")
	require.NoError(t, err)
	var entries []outbox.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "sedi", entries[0].Table)
	assert.Equal(t, outbox.OpInsert, entries[0].Operation)

	out, _, err = h.run(t, "outbox", "--status", "error")
	require.NoError(t, err)
	assert.Equal(t, "outbox is empty\n", out)

	_, _, err = h.run(t, "outbox", "--status", "lost")
	require.Error(t, err)
	assert.Equal(t, ExitUserError, ExitCode(err))
}

func TestReset(t *testing.T) {
	h := newHarness(t)
	out, _, err := h.run(t, "reset", "--purge")
	require.NoError(t, err)
	assert.Equal(t, "sync state reset\n", out)
}

func TestInvalidConfig(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "--archive", "tape", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive.type")
}
