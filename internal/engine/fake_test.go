package engine

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/remote"
)

// fakeRemote is an in-memory stand-in for the remote service. Rows are kept
// per entity name; ids are assigned from nextID upwards.
type fakeRemote struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]map[int64]map[string]any
	calls  []string

	createErr map[string]error
	updateErr map[string]error
	deleteErr map[string]error

	pullErr  error
	pullResp *remote.PullResponse
	pulls    []remote.PullRequest

	listErr map[string]error
	lists   []string
	tokens  []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nextID:    500,
		rows:      make(map[string]map[int64]map[string]any),
		createErr: make(map[string]error),
		updateErr: make(map[string]error),
		deleteErr: make(map[string]error),
		listErr:   make(map[string]error),
	}
}

func entityOf(path string) string {
	return strings.ReplaceAll(strings.Trim(path, "/"), "-", "_")
}

func (f *fakeRemote) record(ctx context.Context, call string) {
	f.calls = append(f.calls, call)
	f.tokens = append(f.tokens, remote.AccessToken(ctx))
}

func (f *fakeRemote) put(table string, row map[string]any) {
	if f.rows[table] == nil {
		f.rows[table] = make(map[int64]map[string]any)
	}
	id, _ := row["id"].(int64)
	f.rows[table][id] = row
}

func (f *fakeRemote) Create(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "POST "+endpoint)
	if err := f.createErr[endpoint]; err != nil {
		return nil, err
	}
	f.nextID++
	row := map[string]any{}
	for k, v := range payload {
		row[k] = v
	}
	row["id"] = f.nextID
	f.put(entityOf(endpoint), row)
	return map[string]any{"id": json.Number(itoa(f.nextID))}, nil
}

func (f *fakeRemote) Update(ctx context.Context, endpoint string, id int64, payload map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "PUT "+endpoint+"/"+itoa(id))
	if err := f.updateErr[endpoint]; err != nil {
		return nil, err
	}
	row, ok := f.rows[entityOf(endpoint)][id]
	if !ok {
		return nil, remote.ErrNotFound
	}
	for k, v := range payload {
		row[k] = v
	}
	return row, nil
}

func (f *fakeRemote) Delete(ctx context.Context, endpoint string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "DELETE "+endpoint+"/"+itoa(id))
	if err := f.deleteErr[endpoint]; err != nil {
		return err
	}
	if _, ok := f.rows[entityOf(endpoint)][id]; !ok {
		return remote.ErrNotFound
	}
	delete(f.rows[entityOf(endpoint)], id)
	return nil
}

func (f *fakeRemote) List(ctx context.Context, endpoint string, query url.Values) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "GET "+endpoint)
	f.lists = append(f.lists, endpoint+"?"+query.Encode())
	if err := f.listErr[endpoint]; err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, row := range f.rows[entityOf(endpoint)] {
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeRemote) Pull(ctx context.Context, req remote.PullRequest) (*remote.PullResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(ctx, "POST /sync/pull")
	f.pulls = append(f.pulls, req)
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	if f.pullResp != nil {
		return f.pullResp, nil
	}
	resp := &remote.PullResponse{Tables: make(map[string]json.RawMessage)}
	for table, rows := range f.rows {
		list := make([]map[string]any, 0, len(rows))
		for id, r := range rows {
			if table == "aziende" && id != req.AziendaID {
				continue
			}
			if az, ok := r["azienda_id"].(int64); ok && az != req.AziendaID {
				continue
			}
			list = append(list, r)
		}
		b, _ := json.Marshal(list)
		resp.Tables[table] = b
		resp.RecordCount += len(list)
	}
	return resp, nil
}

func (f *fakeRemote) callsMatching(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRemote) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pulls)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
