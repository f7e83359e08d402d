package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/remote"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/store"
)

var pullOptions = store.BulkOptions{MarkSynced: true, PreserveUnsynced: true}

// pull fetches the tenant's changes since the given cursor (everything when
// since is nil) and applies them table by table in dependency order. The
// batched endpoint is tried first; servers without it are read entity by
// entity.
func (o *Orchestrator) pull(ctx context.Context, tenantID int64, since *time.Time) (PullStats, error) {
	resp, err := o.remote.Pull(ctx, remote.PullRequest{AziendaID: tenantID, UpdatedAfter: since})
	if errors.Is(err, remote.ErrNotImplemented) || errors.Is(err, remote.ErrNotFound) {
		o.logger.Info(ctx, "batched pull unavailable, falling back to per-entity pull")
		return o.pullPerEntity(ctx, tenantID, since == nil)
	}
	if err != nil {
		return PullStats{}, err
	}
	if resp.Error != "" {
		if len(resp.Tables) == 0 {
			return PullStats{}, fmt.Errorf("pull rejected: %s", resp.Error)
		}
		o.logger.Warn(ctx, "pull reported a partial failure", "error", resp.Error)
	}

	stats := PullStats{Batched: true}
	for _, e := range o.store.Registry().SyncOrder() {
		raw, ok := resp.Tables[e.Name]
		if !ok {
			continue
		}
		records, err := decodeTable(raw)
		if err != nil {
			o.logger.Warn(ctx, "skipping malformed table", "table", e.Name, "error", err)
			stats.Malformed++
			continue
		}
		o.apply(ctx, e, records, &stats)
	}

	o.logger.Info(ctx, "pull applied", "tables", stats.Tables, "applied", stats.Applied,
		"failed", stats.Failed, "skipped", stats.Skipped, "record_count", resp.RecordCount)
	return stats, nil
}

// pullPerEntity reads each collection endpoint with tenant filters. Entities
// scoped through a parent are filtered by the parent ids already present
// locally. Each entity keeps its own checkpoint.
func (o *Orchestrator) pullPerEntity(ctx context.Context, tenantID int64, full bool) (PullStats, error) {
	var stats PullStats
	for _, e := range o.store.Registry().SyncOrder() {
		q := url.Values{}
		switch {
		case e.IsTenant:
			q.Set(schema.ColID, strconv.FormatInt(tenantID, 10))
		case e.TenantColumn != "":
			q.Set(e.TenantColumn, strconv.FormatInt(tenantID, 10))
		case e.ScopeColumn != "":
			parents := o.store.IDs(ctx, e.ScopeParent(), nil)
			if len(parents) == 0 {
				continue
			}
			ids := make([]string, len(parents))
			for i, id := range parents {
				ids[i] = strconv.FormatInt(id, 10)
			}
			q.Set(e.ScopeColumn+"_in", strings.Join(ids, ","))
		default:
			o.logger.Warn(ctx, "entity has no tenant scope, not pulled", "table", e.Name)
			continue
		}

		checkpoint := common.MetaEntityCheckpointPrefix + e.Name
		if !full {
			if t, ok := o.store.MetaTime(ctx, checkpoint); ok {
				q.Set("updated_after", t.UTC().Format(time.RFC3339Nano))
			}
		}

		started := o.clock.Now()
		items, err := o.remote.List(ctx, e.Path(), q)
		if err != nil {
			if fatal(err) {
				return stats, err
			}
			o.logger.Warn(ctx, "entity pull failed", "table", e.Name, "error", err)
			stats.Malformed++
			continue
		}

		records := make([]store.Record, len(items))
		for i, it := range items {
			records[i] = store.Record(it)
		}
		o.apply(ctx, e, records, &stats)
		o.store.SetMetaTime(ctx, checkpoint, started)
	}
	return stats, nil
}

func (o *Orchestrator) apply(ctx context.Context, e *schema.Entity, records []store.Record, stats *PullStats) {
	stats.Tables++
	if len(records) == 0 {
		return
	}
	res := o.store.BulkUpsertWith(ctx, e.Name, records, pullOptions)
	stats.Applied += res.Applied
	stats.Failed += res.Failed
	stats.Skipped += res.Skipped
	stats.Deduplicated += res.Deduplicated
	if res.Failed > 0 {
		o.logger.Warn(ctx, "some pulled rows were rejected", "table", e.Name, "failed", res.Failed)
	}
}

// decodeTable accepts a JSON array of objects; anything else is malformed.
func decodeTable(raw json.RawMessage) ([]store.Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	records := make([]store.Record, 0, len(items))
	for i, it := range items {
		if it == nil {
			return nil, fmt.Errorf("element %d is not an object", i)
		}
		records = append(records, store.Record(it))
	}
	return records, nil
}
