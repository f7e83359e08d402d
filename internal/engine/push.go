package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/remote"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/repositories/outbox"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/store"
)

// Columns the server maintains itself; never sent on push.
var serverOwned = map[string]bool{"created_at": true, schema.ColUpdatedAt: true}

// fatal reports whether err makes the rest of the cycle pointless: the
// credentials were refused or the service could not be reached at all.
// The row that hit it is still marked error. A 5xx answer for one row only
// fails that row.
func fatal(err error) bool {
	if errors.Is(err, remote.ErrUnauthorized) {
		return true
	}
	var se *remote.StatusError
	return errors.Is(err, remote.ErrUnavailable) && !errors.As(err, &se)
}

// push sends every pending or failed row, entity by entity in dependency
// order. Per-row failures are recorded on the row and its outbox entries and
// do not stop the phase.
func (o *Orchestrator) push(ctx context.Context, ids *IDMap) (PushStats, error) {
	var stats PushStats
	for _, e := range o.store.Registry().SyncOrder() {
		for _, row := range o.store.PendingRows(ctx, e.Name) {
			if err := o.pushRow(ctx, e, row, ids, &stats); err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}

func (o *Orchestrator) pushRow(ctx context.Context, e *schema.Entity, row store.Record, ids *IDMap, stats *PushStats) error {
	id, ok := row.ID()
	if !ok {
		o.logger.Warn(ctx, "pending row without id", "table", e.Name)
		return nil
	}
	seen := row[schema.ColLocalUpdatedAt]

	entry, err := o.store.Outbox().LatestUnsynced(ctx, e.Name, id)
	if err != nil {
		o.logger.Error(ctx, "outbox lookup failed", "table", e.Name, "id", id, "error", err)
		return nil
	}

	temp := store.IsTemporaryID(id)
	var upTo int64
	op := outbox.OpUpdate
	switch {
	case entry != nil:
		upTo, op = entry.ID, entry.Operation
	case temp:
		op = outbox.OpInsert
	}
	if row[schema.ColDeletedAt] != nil {
		op = outbox.OpDelete
	} else if temp {
		op = outbox.OpInsert
	}

	if op == outbox.OpDelete && temp {
		o.logger.Debug(ctx, "never-pushed row deleted locally", "table", e.Name, "id", id)
		o.markPushed(ctx, e, id, seen, upTo)
		stats.Converged++
		return nil
	}

	var payload map[string]any
	if op != outbox.OpDelete {
		if payload, err = buildPayload(e, row, ids); err != nil {
			o.markFailed(ctx, e, id, upTo, err)
			stats.Failed++
			return nil
		}
	}

	var counter *int
	switch {
	case op == outbox.OpDelete:
		err = o.remote.Delete(ctx, e.Path(), id)
		if errors.Is(err, remote.ErrNotFound) {
			err = nil
		}
		counter = &stats.Deleted
	case temp:
		id, err = o.createRemote(ctx, e, id, payload, ids, stats)
		counter = &stats.Created
	default:
		_, err = o.remote.Update(ctx, e.Path(), id, payload)
		counter = &stats.Updated
		if errors.Is(err, remote.ErrNotFound) {
			o.logger.Info(ctx, "row missing remotely, recreating", "table", e.Name, "id", id)
			payload[schema.ColID] = id
			id, err = o.createRemote(ctx, e, id, payload, ids, stats)
			counter = &stats.Created
		}
	}

	if err != nil {
		o.markFailed(ctx, e, id, upTo, err)
		stats.Failed++
		if fatal(err) {
			return err
		}
		return nil
	}
	o.markPushed(ctx, e, id, seen, upTo)
	*counter++
	return nil
}

// createRemote posts the row and moves the local row to the id the server
// assigned. It returns the id the row now lives under.
func (o *Orchestrator) createRemote(ctx context.Context, e *schema.Entity, id int64, payload map[string]any, ids *IDMap, stats *PushStats) (int64, error) {
	resp, err := o.remote.Create(ctx, e.Path(), payload)
	if err != nil {
		return id, err
	}
	newID, ok := store.ToInt64(resp[schema.ColID])
	if !ok || newID <= 0 {
		return id, fmt.Errorf("create %s: response carries no usable id", e.Name)
	}
	if newID == id {
		return id, nil
	}

	refs, ok := o.store.ReassignID(ctx, e.Name, id, newID)
	if !ok {
		return id, fmt.Errorf("create %s: local id %d could not be moved to %d", e.Name, id, newID)
	}
	ids.Put(e.Name, id, newID)
	stats.Remapped++
	o.logger.Info(ctx, "temporary id reconciled", "table", e.Name, "temp_id", id, "id", newID, "references", refs)
	return newID, nil
}

func (o *Orchestrator) markPushed(ctx context.Context, e *schema.Entity, id int64, seen any, upTo int64) {
	if !o.store.MarkSynced(ctx, e.Name, id, seen) {
		o.logger.Debug(ctx, "row changed during push, left pending", "table", e.Name, "id", id)
	}
	if upTo == 0 {
		return
	}
	if err := o.store.Outbox().MarkSynced(ctx, e.Name, id, upTo, o.clock.Now()); err != nil {
		o.logger.Error(ctx, "outbox update failed", "table", e.Name, "id", id, "error", err)
	}
}

func (o *Orchestrator) markFailed(ctx context.Context, e *schema.Entity, id, upTo int64, cause error) {
	o.logger.Warn(ctx, "push failed", "table", e.Name, "id", id, "error", cause)
	o.store.MarkError(ctx, e.Name, id)
	if upTo == 0 {
		return
	}
	if err := o.store.Outbox().MarkError(ctx, e.Name, id, upTo, cause.Error()); err != nil {
		o.logger.Error(ctx, "outbox update failed", "table", e.Name, "id", id, "error", err)
	}
}

// buildPayload renders the domain fields of row for the wire. Foreign keys
// still holding a temporary id are resolved through ids; an unresolved one
// means the parent has not reached the server yet.
func buildPayload(e *schema.Entity, row store.Record, ids *IDMap) (map[string]any, error) {
	refs := make(map[string]string, len(e.ForeignKeys))
	for _, fk := range e.ForeignKeys {
		refs[fk.Column] = fk.References
	}

	out := make(map[string]any, len(e.Columns))
	for _, c := range e.Columns {
		if serverOwned[c.Name] {
			continue
		}
		v := row[c.Name]
		if ref, ok := refs[c.Name]; ok && v != nil {
			if n, isInt := store.ToInt64(v); isInt && store.IsTemporaryID(n) {
				mapped, found := ids.Resolve(ref, n)
				if !found {
					return nil, fmt.Errorf("%s references %s %d, which is not synced yet", c.Name, ref, n)
				}
				v = mapped
			}
		}
		switch c.Type {
		case schema.Boolean:
			if n, ok := v.(int64); ok {
				v = n != 0
			}
		case schema.JSON:
			if s, ok := v.(string); ok && json.Valid([]byte(s)) {
				v = json.RawMessage(s)
			}
		}
		out[c.Name] = v
	}
	return out, nil
}
