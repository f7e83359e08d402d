package engine

import (
	"context"
	"errors"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/remote"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/store"
	"github.com/google/uuid"
)

func reasonFor(err error) string {
	switch {
	case errors.Is(err, remote.ErrUnauthorized):
		return ReasonUnauthorized
	case errors.Is(err, remote.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ReasonUnavailable
	}
	return err.Error()
}

func tokenReason(err error) string {
	switch {
	case errors.Is(err, common.ErrMissingToken):
		return ReasonMissingToken
	case errors.Is(err, common.ErrTokenExpired):
		return ReasonTokenExpired
	}
	return ReasonInvalidToken
}

// run executes one cycle: resolve tenant, push, pull, prune, checkpoint.
func (o *Orchestrator) run(ctx context.Context, m mode) Result {
	if !o.syncing.CompareAndSwap(false, true) {
		return Result{Reason: ReasonAlreadySyncing}
	}
	defer o.syncing.Store(false)

	sc := o.settings.snapshot(uuid.NewString())
	res := Result{RunID: sc.RunID, Started: o.clock.Now()}
	o.emit(sc, StateSyncing, PhaseStart, nil, nil)

	fail := func(reason string, err error) Result {
		res.Reason = reason
		res.Duration = o.clock.Now().Sub(res.Started)
		o.logger.Error(ctx, "sync cycle failed", "run_id", sc.RunID, "reason", reason, "error", err)
		o.emit(sc, StateError, PhaseError, &res, err)
		return res
	}
	done := func() Result {
		res.Success = true
		res.Duration = o.clock.Now().Sub(res.Started)
		o.emit(sc, StateIdle, PhaseCompleted, &res, nil)
		return res
	}

	if err := o.store.Ping(ctx); err != nil {
		return fail(ReasonStoreClosed, err)
	}
	if err := remote.CheckToken(sc.Token, o.clock.Now()); err != nil {
		return fail(tokenReason(err), err)
	}

	tenant, ok := o.resolveTenant(ctx, sc)
	if !ok {
		o.logger.Info(ctx, "no tenant to sync", "run_id", sc.RunID)
		res.Skipped = true
		res.Reason = ReasonNoTenant
		return done()
	}
	res.TenantID = tenant

	bound, hasBound := o.store.MetaInt(ctx, common.MetaInitialSyncAzienda)
	if hasBound && bound != tenant && m != modeDrain {
		o.logger.Warn(ctx, "tenant changed, purging local data of other tenants", "from", bound, "to", tenant)
		removed, ok := o.store.PurgeOtherTenants(ctx, tenant)
		if !ok || !o.store.ClearCheckpoints(ctx) || !o.store.SetMetaBool(ctx, common.MetaInitialSyncCompleted, false) {
			return fail("tenant switch failed", common.ErrStoreClosed)
		}
		o.logger.Info(ctx, "tenant purge complete", "removed", removed)
	}

	full := m == modeFull || !hasBound || bound != tenant || !o.store.MetaBool(ctx, common.MetaInitialSyncCompleted)
	if !full && m == modeAuto {
		full = o.inconsistent(ctx, tenant)
	}
	res.Full = full && m != modeDrain
	o.logger.Info(ctx, "sync cycle started", "run_id", sc.RunID, "azienda_id", tenant, "full", res.Full)

	rctx := remote.WithAccessToken(ctx, sc.Token)

	o.emit(sc, StateSyncing, PhasePush, nil, nil)
	ids := NewIDMap()
	push, err := o.push(rctx, ids)
	res.Push = push
	if err != nil {
		return fail(reasonFor(err), err)
	}

	if store.IsTemporaryID(tenant) {
		id, ok := ids.Resolve(o.store.Registry().Tenant().Name, tenant)
		if !ok {
			o.logger.Warn(ctx, "tenant not created remotely yet, pull postponed", "azienda_id", tenant)
			return done()
		}
		tenant = id
		res.TenantID = id
		if hasBound || sc.HasTenant {
			o.store.SetMetaInt(ctx, common.MetaInitialSyncAzienda, id)
		}
		if sc.HasTenant {
			o.settings.SetTenantID(id)
		}
	}

	if m == modeDrain {
		return done()
	}

	o.emit(sc, StateSyncing, PhasePull, nil, nil)
	var since *time.Time
	if !full {
		if t, ok := o.store.MetaTime(ctx, common.MetaLastSync); ok {
			since = &t
		}
	}
	started := o.clock.Now()
	pull, err := o.pull(rctx, tenant, since)
	res.Pull = pull
	if err != nil {
		return fail(reasonFor(err), err)
	}

	o.store.SetMetaTime(ctx, common.MetaLastSync, started)
	o.store.SetMetaInt(ctx, common.MetaInitialSyncAzienda, tenant)
	if full {
		o.store.SetMetaBool(ctx, common.MetaInitialSyncCompleted, true)
	}

	pruned, err := o.store.Outbox().PruneSynced(ctx, o.clock.Now().Add(-o.opts.OutboxRetention))
	if err != nil {
		o.logger.Warn(ctx, "outbox prune failed", "error", err)
	}
	res.Pruned = pruned

	o.logger.Info(ctx, "sync cycle completed", "run_id", sc.RunID, "pushed", push.Pushed(),
		"push_failed", push.Failed, "remapped", ids.Len(), "pulled", pull.Applied, "pruned", pruned)
	return done()
}
