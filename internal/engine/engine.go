package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/logging"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/remote"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/store"
)

// Options tunes an Orchestrator. Zero values fall back to the defaults.
type Options struct {
	Interval             time.Duration
	OutboxRetention      time.Duration
	ConsistencyThreshold float64
	ConsistencyMinSample int
	Clock                common.Clock
	Logger               logging.Logger
	// OnStatus is called synchronously at every phase transition.
	OnStatus func(StatusEvent)
}

const (
	DefaultInterval             = 5 * time.Minute
	DefaultOutboxRetention      = 7 * 24 * time.Hour
	DefaultConsistencyThreshold = 0.3
	DefaultConsistencyMinSample = 20
)

type mode int

const (
	modeAuto mode = iota
	modeFull
	modeDrain
)

// Orchestrator runs sync cycles against one store and one remote service.
// At most one cycle runs at a time.
type Orchestrator struct {
	store    *store.Store
	remote   remote.Client
	settings *Settings
	opts     Options
	logger   logging.Logger
	clock    common.Clock

	syncing    atomic.Bool
	background atomic.Bool

	mu     sync.Mutex
	state  State
	last   *Result
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(st *store.Store, client remote.Client, opts Options) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.OutboxRetention <= 0 {
		opts.OutboxRetention = DefaultOutboxRetention
	}
	if opts.ConsistencyThreshold <= 0 {
		opts.ConsistencyThreshold = DefaultConsistencyThreshold
	}
	if opts.ConsistencyMinSample <= 0 {
		opts.ConsistencyMinSample = DefaultConsistencyMinSample
	}
	if opts.Clock == nil {
		opts.Clock = common.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger{}
	}
	return &Orchestrator{
		store:    st,
		remote:   client,
		settings: &Settings{},
		opts:     opts,
		logger:   opts.Logger.With("component", "sync"),
		clock:    opts.Clock,
		state:    StateIdle,
	}
}

func (o *Orchestrator) SetAuthToken(token string) { o.settings.SetAuthToken(token) }

func (o *Orchestrator) SetTenantID(id int64) { o.settings.SetTenantID(id) }

// Start runs a cycle immediately and then every Interval until Stop is
// called or ctx is cancelled. Calling Start twice is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop(loopCtx)
	}()
	o.logger.Info(ctx, "sync scheduler started", "interval", o.opts.Interval)
}

func (o *Orchestrator) loop(ctx context.Context) {
	ticker := time.NewTicker(o.opts.Interval)
	defer ticker.Stop()

	o.TriggerSync(ctx)
	for {
		select {
		case <-ticker.C:
			o.TriggerSync(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the scheduler and waits for an in-flight cycle to finish.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	o.wg.Wait()
	o.logger.Info(context.Background(), "sync scheduler stopped")
}

// Running reports whether the scheduler is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cancel != nil
}

// TriggerSync runs one cycle now. Cancelling ctx does not interrupt a cycle
// once it has started.
func (o *Orchestrator) TriggerSync(ctx context.Context) Result {
	return o.run(context.WithoutCancel(ctx), modeAuto)
}

// FullSync runs one cycle that re-pulls everything for the tenant.
func (o *Orchestrator) FullSync(ctx context.Context) Result {
	return o.run(context.WithoutCancel(ctx), modeFull)
}

// Drain pushes pending local changes before shutdown, bounded by timeout.
// The pull is skipped: its result would only refresh a cache the host is
// about to close, and the next start pulls anyway. Unlike regular cycles,
// remote calls are abandoned when the bound expires.
func (o *Orchestrator) Drain(ctx context.Context, timeout time.Duration) Result {
	n, err := o.store.Outbox().CountUnsynced(ctx)
	if err != nil {
		o.logger.Error(ctx, "outbox count failed", "error", err)
	}
	if n == 0 {
		return Result{Success: true, Skipped: true, Reason: ReasonNothingToDrain}
	}

	o.background.Store(true)
	defer o.background.Store(false)

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	o.logger.Info(ctx, "draining outbox before shutdown", "pending", n, "timeout", timeout)
	return o.run(dctx, modeDrain)
}

// Status reports the orchestrator state and the sync checkpoints.
func (o *Orchestrator) Status(ctx context.Context) Status {
	o.mu.Lock()
	st := Status{State: o.state, LastResult: o.last, Running: o.cancel != nil}
	o.mu.Unlock()

	st.BackgroundSyncing = o.background.Load()
	if id, ok := o.store.MetaInt(ctx, common.MetaInitialSyncAzienda); ok {
		st.TenantID = id
	}
	st.InitialSyncCompleted = o.store.MetaBool(ctx, common.MetaInitialSyncCompleted)
	if t, ok := o.store.MetaTime(ctx, common.MetaLastSync); ok {
		st.LastSync = &t
	}
	if n, err := o.store.Outbox().CountUnsynced(ctx); err == nil {
		st.PendingOutbox = n
	}
	return st
}

// NeedsInitialSync reports whether the next cycle will be a full pull
// because the cache was never populated for the current tenant.
func (o *Orchestrator) NeedsInitialSync(ctx context.Context) bool {
	sc := o.settings.snapshot("")
	tenant, ok := o.resolveTenant(ctx, sc)
	if !ok {
		return true
	}
	bound, hasBound := o.store.MetaInt(ctx, common.MetaInitialSyncAzienda)
	return !hasBound || bound != tenant || !o.store.MetaBool(ctx, common.MetaInitialSyncCompleted)
}

// ResetSync forgets every pull checkpoint so the next cycle re-pulls in
// full. With purge, synced rows are deleted as well; unsynced rows are kept.
func (o *Orchestrator) ResetSync(ctx context.Context, purge bool) error {
	if !o.syncing.CompareAndSwap(false, true) {
		return common.ErrAlreadySyncing
	}
	defer o.syncing.Store(false)

	if !o.store.ClearCheckpoints(ctx) || !o.store.SetMetaBool(ctx, common.MetaInitialSyncCompleted, false) {
		return errors.New("reset sync checkpoints failed")
	}
	if purge && !o.store.ClearEntities(ctx) {
		return errors.New("purge of synced rows failed")
	}
	o.logger.Info(ctx, "sync state reset", "purge", purge)
	return nil
}

// resolveTenant picks the explicit tenant, then the one the cache is bound
// to, then the first tenant row present locally.
func (o *Orchestrator) resolveTenant(ctx context.Context, sc SyncContext) (int64, bool) {
	if sc.HasTenant {
		return sc.TenantID, true
	}
	if id, ok := o.store.MetaInt(ctx, common.MetaInitialSyncAzienda); ok && id != 0 {
		return id, true
	}
	return o.store.FirstTenantID(ctx)
}

// inconsistent samples prima_nota rows whose counter-account name should have
// been denormalized by the server. A high miss ratio means the cache was
// filled by an older server and needs a full pull.
func (o *Orchestrator) inconsistent(ctx context.Context, tenantID int64) bool {
	ratio, sample := o.store.MissingRatio(ctx, schema.PrimaNota, schema.TenantColumn, tenantID,
		"contropartita_id", "contropartita_nome")
	if sample < o.opts.ConsistencyMinSample {
		return false
	}
	if ratio > o.opts.ConsistencyThreshold {
		o.logger.Warn(ctx, "local data looks stale, forcing full pull", "ratio", ratio, "sample", sample)
		return true
	}
	return false
}

func (o *Orchestrator) emit(sc SyncContext, state State, phase Phase, res *Result, err error) {
	o.mu.Lock()
	o.state = state
	if res != nil {
		r := *res
		o.last = &r
	}
	o.mu.Unlock()

	if o.opts.OnStatus != nil {
		o.opts.OnStatus(StatusEvent{RunID: sc.RunID, State: state, Phase: phase, Result: res, Err: err, At: o.clock.Now()})
	}
}
