package engine

import "time"

type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateError   State = "error"
)

type Phase string

const (
	PhaseStart     Phase = "start"
	PhasePush      Phase = "push"
	PhasePull      Phase = "pull"
	PhaseCompleted Phase = "completed"
	PhaseError     Phase = "error"
)

// Failure reasons reported in Result.Reason.
const (
	ReasonAlreadySyncing = "already syncing"
	ReasonNoTenant       = "no tenant"
	ReasonMissingToken   = "missing auth token"
	ReasonTokenExpired   = "auth token expired"
	ReasonInvalidToken   = "invalid auth token"
	ReasonUnauthorized   = "unauthorized"
	ReasonUnavailable    = "remote service unavailable"
	ReasonStoreClosed    = "local store unavailable"
	ReasonNothingToDrain = "nothing to drain"
)

// PushStats counts the outcome of a push phase.
type PushStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Converged int `json:"converged"`
	Failed    int `json:"failed"`
	Remapped  int `json:"remapped"`
}

func (p PushStats) Pushed() int { return p.Created + p.Updated + p.Deleted + p.Converged }

// PullStats counts the outcome of a pull phase.
type PullStats struct {
	Batched      bool `json:"batched"`
	Tables       int  `json:"tables"`
	Applied      int  `json:"applied"`
	Failed       int  `json:"failed"`
	Skipped      int  `json:"skipped"`
	Deduplicated int  `json:"deduplicated"`
	Malformed    int  `json:"malformed"`
}

// Result is the outcome of one cycle.
type Result struct {
	RunID    string        `json:"run_id"`
	Success  bool          `json:"success"`
	Skipped  bool          `json:"skipped,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Full     bool          `json:"full"`
	TenantID int64         `json:"azienda_id,omitempty"`
	Push     PushStats     `json:"push"`
	Pull     PullStats     `json:"pull"`
	Pruned   int64         `json:"pruned"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// StatusEvent is delivered to the host at every phase transition.
type StatusEvent struct {
	RunID  string
	State  State
	Phase  Phase
	Result *Result
	Err    error
	At     time.Time
}

// Status is a point-in-time view for the host.
type Status struct {
	State                State      `json:"state"`
	BackgroundSyncing    bool       `json:"background_syncing"`
	Running              bool       `json:"running"`
	TenantID             int64      `json:"azienda_id,omitempty"`
	InitialSyncCompleted bool       `json:"initial_sync_completed"`
	LastSync             *time.Time `json:"last_sync,omitempty"`
	PendingOutbox        int        `json:"pending_outbox"`
	LastResult           *Result    `json:"last_result,omitempty"`
}
