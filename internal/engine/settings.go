package engine

import "sync"

// SyncContext is the immutable view of the settings taken at the start of a
// cycle. Changes made by the host mid-cycle apply from the next cycle.
type SyncContext struct {
	Token    string
	TenantID int64
	// HasTenant is false when no explicit tenant was configured.
	HasTenant bool
	RunID     string
}

// Settings holds the host-provided values that may change at any time.
type Settings struct {
	mu        sync.RWMutex
	token     string
	tenantID  int64
	hasTenant bool
}

func (s *Settings) SetAuthToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// SetTenantID pins the tenant; 0 clears it so the bound or first local
// tenant is used.
func (s *Settings) SetTenantID(id int64) {
	s.mu.Lock()
	s.tenantID = id
	s.hasTenant = id != 0
	s.mu.Unlock()
}

func (s *Settings) AuthToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Settings) snapshot(runID string) SyncContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SyncContext{Token: s.token, TenantID: s.tenantID, HasTenant: s.hasTenant, RunID: runID}
}
