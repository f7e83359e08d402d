package schema

import (
	"errors"
	"fmt"
	"sort"
)

// ColumnType is the logical type of a domain column.
type ColumnType string

const (
	Integer   ColumnType = "INTEGER"
	Real      ColumnType = "REAL"
	Text      ColumnType = "TEXT"
	Boolean   ColumnType = "BOOLEAN"
	Timestamp ColumnType = "TIMESTAMP"
	JSON      ColumnType = "JSON"
)

// SQLType is the storage type used in DDL. Timestamps and JSON are stored as
// text, booleans as 0/1 integers.
func (t ColumnType) SQLType() string {
	switch t {
	case Integer, Boolean:
		return "INTEGER"
	case Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Sync column names.
const (
	ColID             = "id"
	ColDeletedAt      = "deleted_at"
	ColSyncStatus     = "sync_status"
	ColSyncedAt       = "synced_at"
	ColLocalUpdatedAt = "local_updated_at"
	ColUpdatedAt      = "updated_at"
)

// Sync statuses.
const (
	StatusSynced  = "synced"
	StatusPending = "pending"
	StatusError   = "error"
)

// Column is a domain column.
type Column struct {
	Name    string
	Type    ColumnType
	NotNull bool
	// Default is an SQL literal, e.g. "0" or "'attivo'".
	Default string
}

// ForeignKey links Column to the id of the References entity.
type ForeignKey struct {
	Column     string
	References string
}

// Entity describes one domain table.
type Entity struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey

	// TenantColumn holds the tenant id. Empty for the tenant entity itself and
	// for children scoped through ScopeColumn.
	TenantColumn string
	// ScopeColumn is a foreign key used to scope the entity to the tenant when
	// it has no TenantColumn (e.g. invoice lines through their invoice).
	ScopeColumn string
	// IsTenant marks the entity whose rows are tenants.
	IsTenant bool

	// NaturalKey, when set, enables duplicate collapse on bulk upsert.
	NaturalKey []string

	// LocalOnly entities are never synchronized and have no deleted_at.
	LocalOnly bool
	// PreserveOnRebuild keeps pending rows across a schema rebuild.
	PreserveOnRebuild bool

	// Endpoint is the remote collection path. Defaults to "/<name>".
	Endpoint string
}

// Syncable reports whether the entity takes part in push and pull.
func (e *Entity) Syncable() bool { return !e.LocalOnly }

// SoftDeletable reports whether the table carries deleted_at.
func (e *Entity) SoftDeletable() bool { return !e.LocalOnly }

// Path returns the remote collection path.
func (e *Entity) Path() string {
	if e.Endpoint != "" {
		return e.Endpoint
	}
	return "/" + e.Name
}

// SyncColumns returns the sync-metadata columns carried by the table.
func (e *Entity) SyncColumns() []Column {
	cols := make([]Column, 0, 4)
	if e.SoftDeletable() {
		cols = append(cols, Column{Name: ColDeletedAt, Type: Timestamp})
	}
	return append(cols,
		Column{Name: ColSyncStatus, Type: Text, NotNull: true, Default: "'" + StatusSynced + "'"},
		Column{Name: ColSyncedAt, Type: Timestamp},
		Column{Name: ColLocalUpdatedAt, Type: Timestamp},
	)
}

// ColumnNames returns id, the domain columns and the sync columns.
func (e *Entity) ColumnNames() []string {
	names := []string{ColID}
	for _, c := range e.Columns {
		names = append(names, c.Name)
	}
	for _, c := range e.SyncColumns() {
		names = append(names, c.Name)
	}
	return names
}

// HasColumn reports whether name is id, a domain column or a sync column.
func (e *Entity) HasColumn(name string) bool {
	for _, n := range e.ColumnNames() {
		if n == name {
			return true
		}
	}
	return false
}

// ForeignKeyTo returns the foreign keys of e pointing at table.
func (e *Entity) ForeignKeyTo(table string) []ForeignKey {
	var fks []ForeignKey
	for _, fk := range e.ForeignKeys {
		if fk.References == table {
			fks = append(fks, fk)
		}
	}
	return fks
}

// IsSyncColumn reports whether name is one of the sync-metadata columns.
func IsSyncColumn(name string) bool {
	switch name {
	case ColDeletedAt, ColSyncStatus, ColSyncedAt, ColLocalUpdatedAt:
		return true
	}
	return false
}

// Registry is the ordered set of entities plus the schema version.
type Registry struct {
	Version  int
	entities []*Entity
	byName   map[string]*Entity
}

// ErrDuplicateEntity is returned by New when two entities share a name.
var ErrDuplicateEntity = errors.New("duplicate entity")

// New builds a registry. Entities must be listed parents first.
func New(version int, entities ...*Entity) (*Registry, error) {
	r := &Registry{Version: version, byName: make(map[string]*Entity, len(entities))}
	for _, e := range entities {
		if _, ok := r.byName[e.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntity, e.Name)
		}
		r.byName[e.Name] = e
		r.entities = append(r.entities, e)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNew is like New but panics on error. Intended for static registries.
func MustNew(version int, entities ...*Entity) *Registry {
	r, err := New(version, entities...)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks that every foreign key and scope column references an
// entity declared earlier, and that declared columns exist.
func (r *Registry) Validate() error {
	if r.Version <= 0 {
		return fmt.Errorf("schema version must be positive, got %d", r.Version)
	}
	seen := make(map[string]bool, len(r.entities))
	tenants := 0
	for _, e := range r.entities {
		if e.IsTenant {
			tenants++
		}
		for _, fk := range e.ForeignKeys {
			if !seen[fk.References] {
				return fmt.Errorf("entity %s: foreign key %s references %s, which is not declared before it", e.Name, fk.Column, fk.References)
			}
			if !e.HasColumn(fk.Column) {
				return fmt.Errorf("entity %s: foreign key column %s is not declared", e.Name, fk.Column)
			}
		}
		if e.TenantColumn != "" && !e.HasColumn(e.TenantColumn) {
			return fmt.Errorf("entity %s: tenant column %s is not declared", e.Name, e.TenantColumn)
		}
		if e.ScopeColumn != "" && e.scopeParent() == "" {
			return fmt.Errorf("entity %s: scope column %s is not a foreign key", e.Name, e.ScopeColumn)
		}
		for _, k := range e.NaturalKey {
			if !e.HasColumn(k) {
				return fmt.Errorf("entity %s: natural key column %s is not declared", e.Name, k)
			}
		}
		seen[e.Name] = true
	}
	if tenants != 1 {
		return fmt.Errorf("registry must declare exactly one tenant entity, got %d", tenants)
	}
	return nil
}

func (e *Entity) scopeParent() string {
	for _, fk := range e.ForeignKeys {
		if fk.Column == e.ScopeColumn {
			return fk.References
		}
	}
	return ""
}

// ScopeParent returns the entity referenced by ScopeColumn, or "".
func (e *Entity) ScopeParent() string { return e.scopeParent() }

// Entity returns the entity named name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Entities returns all entities in dependency order.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// Tenant returns the tenant entity.
func (r *Registry) Tenant() *Entity {
	for _, e := range r.entities {
		if e.IsTenant {
			return e
		}
	}
	return nil
}

// SyncOrder returns the syncable entities in dependency order. Push and pull
// both use it.
func (r *Registry) SyncOrder() []*Entity {
	var out []*Entity
	for _, e := range r.entities {
		if e.Syncable() {
			out = append(out, e)
		}
	}
	return out
}

// Preserved returns the entities whose pending rows survive a rebuild.
func (r *Registry) Preserved() []*Entity {
	var out []*Entity
	for _, e := range r.entities {
		if e.PreserveOnRebuild {
			out = append(out, e)
		}
	}
	return out
}

// Dependents returns every (entity, foreign key) pair that references table.
func (r *Registry) Dependents(table string) []Dependent {
	var out []Dependent
	for _, e := range r.entities {
		for _, fk := range e.ForeignKeyTo(table) {
			out = append(out, Dependent{Entity: e, Column: fk.Column})
		}
	}
	return out
}

// Dependent is a column in another entity that points at a table's ids.
type Dependent struct {
	Entity *Entity
	Column string
}


// FilterFields returns the subset of fields whose keys are columns of e and
// the sorted list of dropped keys.
func (e *Entity) FilterFields(fields map[string]any) (map[string]any, []string) {
	kept := make(map[string]any, len(fields))
	var dropped []string
	for k, v := range fields {
		if e.HasColumn(k) {
			kept[k] = v
			continue
		}
		dropped = append(dropped, k)
	}
	sort.Strings(dropped)
	return kept, dropped
}
