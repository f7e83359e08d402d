package schema

import (
	"fmt"
	"strings"
)

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// CreateTableSQL renders the statements creating e's table and indexes.
func (e *Entity) CreateTableSQL() []string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n  %s INTEGER PRIMARY KEY", quote(e.Name), quote(ColID))

	refs := make(map[string]string, len(e.ForeignKeys))
	for _, fk := range e.ForeignKeys {
		refs[fk.Column] = fk.References
	}

	for _, c := range append(append([]Column{}, e.Columns...), e.SyncColumns()...) {
		fmt.Fprintf(&b, ",\n  %s %s", quote(c.Name), c.Type.SQLType())
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if c.Default != "" {
			b.WriteString(" DEFAULT " + c.Default)
		}
		if ref, ok := refs[c.Name]; ok {
			fmt.Fprintf(&b, " REFERENCES %s(%s)", quote(ref), quote(ColID))
		}
	}
	b.WriteString("\n)")

	stmts := []string{b.String()}
	stmts = append(stmts, e.index(ColSyncStatus))
	if e.TenantColumn != "" {
		stmts = append(stmts, e.index(e.TenantColumn))
	}
	if e.ScopeColumn != "" {
		stmts = append(stmts, e.index(e.ScopeColumn))
	}
	if len(e.NaturalKey) > 0 {
		stmts = append(stmts, e.index(e.NaturalKey...))
	}
	return stmts
}

func (e *Entity) index(cols ...string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	name := fmt.Sprintf("idx_%s_%s", e.Name, strings.Join(cols, "_"))
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", quote(name), quote(e.Name), strings.Join(quoted, ", "))
}

// DropTableSQL renders the statement dropping e's table.
func (e *Entity) DropTableSQL() string {
	return "DROP TABLE IF EXISTS " + quote(e.Name)
}

// CreateSQL renders the DDL for every entity in dependency order.
func (r *Registry) CreateSQL() []string {
	var stmts []string
	for _, e := range r.entities {
		stmts = append(stmts, e.CreateTableSQL()...)
	}
	return stmts
}

// DropSQL renders DROP statements in reverse dependency order.
func (r *Registry) DropSQL() []string {
	stmts := make([]string, 0, len(r.entities))
	for i := len(r.entities) - 1; i >= 0; i-- {
		stmts = append(stmts, r.entities[i].DropTableSQL())
	}
	return stmts
}
