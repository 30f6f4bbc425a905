package tenant

import (
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// guard rejects statements against scoped tables that would touch every
// tenant's rows. Accessors always add the tenant condition, so a rejection
// means some code path reached the table around the accessor.
type guard struct {
	registry *Registry
}

// EnableTenantGuard registers the tenant guard callbacks on db. Statements
// issued by an unscoped accessor are let through.
//
// The row callback serves both Row and Rows. Row has no error return, so a
// rejected Row().Scan would dereference a nil row; aggregates on scoped
// tables must use Rows or Scan, which report ErrMissingTenantCondition.
func EnableTenantGuard(db *gorm.DB, registry *Registry) error {
	g := &guard{registry: registry}
	cb := db.Callback()

	if err := cb.Query().Before("gorm:query").Register("tenant:guard_query", g.checkCondition); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenant:guard_row", g.checkCondition); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant:guard_update", g.checkCondition); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("tenant:guard_delete", g.checkCondition); err != nil {
		return err
	}
	return cb.Create().Before("gorm:create").Register("tenant:guard_create", g.checkOwner)
}

func (g *guard) scopedStatement(db *gorm.DB) bool {
	if db.Error != nil || db.Statement.Table == "" {
		return false
	}
	return g.registry.IsScopedTable(db.Statement.Table)
}

func isPrivileged(db *gorm.DB) bool {
	v, ok := db.Get(privilegedKey)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func (g *guard) checkCondition(db *gorm.DB) {
	if !g.scopedStatement(db) || isPrivileged(db) {
		return
	}
	if hasTenantCondition(db.Statement) {
		return
	}
	_ = db.AddError(ErrMissingTenantCondition)
}

// checkOwner applies to every create, privileged or not: no row on a scoped
// table may be written without an owner.
func (g *guard) checkOwner(db *gorm.DB) {
	if !g.scopedStatement(db) || db.Statement.Schema == nil {
		return
	}
	field := db.Statement.Schema.LookUpField(TenantColumn)
	if field == nil {
		return
	}

	ctx := db.Statement.Context
	rv := db.Statement.ReflectValue
	switch rv.Kind() {
	case reflect.Struct:
		if _, zero := field.ValueOf(ctx, rv); zero {
			_ = db.AddError(ErrTenantRequired)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if _, zero := field.ValueOf(ctx, reflect.Indirect(rv.Index(i))); zero {
				_ = db.AddError(ErrTenantRequired)
				return
			}
		}
	}
}

func hasTenantCondition(stmt *gorm.Statement) bool {
	c, ok := stmt.Clauses["WHERE"]
	if !ok {
		return false
	}
	where, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	return narrowedByTenant(where.Exprs)
}

// narrowedByTenant reports whether a conjunction of exprs restricts rows to
// named tenants. GORM joins an OrConditions entry to its predecessor with OR,
// so every such entry must itself be narrowed.
func narrowedByTenant(exprs []clause.Expression) bool {
	found := false
	for _, expr := range exprs {
		if or, ok := expr.(clause.OrConditions); ok {
			if !allNarrowed(or.Exprs) {
				return false
			}
			continue
		}
		if exprNamesTenant(expr) {
			found = true
		}
	}
	return found
}

func allNarrowed(exprs []clause.Expression) bool {
	if len(exprs) == 0 {
		return false
	}
	for _, expr := range exprs {
		if !exprNamesTenant(expr) {
			return false
		}
	}
	return true
}

func exprNamesTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		return columnIsTenant(e.Column) && e.Value != nil
	case clause.IN:
		return columnIsTenant(e.Column) && len(e.Values) > 0
	case clause.AndConditions:
		return narrowedByTenant(e.Exprs)
	case clause.OrConditions:
		return allNarrowed(e.Exprs)
	case clause.Expr:
		return rawNamesTenant(e.SQL)
	case clause.NamedExpr:
		return rawNamesTenant(e.SQL)
	}
	return false
}

func rawNamesTenant(sql string) bool {
	lower := strings.ToLower(sql)
	return strings.Contains(lower, TenantColumn) && !strings.Contains(lower, " or ")
}

func columnIsTenant(col any) bool {
	switch c := col.(type) {
	case clause.Column:
		return c.Name == TenantColumn
	case string:
		return c == TenantColumn || strings.HasSuffix(c, "."+TenantColumn)
	}
	return false
}
