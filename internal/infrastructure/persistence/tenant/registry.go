// Package tenant isolates tenant-scoped records that share one schema.
//
// A Registry maps each entity kind to its GORM model. A Factory binds a
// tenant id to produce an Accessor whose reads, updates and deletes are
// always ANDed with that tenant and whose creates are always stamped with it:
//
//	acc := factory.Bind(ctx, tenantID)
//	var loans []models.Loan
//	err := acc.Read(ctx, "loans", tenant.Filter{"status": "ACTIVE"}, &loans)
//
// Cross-tenant work goes through Factory.Unscoped, which is logged and
// counted. EnableTenantGuard adds GORM callbacks that reject statements on
// registered tables that reach the database without a tenant condition.
package tenant

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// TenantColumn is the discriminator column every scoped table carries.
const TenantColumn = "tenant_id"

// EntityKind names a tenant-scoped entity, e.g. "loans".
type EntityKind string

// Scoped is implemented by every tenant-scoped model.
type Scoped interface {
	GetTenantID() uuid.UUID
	SetTenantID(id uuid.UUID)
}

// Registration describes one tenant-scoped entity kind.
type Registration struct {
	Kind EntityKind
	// Model is a pointer to a zero value of the GORM model.
	Model Scoped
	// Table is filled from the model's schema.
	Table string
	// Active narrows a query to the rows that count toward a stock metric.
	// Nil means every row counts.
	Active func(*gorm.DB) *gorm.DB

	schema    *schema.Schema
	modelType reflect.Type
}

// Registry is the fixed table of tenant-scoped entity kinds. It is built once
// at startup and is read-only afterwards.
type Registry struct {
	entries map[EntityKind]*Registration
	tables  map[string]EntityKind
}

// NewRegistry validates and indexes the registrations. Duplicate kinds or
// tables and models without a tenant_id column are rejected.
func NewRegistry(regs ...Registration) (*Registry, error) {
	cache := &sync.Map{}
	r := &Registry{
		entries: make(map[EntityKind]*Registration, len(regs)),
		tables:  make(map[string]EntityKind, len(regs)),
	}

	for i := range regs {
		reg := regs[i]
		if reg.Kind == "" {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("registration %d has an empty kind", i)}
		}
		if reg.Model == nil {
			return nil, &ConfigurationError{Kind: reg.Kind, Reason: "model is nil"}
		}
		if _, dup := r.entries[reg.Kind]; dup {
			return nil, &ConfigurationError{Kind: reg.Kind, Reason: "registered twice"}
		}

		sch, err := schema.Parse(reg.Model, cache, schema.NamingStrategy{})
		if err != nil {
			return nil, &ConfigurationError{Kind: reg.Kind, Reason: "parse model: " + err.Error()}
		}
		if _, ok := sch.FieldsByDBName[TenantColumn]; !ok {
			return nil, &ConfigurationError{Kind: reg.Kind, Reason: "model has no " + TenantColumn + " column"}
		}
		if reg.Table != "" && reg.Table != sch.Table {
			return nil, &ConfigurationError{
				Kind:   reg.Kind,
				Reason: fmt.Sprintf("table %q does not match model table %q", reg.Table, sch.Table),
			}
		}
		if other, dup := r.tables[sch.Table]; dup {
			return nil, &ConfigurationError{Kind: reg.Kind, Reason: fmt.Sprintf("table %q already registered by %q", sch.Table, other)}
		}

		reg.Table = sch.Table
		reg.schema = sch
		reg.modelType = sch.ModelType
		r.entries[reg.Kind] = &reg
		r.tables[sch.Table] = reg.Kind
	}

	return r, nil
}

// Lookup returns the registration for kind.
func (r *Registry) Lookup(kind EntityKind) (*Registration, error) {
	reg, ok := r.entries[kind]
	if !ok {
		return nil, &ConfigurationError{Kind: kind, Reason: "not registered as tenant-scoped"}
	}
	return reg, nil
}

// MustLookup is Lookup for startup wiring; it panics on unknown kinds.
func (r *Registry) MustLookup(kind EntityKind) *Registration {
	reg, err := r.Lookup(kind)
	if err != nil {
		panic(err)
	}
	return reg
}

// Kinds returns the registered kinds in lexical order.
func (r *Registry) Kinds() []EntityKind {
	kinds := make([]EntityKind, 0, len(r.entries))
	for k := range r.entries {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// IsScopedTable reports whether table belongs to a registered kind.
func (r *Registry) IsScopedTable(table string) bool {
	_, ok := r.tables[table]
	return ok
}

func (reg *Registration) newModel() any {
	return reflect.New(reg.modelType).Interface()
}

// accepts reports whether dest (pointer to model, slice of models or slice
// of model pointers) holds the registered model type.
func (reg *Registration) accepts(dest any) bool {
	t := reflect.TypeOf(dest)
	for t != nil {
		switch t.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Array:
			t = t.Elem()
		default:
			return t == reg.modelType
		}
	}
	return false
}

// column resolves a filter or update key to the model's column name. Keys may
// be the column name, the Go field name, or either spelled without
// underscores in any case ("clientId").
func (reg *Registration) column(key string) (string, bool) {
	if f := reg.schema.LookUpField(key); f != nil && f.DBName != "" {
		return f.DBName, true
	}
	norm := normalizeKey(key)
	for _, f := range reg.schema.Fields {
		if f.DBName == "" {
			continue
		}
		if normalizeKey(f.Name) == norm || normalizeKey(f.DBName) == norm {
			return f.DBName, true
		}
	}
	return "", false
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", ""))
}

// isTenantKey matches tenant_id, tenantId, TenantID and similar spellings.
func isTenantKey(key string) bool {
	return normalizeKey(key) == "tenantid"
}
