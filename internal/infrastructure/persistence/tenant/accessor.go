package tenant

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/lendsaas/backend/internal/infrastructure/logger"
	"github.com/lendsaas/backend/internal/infrastructure/metrics"
)

// privilegedKey marks a statement as issued by an unscoped accessor.
const privilegedKey = "tenant:privileged"

// StampPolicy decides what Create does with a payload naming another tenant.
type StampPolicy int

const (
	// StampLenient overwrites the payload tenant with the bound one and logs a warning.
	StampLenient StampPolicy = iota
	// StampStrict rejects the write with a *TenantMismatchError.
	StampStrict
)

func (p StampPolicy) String() string {
	if p == StampStrict {
		return "strict"
	}
	return "lenient"
}

// Filter is an equality filter keyed by column or field name. Slice values
// become IN conditions and nil values become IS NULL.
type Filter map[string]any

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithStampPolicy sets how Create handles mismatched payload tenants.
func WithStampPolicy(p StampPolicy) FactoryOption {
	return func(f *Factory) { f.stamp = p }
}

// Factory hands out accessors. It holds no per-tenant state and is safe to
// share between goroutines.
type Factory struct {
	db       *gorm.DB
	registry *Registry
	logger   *zap.Logger
	stamp    StampPolicy
}

// NewFactory creates a Factory over db for the kinds in registry.
func NewFactory(db *gorm.DB, registry *Registry, log *zap.Logger, opts ...FactoryOption) *Factory {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Factory{db: db, registry: registry, logger: log, stamp: StampLenient}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Registry returns the registry the factory resolves kinds against.
func (f *Factory) Registry() *Registry { return f.registry }

// StampPolicy returns the configured create policy.
func (f *Factory) StampPolicy() StampPolicy { return f.stamp }

// Bind returns an accessor narrowed to tenantID. A nil tenant id yields an
// unscoped accessor and a warning naming the caller.
func (f *Factory) Bind(ctx context.Context, tenantID uuid.UUID) *Accessor {
	if tenantID == uuid.Nil {
		logger.WithLogger(ctx, f.logger).Warn("bind called without tenant id, returning unscoped accessor",
			zap.String("caller", callerLocation(2)),
		)
		metrics.UnscopedAccessTotal.WithLabelValues("nil_tenant_bind").Inc()
		return f.privileged()
	}
	return &Accessor{factory: f, db: f.db, tenantID: tenantID}
}

// Unscoped returns an accessor with no tenant filter for system work such as
// cross-tenant aggregation. reason is logged with the caller location and
// used as a metric label, so it should be a short constant.
func (f *Factory) Unscoped(ctx context.Context, reason string) *Accessor {
	if reason == "" {
		reason = "unspecified"
	}
	logger.WithLogger(ctx, f.logger).Info("unscoped accessor requested",
		zap.String("reason", reason),
		zap.String("caller", callerLocation(2)),
	)
	metrics.UnscopedAccessTotal.WithLabelValues(reason).Inc()
	return f.privileged()
}

func (f *Factory) privileged() *Accessor {
	return &Accessor{
		factory:  f,
		db:       f.db.Set(privilegedKey, true).Session(&gorm.Session{}),
		unscoped: true,
	}
}

// Accessor performs reads and writes on registered kinds for one tenant, or
// for all tenants when unscoped. Accessors are cheap values; create one per
// request or job.
type Accessor struct {
	factory  *Factory
	db       *gorm.DB
	tenantID uuid.UUID
	unscoped bool
}

// TenantID returns the bound tenant, or uuid.Nil for an unscoped accessor.
func (a *Accessor) TenantID() uuid.UUID { return a.tenantID }

// IsUnscoped reports whether the accessor skips tenant filtering.
func (a *Accessor) IsUnscoped() bool { return a.unscoped }

// Conn returns the accessor's connection (the transaction inside Transaction).
// Statements against scoped tables issued through it still pass through the
// tenant guard.
func (a *Accessor) Conn(ctx context.Context) *gorm.DB {
	return a.db.WithContext(ctx)
}

// Read loads every record of kind matching filter into dest.
func (a *Accessor) Read(ctx context.Context, kind EntityKind, filter Filter, dest any, opts ...QueryOption) error {
	reg, err := a.resolve(kind, dest)
	if err != nil {
		return err
	}
	q, err := a.query(ctx, reg, filter, opts)
	if err != nil {
		return err
	}
	return q.Find(dest).Error
}

// First loads the first record of kind matching filter. A miss returns a
// NOT_FOUND domain error.
func (a *Accessor) First(ctx context.Context, kind EntityKind, filter Filter, dest any, opts ...QueryOption) error {
	reg, err := a.resolve(kind, dest)
	if err != nil {
		return err
	}
	q, err := a.query(ctx, reg, filter, opts)
	if err != nil {
		return err
	}
	if err := q.First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.NewDomainError("NOT_FOUND", fmt.Sprintf("%s record not found", kind))
		}
		return err
	}
	return nil
}

// Count returns the number of records of kind matching filter.
func (a *Accessor) Count(ctx context.Context, kind EntityKind, filter Filter, opts ...QueryOption) (int64, error) {
	reg, err := a.resolve(kind, nil)
	if err != nil {
		return 0, err
	}
	q, err := a.query(ctx, reg, filter, opts)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Model(reg.newModel()).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Sum returns the sum of an integer column over records matching filter.
func (a *Accessor) Sum(ctx context.Context, kind EntityKind, column string, filter Filter, opts ...QueryOption) (int64, error) {
	reg, err := a.resolve(kind, nil)
	if err != nil {
		return 0, err
	}
	col, ok := reg.column(column)
	if !ok {
		return 0, &ConfigurationError{Kind: kind, Reason: fmt.Sprintf("unknown column %q", column)}
	}
	q, err := a.query(ctx, reg, filter, opts)
	if err != nil {
		return 0, err
	}
	var total int64
	err = q.Model(reg.newModel()).
		Select("COALESCE(SUM(?), 0)", clause.Column{Table: clause.CurrentTable, Name: col}).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Create inserts record after stamping it with the bound tenant.
func (a *Accessor) Create(ctx context.Context, kind EntityKind, record Scoped) error {
	reg, err := a.resolve(kind, record)
	if err != nil {
		return err
	}
	if err := a.stamp(ctx, reg, record); err != nil {
		return err
	}
	return a.Conn(ctx).Create(record).Error
}

// Update applies updates to records of kind matching filter and returns the
// number of rows changed. tenant_id is immutable and is dropped from updates.
func (a *Accessor) Update(ctx context.Context, kind EntityKind, filter Filter, updates map[string]any) (int64, error) {
	reg, err := a.resolve(kind, nil)
	if err != nil {
		return 0, err
	}

	columns := make(map[string]any, len(updates))
	for key, value := range updates {
		if isTenantKey(key) {
			continue
		}
		col, ok := reg.column(key)
		if !ok {
			return 0, &ConfigurationError{Kind: kind, Reason: fmt.Sprintf("unknown update field %q", key)}
		}
		columns[col] = value
	}
	if len(columns) == 0 {
		return 0, nil
	}

	q, err := a.query(ctx, reg, filter, nil)
	if err != nil {
		return 0, err
	}
	result := q.Model(reg.newModel()).Updates(columns)
	return result.RowsAffected, result.Error
}

// Delete removes records of kind matching filter and returns the number of
// rows removed.
func (a *Accessor) Delete(ctx context.Context, kind EntityKind, filter Filter) (int64, error) {
	reg, err := a.resolve(kind, nil)
	if err != nil {
		return 0, err
	}
	q, err := a.query(ctx, reg, filter, nil)
	if err != nil {
		return 0, err
	}
	result := q.Delete(reg.newModel())
	return result.RowsAffected, result.Error
}

// Transaction runs fn with an accessor bound the same way but sharing one
// database transaction. Returning an error rolls back.
func (a *Accessor) Transaction(ctx context.Context, fn func(tx *Accessor) error) error {
	return a.Conn(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Accessor{
			factory:  a.factory,
			db:       tx,
			tenantID: a.tenantID,
			unscoped: a.unscoped,
		})
	})
}

func (a *Accessor) resolve(kind EntityKind, dest any) (*Registration, error) {
	reg, err := a.factory.registry.Lookup(kind)
	if err != nil {
		return nil, err
	}
	if dest != nil && !reg.accepts(dest) {
		return nil, &ConfigurationError{
			Kind:   kind,
			Reason: fmt.Sprintf("destination %T does not hold %s", dest, reg.modelType),
		}
	}
	return reg, nil
}

// query builds the scoped statement. The bound tenant is always the first
// condition; tenant keys in filter are ignored unless the accessor is
// unscoped.
func (a *Accessor) query(ctx context.Context, reg *Registration, filter Filter, opts []QueryOption) (*gorm.DB, error) {
	exprs := make([]clause.Expression, 0, len(filter)+1)
	if !a.unscoped {
		exprs = append(exprs, columnCondition(TenantColumn, a.tenantID))
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !a.unscoped && isTenantKey(key) {
			continue
		}
		col, ok := reg.column(key)
		if !ok {
			return nil, &ConfigurationError{Kind: reg.Kind, Reason: fmt.Sprintf("unknown filter field %q", key)}
		}
		exprs = append(exprs, columnCondition(col, filter[key]))
	}

	q := a.Conn(ctx).Table(reg.Table)
	if len(exprs) > 0 {
		q = q.Clauses(clause.Where{Exprs: exprs})
	}

	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.apply(q, reg)
}

func columnCondition(col string, value any) clause.Expression {
	column := clause.Column{Table: clause.CurrentTable, Name: col}
	if value != nil {
		rv := reflect.ValueOf(value)
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
			values := make([]any, rv.Len())
			for i := range values {
				values[i] = rv.Index(i).Interface()
			}
			return clause.IN{Column: column, Values: values}
		}
	}
	return clause.Eq{Column: column, Value: value}
}

func (a *Accessor) stamp(ctx context.Context, reg *Registration, record Scoped) error {
	payload := record.GetTenantID()

	if a.unscoped {
		if payload == uuid.Nil {
			return fmt.Errorf("%s create through unscoped accessor: %w", reg.Kind, ErrTenantRequired)
		}
		return nil
	}

	if payload != uuid.Nil && payload != a.tenantID {
		policy := a.factory.stamp
		metrics.TenantStampCorrectionsTotal.WithLabelValues(string(reg.Kind), policy.String()).Inc()
		if policy == StampStrict {
			return &TenantMismatchError{Kind: reg.Kind, Bound: a.tenantID, Payload: payload}
		}
		logger.WithLogger(ctx, a.factory.logger).Warn("create payload named another tenant, overwriting",
			zap.String("kind", string(reg.Kind)),
			zap.String("bound_tenant_id", a.tenantID.String()),
			zap.String("payload_tenant_id", payload.String()),
		)
	}

	record.SetTenantID(a.tenantID)
	return nil
}

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(filepath.Dir(file))+"/"+filepath.Base(file), line)
}
