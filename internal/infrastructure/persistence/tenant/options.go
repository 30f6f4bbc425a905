package tenant

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QueryOption refines a Read, First, Count or Sum.
type QueryOption func(*queryOptions)

type queryOptions struct {
	order      []orderBy
	limit      int
	offset     int
	activeOnly bool
}

type orderBy struct {
	field string
	desc  bool
}

// OrderBy sorts by field; repeatable.
func OrderBy(field string, desc bool) QueryOption {
	return func(o *queryOptions) { o.order = append(o.order, orderBy{field: field, desc: desc}) }
}

// Limit caps the number of rows returned.
func Limit(n int) QueryOption {
	return func(o *queryOptions) { o.limit = n }
}

// Offset skips n rows.
func Offset(n int) QueryOption {
	return func(o *queryOptions) { o.offset = n }
}

// ActiveOnly applies the kind's Active scope, i.e. only rows that count
// toward its stock metric.
func ActiveOnly() QueryOption {
	return func(o *queryOptions) { o.activeOnly = true }
}

func (o queryOptions) apply(q *gorm.DB, reg *Registration) (*gorm.DB, error) {
	if o.activeOnly && reg.Active != nil {
		q = q.Scopes(reg.Active)
	}
	for _, ob := range o.order {
		col, ok := reg.column(ob.field)
		if !ok {
			return nil, &ConfigurationError{Kind: reg.Kind, Reason: fmt.Sprintf("unknown order field %q", ob.field)}
		}
		q = q.Order(clause.OrderByColumn{Column: clause.Column{Table: clause.CurrentTable, Name: col}, Desc: ob.desc})
	}
	if o.limit > 0 {
		q = q.Limit(o.limit)
	}
	if o.offset > 0 {
		q = q.Offset(o.offset)
	}
	return q, nil
}
