package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries identity and timestamps shared by aggregates
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Touch bumps UpdatedAt.
func (e *BaseEntity) Touch(now time.Time) {
	e.UpdatedAt = now
}

// BaseAggregateRoot adds an optimistic-lock version to BaseEntity.
// Repositories compare Version on save and bump it on success.
type BaseAggregateRoot struct {
	BaseEntity
	Version int
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// NewBaseAggregateRootAt creates a new aggregate root at version 1 with a
// generated ID stamped at now.
func NewBaseAggregateRootAt(now time.Time) BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Version:    1,
	}
}
