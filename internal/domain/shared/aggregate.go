package shared

import (
	"time"

	"github.com/google/uuid"
)

// Entity is the base interface for all domain entities
type Entity interface {
	GetID() uuid.UUID
	GetCreatedAt() time.Time
	GetUpdatedAt() time.Time
}

// BaseEntity provides common fields for all entities
type BaseEntity struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *BaseEntity) GetID() uuid.UUID        { return e.ID }
func (e *BaseEntity) GetCreatedAt() time.Time { return e.CreatedAt }
func (e *BaseEntity) GetUpdatedAt() time.Time { return e.UpdatedAt }

// NewBaseEntity creates a new base entity with generated ID
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot provides common fields for aggregate roots.
// Version backs optimistic locking: every persisted mutation bumps it by one.
type BaseAggregateRoot struct {
	BaseEntity
	Version      int           `gorm:"not null;default:1"`
	domainEvents []DomainEvent `gorm:"-"`
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// AddDomainEvent adds a domain event to be published
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// NewBaseAggregateRoot creates a new base aggregate root
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// ScopedAggregateRoot is an aggregate owned exclusively by one TenantScope
type ScopedAggregateRoot struct {
	BaseAggregateRoot
	AgencyID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	SubAccountID *uuid.UUID `gorm:"type:uuid;index"`
	CreatedBy    uuid.UUID  `gorm:"type:uuid"`
}

// NewScopedAggregateRoot creates a new aggregate owned by scope
func NewScopedAggregateRoot(scope TenantScope, createdBy uuid.UUID) ScopedAggregateRoot {
	return ScopedAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		AgencyID:          scope.AgencyID,
		SubAccountID:      scope.SubAccountID,
		CreatedBy:         createdBy,
	}
}

// Scope returns the owning scope
func (a *ScopedAggregateRoot) Scope() TenantScope {
	return TenantScope{AgencyID: a.AgencyID, SubAccountID: a.SubAccountID}
}

// CheckScope returns ErrScopeMismatch unless the aggregate belongs to scope
func (a *ScopedAggregateRoot) CheckScope(scope TenantScope) error {
	if !scope.Matches(a.AgencyID, a.SubAccountID) {
		return ErrScopeMismatch
	}
	return nil
}
