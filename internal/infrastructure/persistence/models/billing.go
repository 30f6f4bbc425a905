package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/lendsaas/backend/internal/domain/billing"
)

// PlanModel is the persistence model for the Plan aggregate. Limits and
// features are stored as JSON objects keyed by resource kind and feature name.
type PlanModel struct {
	AggregateModel
	Code         string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name         string          `gorm:"type:varchar(100);not null"`
	Limits       datatypes.JSON  `gorm:"type:jsonb;not null;default:'{}'"`
	Features     datatypes.JSON  `gorm:"type:jsonb;not null;default:'{}'"`
	TrialDays    int             `gorm:"not null;default:0"`
	MonthlyPrice decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0"`
	Currency     string          `gorm:"type:varchar(3);not null;default:'USD'"`
	Active       bool            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PlanModel) TableName() string {
	return "plans"
}

// ToDomain converts the persistence model to a domain Plan. Unknown resource
// kinds in the stored limits are skipped.
func (m *PlanModel) ToDomain() (*billing.Plan, error) {
	plan := &billing.Plan{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		Code:              m.Code,
		Name:              m.Name,
		Limits:            make(map[billing.ResourceKind]int64),
		Features:          make(map[string]bool),
		TrialDays:         m.TrialDays,
		MonthlyPrice:      m.MonthlyPrice,
		Currency:          m.Currency,
		Active:            m.Active,
	}

	if len(m.Limits) > 0 {
		var raw map[string]int64
		if err := json.Unmarshal(m.Limits, &raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			if kind := billing.ResourceKind(k); kind.IsValid() {
				plan.Limits[kind] = v
			}
		}
	}
	if len(m.Features) > 0 {
		if err := json.Unmarshal(m.Features, &plan.Features); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// FromDomain populates the persistence model from a domain Plan.
func (m *PlanModel) FromDomain(p *billing.Plan) error {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.Code = p.Code
	m.Name = p.Name
	m.TrialDays = p.TrialDays
	m.MonthlyPrice = p.MonthlyPrice
	m.Currency = p.Currency
	m.Active = p.Active

	limits := make(map[string]int64, len(p.Limits))
	for k, v := range p.Limits {
		limits[string(k)] = v
	}
	limitsJSON, err := json.Marshal(limits)
	if err != nil {
		return err
	}
	features := p.Features
	if features == nil {
		features = map[string]bool{}
	}
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return err
	}
	m.Limits = datatypes.JSON(limitsJSON)
	m.Features = datatypes.JSON(featuresJSON)
	return nil
}

// SubscriptionModel is the persistence model for the Subscription aggregate.
// The unique tenant_id index enforces one subscription per tenant.
type SubscriptionModel struct {
	AggregateModel
	TenantID           uuid.UUID                  `gorm:"type:uuid;not null;uniqueIndex"`
	PlanID             uuid.UUID                  `gorm:"type:uuid;not null;index"`
	Status             billing.SubscriptionStatus `gorm:"type:varchar(20);not null;index"`
	CurrentPeriodStart time.Time                  `gorm:"not null"`
	CurrentPeriodEnd   time.Time                  `gorm:"not null;index"`
	TrialEndsAt        *time.Time
	CancelAtPeriodEnd  bool `gorm:"not null;default:false"`
	PastDueSince       *time.Time
	CanceledAt         *time.Time
	ExternalRef        string `gorm:"type:varchar(100);index"`
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription.
func (m *SubscriptionModel) ToDomain() *billing.Subscription {
	return &billing.Subscription{
		BaseAggregateRoot:  m.ToDomainAggregateRoot(),
		TenantID:           m.TenantID,
		PlanID:             m.PlanID,
		Status:             m.Status,
		CurrentPeriodStart: m.CurrentPeriodStart,
		CurrentPeriodEnd:   m.CurrentPeriodEnd,
		TrialEndsAt:        m.TrialEndsAt,
		CancelAtPeriodEnd:  m.CancelAtPeriodEnd,
		PastDueSince:       m.PastDueSince,
		CanceledAt:         m.CanceledAt,
		ExternalRef:        m.ExternalRef,
	}
}

// FromDomain populates the persistence model from a domain Subscription.
func (m *SubscriptionModel) FromDomain(s *billing.Subscription) {
	m.FromDomainAggregateRoot(s.BaseAggregateRoot)
	m.TenantID = s.TenantID
	m.PlanID = s.PlanID
	m.Status = s.Status
	m.CurrentPeriodStart = s.CurrentPeriodStart
	m.CurrentPeriodEnd = s.CurrentPeriodEnd
	m.TrialEndsAt = s.TrialEndsAt
	m.CancelAtPeriodEnd = s.CancelAtPeriodEnd
	m.PastDueSince = s.PastDueSince
	m.CanceledAt = s.CanceledAt
	m.ExternalRef = s.ExternalRef
}

// SubscriptionModelFromDomain creates a new persistence model from a domain Subscription.
func SubscriptionModelFromDomain(s *billing.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{}
	m.FromDomain(s)
	return m
}

// UsageSnapshotModel holds one tenant's counters for one "YYYY-MM" period.
// Column names match billing.ResourceKind.Column.
type UsageSnapshotModel struct {
	TenantID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Period    string    `gorm:"type:varchar(7);primaryKey"`
	Users     int64     `gorm:"column:users;not null;default:0"`
	Loans     int64     `gorm:"column:loans;not null;default:0"`
	Clients   int64     `gorm:"column:clients;not null;default:0"`
	Storage   int64     `gorm:"column:storage;not null;default:0"`
	APICalls  int64     `gorm:"column:api_calls;not null;default:0"`
	SMS       int64     `gorm:"column:sms;not null;default:0"`
	WhatsApp  int64     `gorm:"column:whatsapp;not null;default:0"`
	Reports   int64     `gorm:"column:reports;not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (UsageSnapshotModel) TableName() string {
	return "usage_snapshots"
}

// ToDomain converts the row to a domain UsageSnapshot.
func (m *UsageSnapshotModel) ToDomain() *billing.UsageSnapshot {
	s := billing.NewUsageSnapshot(m.TenantID, m.Period)
	s.UpdatedAt = m.UpdatedAt
	s.Set(billing.ResourceUsers, m.Users)
	s.Set(billing.ResourceLoans, m.Loans)
	s.Set(billing.ResourceClients, m.Clients)
	s.Set(billing.ResourceStorage, m.Storage)
	s.Set(billing.ResourceAPICalls, m.APICalls)
	s.Set(billing.ResourceSMS, m.SMS)
	s.Set(billing.ResourceWhatsApp, m.WhatsApp)
	s.Set(billing.ResourceReports, m.Reports)
	return s
}
