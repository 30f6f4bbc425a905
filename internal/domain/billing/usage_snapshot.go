package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UsageSnapshot holds a tenant's counters for one calendar-month period.
// Rows are created lazily by the first increment of the period.
type UsageSnapshot struct {
	TenantID  uuid.UUID
	Period    string
	Counters  map[ResourceKind]int64
	UpdatedAt time.Time
}

// NewUsageSnapshot returns an empty snapshot
func NewUsageSnapshot(tenantID uuid.UUID, period string) *UsageSnapshot {
	return &UsageSnapshot{
		TenantID: tenantID,
		Period:   period,
		Counters: make(map[ResourceKind]int64),
	}
}

// Get returns the counter for kind; missing counters read as zero
func (s *UsageSnapshot) Get(kind ResourceKind) int64 {
	if s == nil {
		return 0
	}
	return s.Counters[kind]
}

// Set stores a counter value
func (s *UsageSnapshot) Set(kind ResourceKind, value int64) {
	if s.Counters == nil {
		s.Counters = make(map[ResourceKind]int64)
	}
	s.Counters[kind] = value
}

// GlobalUsage is a cross-tenant rollup for platform operators
type GlobalUsage struct {
	Period                string                       `json:"period"`
	TenantsByStatus       map[string]int64             `json:"tenants_by_status"`
	SubscriptionsByStatus map[SubscriptionStatus]int64 `json:"subscriptions_by_status"`
	EntitledTenants       int64                        `json:"entitled_tenants"`
	MonthlyRecurring      decimal.Decimal              `json:"monthly_recurring_revenue"`
	PeriodTotals          map[ResourceKind]int64       `json:"period_totals"`
	RecordCounts          map[string]int64             `json:"record_counts"`
	GeneratedAt           time.Time                    `json:"generated_at"`
}
