package billing

import (
	"strings"
	"time"

	"github.com/lendsaas/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// UnlimitedLimit is the plan ceiling sentinel meaning "no limit"
const UnlimitedLimit int64 = -1

// Plan describes the limits and features a subscription grants.
// A resource kind absent from Limits is unlimited.
type Plan struct {
	shared.BaseAggregateRoot
	Code         string
	Name         string
	Limits       map[ResourceKind]int64
	Features     map[string]bool
	TrialDays    int
	MonthlyPrice decimal.Decimal
	Currency     string
	Active       bool
}

// NewPlan creates an active plan with no limits and no features
func NewPlan(code, name string, trialDays int, monthlyPrice decimal.Decimal, currency string) (*Plan, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, shared.NewDomainError("INVALID_PLAN_CODE", "Plan code cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, shared.NewDomainError("INVALID_PLAN_NAME", "Plan name cannot be empty")
	}
	if trialDays < 0 {
		return nil, shared.NewDomainError("INVALID_TRIAL_DAYS", "Trial days cannot be negative")
	}
	if monthlyPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Monthly price cannot be negative")
	}
	if currency == "" {
		currency = "USD"
	}

	return &Plan{
		BaseAggregateRoot: shared.NewBaseAggregateRootAt(time.Now()),
		Code:              code,
		Name:              name,
		Limits:            make(map[ResourceKind]int64),
		Features:          make(map[string]bool),
		TrialDays:         trialDays,
		MonthlyPrice:      monthlyPrice,
		Currency:          strings.ToUpper(currency),
		Active:            true,
	}, nil
}

// SetLimit sets the ceiling for a kind. Use UnlimitedLimit for no ceiling.
func (p *Plan) SetLimit(kind ResourceKind, limit int64) error {
	if !kind.IsValid() {
		return shared.NewDomainError("INVALID_RESOURCE_KIND", "Invalid resource kind: "+string(kind))
	}
	if limit < UnlimitedLimit {
		return shared.NewDomainError("INVALID_LIMIT", "Limit must be -1 (unlimited) or non-negative")
	}
	if p.Limits == nil {
		p.Limits = make(map[ResourceKind]int64)
	}
	p.Limits[kind] = limit
	return nil
}

// LimitFor returns the ceiling for kind and whether it is unlimited.
// Kinds the plan does not mention are unlimited.
func (p *Plan) LimitFor(kind ResourceKind) (limit int64, unlimited bool) {
	l, ok := p.Limits[kind]
	if !ok || l == UnlimitedLimit {
		return UnlimitedLimit, true
	}
	return l, false
}

// SetFeature toggles a feature flag on the plan
func (p *Plan) SetFeature(feature string, enabled bool) {
	if p.Features == nil {
		p.Features = make(map[string]bool)
	}
	p.Features[feature] = enabled
}

// HasFeature reports whether the plan enables a feature
func (p *Plan) HasFeature(feature string) bool {
	return p.Features[feature]
}

// TrialDuration returns the trial length
func (p *Plan) TrialDuration() time.Duration {
	return time.Duration(p.TrialDays) * 24 * time.Hour
}
