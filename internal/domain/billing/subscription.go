package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lendsaas/backend/internal/domain/shared"
)

// SubscriptionStatus is the lifecycle state of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing SubscriptionStatus = "TRIALING"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
)

// subscriptionTransitions lists the legal moves of the state machine.
// CANCELED is terminal; re-subscribing replaces the record.
var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusTrialing: {SubscriptionStatusActive, SubscriptionStatusCanceled},
	SubscriptionStatusActive:   {SubscriptionStatusActive, SubscriptionStatusPastDue, SubscriptionStatusCanceled},
	SubscriptionStatusPastDue:  {SubscriptionStatusActive, SubscriptionStatusCanceled},
}

func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is known
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusTrialing, SubscriptionStatusActive,
		SubscriptionStatusPastDue, SubscriptionStatusCanceled:
		return true
	}
	return false
}

// IsEntitled reports whether a subscription in this state grants plan limits
func (s SubscriptionStatus) IsEntitled() bool {
	switch s {
	case SubscriptionStatusTrialing, SubscriptionStatusActive, SubscriptionStatusPastDue:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving to target
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// EntitledSubscriptionStatuses returns the statuses under which plan limits apply
func EntitledSubscriptionStatuses() []SubscriptionStatus {
	return []SubscriptionStatus{
		SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
	}
}

// SweepOutcome is the result of applying time-based transitions to a subscription
type SweepOutcome int

const (
	SweepNone SweepOutcome = iota
	SweepPastDue
	SweepCanceled
)

// Subscription binds a tenant to a plan. There is at most one per tenant.
// Version is maintained by the repository for optimistic locking.
type Subscription struct {
	shared.BaseAggregateRoot
	TenantID           uuid.UUID
	PlanID             uuid.UUID
	Status             SubscriptionStatus
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEndsAt        *time.Time
	CancelAtPeriodEnd  bool
	PastDueSince       *time.Time
	CanceledAt         *time.Time
	// ExternalRef is the billing provider's subscription id
	ExternalRef string
}

// NewTrialSubscription starts a trial of plan for a tenant at now.
// The trial occupies the first billing period.
func NewTrialSubscription(tenantID uuid.UUID, plan *Plan, now time.Time) (*Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID is required")
	}
	if plan == nil {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan is required")
	}
	if !plan.Active {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan is not available for new subscriptions")
	}

	trialEnds := now.AddDate(0, 0, plan.TrialDays)
	return &Subscription{
		BaseAggregateRoot:  shared.NewBaseAggregateRootAt(now),
		TenantID:           tenantID,
		PlanID:             plan.ID,
		Status:             SubscriptionStatusTrialing,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   trialEnds,
		TrialEndsAt:        &trialEnds,
	}, nil
}

// ConfirmPeriod applies a payment confirmation: the subscription becomes ACTIVE
// and advances one monthly cycle. Coming out of a trial the cycle starts now;
// renewals and late payments continue from the previous period end.
func (s *Subscription) ConfirmPeriod(now time.Time) error {
	if err := s.transition(SubscriptionStatusActive); err != nil {
		return err
	}

	start := s.CurrentPeriodEnd
	if s.Status == SubscriptionStatusTrialing || start.IsZero() {
		start = now
	}
	s.Status = SubscriptionStatusActive
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = start.AddDate(0, 1, 0)
	s.PastDueSince = nil
	s.Touch(now)
	return nil
}

// ChangePlan swaps the plan with immediate effect and no proration
func (s *Subscription) ChangePlan(plan *Plan, now time.Time) error {
	if plan == nil {
		return shared.NewDomainError("INVALID_PLAN", "Plan is required")
	}
	if s.Status == SubscriptionStatusCanceled {
		return shared.NewDomainError("INVALID_STATE", "Cannot change plan of a canceled subscription")
	}
	if !plan.Active {
		return shared.NewDomainError("INVALID_PLAN", "Plan is not available for new subscriptions")
	}
	if s.PlanID == plan.ID {
		return nil
	}
	s.PlanID = plan.ID
	s.Touch(now)
	return nil
}

// MarkPastDue records a missed payment. Repeated calls keep the original PastDueSince.
func (s *Subscription) MarkPastDue(now time.Time) error {
	if s.Status == SubscriptionStatusPastDue {
		return nil
	}
	if err := s.transition(SubscriptionStatusPastDue); err != nil {
		return err
	}
	s.Status = SubscriptionStatusPastDue
	s.PastDueSince = &now
	s.Touch(now)
	return nil
}

// Cancel moves the subscription to the terminal CANCELED state. Idempotent.
func (s *Subscription) Cancel(now time.Time) error {
	if s.Status == SubscriptionStatusCanceled {
		return nil
	}
	if err := s.transition(SubscriptionStatusCanceled); err != nil {
		return err
	}
	s.Status = SubscriptionStatusCanceled
	s.CanceledAt = &now
	s.CancelAtPeriodEnd = false
	s.Touch(now)
	return nil
}

// ScheduleCancel flags the subscription to end at the current period end
func (s *Subscription) ScheduleCancel(now time.Time) error {
	if s.Status == SubscriptionStatusCanceled {
		return shared.NewDomainError("INVALID_STATE", "Subscription is already canceled")
	}
	s.CancelAtPeriodEnd = true
	s.Touch(now)
	return nil
}

// Sweep applies the time-based transitions due at now: an ACTIVE subscription
// past its period end becomes PAST_DUE (or CANCELED when cancellation was
// scheduled), a PAST_DUE one past the grace window is CANCELED, and an
// expired trial is CANCELED.
func (s *Subscription) Sweep(now time.Time, grace time.Duration) (SweepOutcome, error) {
	switch s.Status {
	case SubscriptionStatusActive:
		if now.Before(s.CurrentPeriodEnd) {
			return SweepNone, nil
		}
		if s.CancelAtPeriodEnd {
			return SweepCanceled, s.Cancel(now)
		}
		return SweepPastDue, s.MarkPastDue(now)
	case SubscriptionStatusPastDue:
		since := s.CurrentPeriodEnd
		if s.PastDueSince != nil {
			since = *s.PastDueSince
		}
		if now.Before(since.Add(grace)) {
			return SweepNone, nil
		}
		return SweepCanceled, s.Cancel(now)
	case SubscriptionStatusTrialing:
		if s.TrialEndsAt == nil || now.Before(*s.TrialEndsAt) {
			return SweepNone, nil
		}
		return SweepCanceled, s.Cancel(now)
	}
	return SweepNone, nil
}

// ExpiresWithin reports whether an ACTIVE subscription's period ends in (now, now+window]
func (s *Subscription) ExpiresWithin(now time.Time, window time.Duration) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	return s.CurrentPeriodEnd.After(now) && !s.CurrentPeriodEnd.After(now.Add(window))
}

// IsEntitled reports whether the subscription currently grants plan limits
func (s *Subscription) IsEntitled() bool {
	return s.Status.IsEntitled()
}

// LinkExternal records the billing provider's subscription id
func (s *Subscription) LinkExternal(ref string, now time.Time) {
	if s.ExternalRef == ref {
		return
	}
	s.ExternalRef = ref
	s.Touch(now)
}

func (s *Subscription) transition(target SubscriptionStatus) error {
	if !s.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Cannot transition subscription from %s to %s", s.Status, target))
	}
	return nil
}
