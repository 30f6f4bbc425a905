// Package billing provides domain models for usage metering, plan limits and
// subscription lifecycle in the multi-tenant lending platform.
//
// This package implements the billing bounded context, which is responsible for:
//   - Naming the metered resource kinds and classifying them as stock or flow
//   - Keying usage counters by calendar-month period
//   - Computing limit status against a tenant's plan
//   - Driving the subscription state machine
//
// Key Aggregates:
//   - Plan: limits and features offered to subscribers
//   - Subscription: one per tenant, moves TRIALING -> ACTIVE -> PAST_DUE -> CANCELED
//
// Value Objects:
//   - ResourceKind: Enumeration of limited resources
//   - UsageSnapshot: Per-tenant, per-period counters
//   - LimitStatus: Current usage measured against a plan ceiling
//
// The billing domain integrates with:
//   - Identity domain: tenant status follows the subscription state
//   - Tenant-scoped persistence: stock counts are recomputed from owning tables
package billing
