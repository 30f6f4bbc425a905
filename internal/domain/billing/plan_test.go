package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlan(t *testing.T, trialDays int) *Plan {
	t.Helper()
	plan, err := NewPlan("starter", "Starter", trialDays, decimal.NewFromInt(49), "usd")
	require.NoError(t, err)
	return plan
}

func TestNewPlan(t *testing.T) {
	t.Run("creates plan successfully", func(t *testing.T) {
		plan := newTestPlan(t, 14)

		assert.Equal(t, "starter", plan.Code)
		assert.Equal(t, "USD", plan.Currency)
		assert.True(t, plan.Active)
		assert.True(t, plan.MonthlyPrice.Equal(decimal.NewFromInt(49)))
		assert.Empty(t, plan.Limits)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		_, err := NewPlan("", "Starter", 14, decimal.Zero, "")
		assert.Contains(t, err.Error(), "code cannot be empty")

		_, err = NewPlan("starter", "", 14, decimal.Zero, "")
		assert.Contains(t, err.Error(), "name cannot be empty")

		_, err = NewPlan("starter", "Starter", -1, decimal.Zero, "")
		assert.Contains(t, err.Error(), "Trial days")

		_, err = NewPlan("starter", "Starter", 0, decimal.NewFromInt(-1), "")
		assert.Contains(t, err.Error(), "price cannot be negative")
	})
}

func TestPlan_Limits(t *testing.T) {
	plan := newTestPlan(t, 0)
	require.NoError(t, plan.SetLimit(ResourceLoans, 5))
	require.NoError(t, plan.SetLimit(ResourceUsers, UnlimitedLimit))

	limit, unlimited := plan.LimitFor(ResourceLoans)
	assert.Equal(t, int64(5), limit)
	assert.False(t, unlimited)

	_, unlimited = plan.LimitFor(ResourceUsers)
	assert.True(t, unlimited)

	t.Run("absent kind is unlimited", func(t *testing.T) {
		limit, unlimited := plan.LimitFor(ResourceSMS)
		assert.True(t, unlimited)
		assert.Equal(t, UnlimitedLimit, limit)
	})

	t.Run("rejects invalid limits", func(t *testing.T) {
		assert.Error(t, plan.SetLimit(ResourceLoans, -2))
		assert.Error(t, plan.SetLimit(ResourceKind("branches"), 3))
	})
}

func TestPlan_Features(t *testing.T) {
	plan := newTestPlan(t, 0)
	plan.SetFeature("whatsapp_reminders", true)

	assert.True(t, plan.HasFeature("whatsapp_reminders"))
	assert.False(t, plan.HasFeature("custom_reports"))
}
