package billing

const (
	// NearLimitPercent is the usage percentage at which a tenant is warned
	NearLimitPercent float64 = 80
	// OverLimitPercent is the usage percentage at which creation is blocked
	OverLimitPercent float64 = 100
)

// LimitThresholds are the crossing points that trigger limit warnings, highest first
var LimitThresholds = []int{100, 80}

// LimitStatus is a tenant's consumption of one resource measured against its plan
type LimitStatus struct {
	Kind        ResourceKind `json:"kind"`
	Current     int64        `json:"current"`
	Limit       int64        `json:"limit"`
	PercentUsed float64      `json:"percent_used"`
	IsUnlimited bool         `json:"is_unlimited"`
	IsNearLimit bool         `json:"is_near_limit"`
	IsOverLimit bool         `json:"is_over_limit"`
	// Unknown is set when usage could not be read and the failure policy allowed the action
	Unknown bool `json:"unknown,omitempty"`
}

// NewLimitStatus computes the status for current usage against limit.
// A limit of UnlimitedLimit yields an unlimited status that never blocks.
// A limit of 0 is always full.
func NewLimitStatus(kind ResourceKind, current, limit int64) *LimitStatus {
	if limit == UnlimitedLimit {
		return UnlimitedStatus(kind, current)
	}

	var percent float64
	if limit <= 0 {
		percent = 100
	} else {
		// multiply before dividing so 8 of 10 is exactly 80
		percent = float64(current) * 100 / float64(limit)
	}

	return &LimitStatus{
		Kind:        kind,
		Current:     current,
		Limit:       limit,
		PercentUsed: percent,
		IsNearLimit: percent >= NearLimitPercent,
		IsOverLimit: percent >= OverLimitPercent,
	}
}

// UnlimitedStatus returns the status of a kind without a ceiling
func UnlimitedStatus(kind ResourceKind, current int64) *LimitStatus {
	return &LimitStatus{
		Kind:        kind,
		Current:     current,
		Limit:       UnlimitedLimit,
		IsUnlimited: true,
	}
}

// UnknownStatus returns an allowing status used when usage is unreadable under fail-open
func UnknownStatus(kind ResourceKind, limit int64) *LimitStatus {
	return &LimitStatus{
		Kind:        kind,
		Limit:       limit,
		IsUnlimited: limit == UnlimitedLimit,
		Unknown:     true,
	}
}

// Blocks reports whether the status forbids further consumption
func (s *LimitStatus) Blocks() bool {
	return !s.IsUnlimited && !s.Unknown && s.IsOverLimit
}

// CrossedThreshold returns the highest warning threshold reached (100 or 80), or 0.
func (s *LimitStatus) CrossedThreshold() int {
	if s.IsUnlimited || s.Unknown {
		return 0
	}
	for _, th := range LimitThresholds {
		if s.PercentUsed >= float64(th) {
			return th
		}
	}
	return 0
}

// Remaining returns how many units can still be consumed (UnlimitedLimit if unlimited)
func (s *LimitStatus) Remaining() int64 {
	if s.IsUnlimited {
		return UnlimitedLimit
	}
	if s.Current >= s.Limit {
		return 0
	}
	return s.Limit - s.Current
}
