package license

import "time"

// StatusReport is the read-only license status surface consumed by the UI
// and CLI diagnostics. Building one never mutates cached state.
type StatusReport struct {
	State         State      `json:"state"`
	Reason        string     `json:"reason,omitempty"`
	PlanKey       PlanKey    `json:"plan_key,omitempty"`
	MaxSeats      int        `json:"max_seats,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	GraceDays     int        `json:"grace_days,omitempty"`
	DaysRemaining int        `json:"days_remaining,omitempty"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

// BuildStatusReport assembles a status report from an evaluation and the
// cached state it was derived from.
func BuildStatusReport(eval *Evaluation, cached *CachedState) *StatusReport {
	report := &StatusReport{
		State:         eval.State,
		Reason:        eval.Reason,
		DaysRemaining: eval.DaysRemaining,
	}

	if eval.Grant != nil {
		expiresAt := eval.Grant.ExpiresAt
		report.PlanKey = eval.Grant.PlanKey
		report.MaxSeats = eval.Grant.MaxSeats
		report.ExpiresAt = &expiresAt
		report.GraceDays = eval.Grant.GraceDays
	}

	if cached != nil && !cached.LastCheckedAt.IsZero() {
		lastChecked := cached.LastCheckedAt
		report.LastCheckedAt = &lastChecked
	}

	return report
}
