// Package authz defines user authorization records.
package authz

import "time"

// Plan names a grant duration.
type Plan string

const (
	PlanMonthly   Plan = "1month"
	PlanQuarterly Plan = "3months"
)

// Duration returns the wall-clock span the plan grants.
func (p Plan) Duration() (time.Duration, bool) {
	switch p {
	case PlanMonthly:
		return 30 * 24 * time.Hour, true
	case PlanQuarterly:
		return 90 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// Authorization grants a user access to the collector for a bounded period.
type Authorization struct {
	ID           string    `db:"id" json:"id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	Plan         Plan      `db:"plan" json:"plan"`
	GrantedAt    time.Time `db:"granted_at" json:"granted_at"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	ReminderSent bool      `db:"reminder_sent" json:"reminder_sent"`
}

// Active reports whether the grant covers the given instant.
func (a *Authorization) Active(now time.Time) bool {
	return now.Before(a.ExpiresAt)
}
