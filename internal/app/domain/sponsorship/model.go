// Package sponsorship defines the period-scoped subsidy budget.
package sponsorship

import "time"

// Budget tracks the subsidy funds of one period. Remaining is mutated only
// by atomic debit under the same lock that reads it; 0 <= Remaining <= Total
// holds at all times.
type Budget struct {
	PeriodID  string    `json:"period_id"`
	Total     int64     `json:"total"`
	Remaining int64     `json:"remaining"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Spent returns the amount already consumed in the period.
func (b Budget) Spent() int64 { return b.Total - b.Remaining }
