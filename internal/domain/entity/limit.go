package entity

import "time"

// DailyLimit caps how much may be spent in one category per day before a
// submission needs CFO approval
type DailyLimit struct {
	Category  string    `json:"category" validate:"required"`
	Limit     float64   `json:"limit" validate:"gte=0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LimitChange is one entry in the daily limit change history
type LimitChange struct {
	ID        int64     `json:"id"`
	Category  string    `json:"category"`
	OldLimit  float64   `json:"old_limit"`
	NewLimit  float64   `json:"new_limit"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
}

// CategoryUsage is one category's spend against its limit on a given day
type CategoryUsage struct {
	Category  string  `json:"category"`
	Day       Date    `json:"day"`
	Limit     float64 `json:"limit"`
	Spent     float64 `json:"spent"`
	Remaining float64 `json:"remaining"`
}

// DailyBudget is the input to the daily limit rule. HasLimit is false when no
// limit is configured for the category.
type DailyBudget struct {
	Category   string
	Limit      float64
	HasLimit   bool
	TodaySpend float64
}
