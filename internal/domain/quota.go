// Package domain contains core business types and interfaces.
//
// This file defines usage quota types: per-user counters for a resource over
// a period, and the status reported by quota checks.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResourceType tags a metered resource.
type ResourceType string

const (
	ResourceDailyPractice   ResourceType = "daily_practice"
	ResourceDailyAIChat     ResourceType = "daily_ai_chat"
	ResourceTotalVocabulary ResourceType = "total_vocabulary"
)

// IsDaily reports whether the resource resets every calendar day.
func (r ResourceType) IsDaily() bool {
	return strings.HasPrefix(string(r), "daily_")
}

// Valid reports whether r is a known resource type.
func (r ResourceType) Valid() bool {
	switch r {
	case ResourceDailyPractice, ResourceDailyAIChat, ResourceTotalVocabulary:
		return true
	}
	return false
}

// UsageQuota is one counter row. LimitCount nil means unlimited.
// PeriodEnd is nil for non-daily counters.
type UsageQuota struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ResourceType ResourceType
	UsedCount    int
	LimitCount   *int
	PeriodStart  time.Time
	PeriodEnd    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// QuotaStatus answers "can this user act now?". Limit and Remaining are nil
// when no limit applies.
type QuotaStatus struct {
	CanUse    bool
	Used      int
	Limit     *int
	Remaining *int
	ResetAt   *time.Time
}

// UnlimitedQuota is the status for a resource with no cap.
func UnlimitedQuota(used int) QuotaStatus {
	return QuotaStatus{CanUse: true, Used: used}
}

// ClosedQuota is the fail-closed status returned on storage errors.
func ClosedQuota() QuotaStatus {
	return QuotaStatus{CanUse: false, Used: 0, Limit: IntPtr(0), Remaining: IntPtr(0)}
}

// StatusOf computes the status of a quota row.
func (q *UsageQuota) StatusOf() QuotaStatus {
	st := QuotaStatus{Used: q.UsedCount, ResetAt: q.PeriodEnd}
	if q.LimitCount == nil {
		st.CanUse = true
		return st
	}
	limit := *q.LimitCount
	remaining := limit - q.UsedCount
	if remaining < 0 {
		remaining = 0
	}
	st.Limit = IntPtr(limit)
	st.Remaining = IntPtr(remaining)
	st.CanUse = q.UsedCount < limit
	return st
}

// DayBounds returns the first and last instant of the calendar day containing
// now in loc. The end is one millisecond before the next midnight.
func DayBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	t := now.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}
