package domain

import (
	"encoding/json"
	"time"
)

const (
	DefaultDailyLimit  = 20000
	DefaultHourlyLimit = 500
)

// QuotaState mirrors the remote API's daily and hourly request budgets.
type QuotaState struct {
	DailyLimit      int
	DailyRemaining  int
	DailyReset      time.Time
	HourlyLimit     int
	HourlyRemaining int
	HourlyReset     time.Time
}

// DefaultQuotaState permits requests until the first response corrects it.
func DefaultQuotaState(now time.Time) QuotaState {
	return QuotaState{
		DailyLimit:      DefaultDailyLimit,
		DailyRemaining:  DefaultDailyLimit,
		DailyReset:      now.Add(24 * time.Hour),
		HourlyLimit:     DefaultHourlyLimit,
		HourlyRemaining: DefaultHourlyLimit,
		HourlyReset:     now.Add(time.Hour),
	}
}

// quotaFile is the persisted form; resets are unix seconds.
type quotaFile struct {
	DailyLimit      int   `json:"daily_limit"`
	DailyRemaining  int   `json:"daily_remaining"`
	DailyReset      int64 `json:"daily_reset"`
	HourlyLimit     int   `json:"hourly_limit"`
	HourlyRemaining int   `json:"hourly_remaining"`
	HourlyReset     int64 `json:"hourly_reset"`
}

func (q QuotaState) MarshalJSON() ([]byte, error) {
	return json.Marshal(quotaFile{
		DailyLimit:      q.DailyLimit,
		DailyRemaining:  q.DailyRemaining,
		DailyReset:      unixOrZero(q.DailyReset),
		HourlyLimit:     q.HourlyLimit,
		HourlyRemaining: q.HourlyRemaining,
		HourlyReset:     unixOrZero(q.HourlyReset),
	})
}

// UnmarshalJSON fills missing fields from the defaults so a truncated
// state file never yields a zero limit.
func (q *QuotaState) UnmarshalJSON(data []byte) error {
	f := quotaFile{
		DailyLimit:      DefaultDailyLimit,
		DailyRemaining:  DefaultDailyLimit,
		HourlyLimit:     DefaultHourlyLimit,
		HourlyRemaining: DefaultHourlyLimit,
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	*q = QuotaState{
		DailyLimit:      f.DailyLimit,
		DailyRemaining:  f.DailyRemaining,
		DailyReset:      timeOrZero(f.DailyReset),
		HourlyLimit:     f.HourlyLimit,
		HourlyRemaining: f.HourlyRemaining,
		HourlyReset:     timeOrZero(f.HourlyReset),
	}
	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
