package util

import (
	"time"
	_ "time/tzdata" // exchange zones without a system zoneinfo

	"tradelab/internal/domain"
)

// TradingCalendar approximates exchange sessions for a market using
// weekdays and the regular closing time. It knows nothing about holidays;
// callers with access to an exchange calendar should prefer it.
type TradingCalendar struct {
	market   domain.Market
	loc      *time.Location
	closeHr  int
	closeMin int
}

// NewTradingCalendar creates a TradingCalendar for the given market. US
// sessions close at 16:00 New York time, CN sessions at 15:00 Shanghai time.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	tc := &TradingCalendar{market: market, closeHr: 16}
	name := "America/New_York"
	if market == domain.MarketCN {
		name = "Asia/Shanghai"
		tc.closeHr = 15
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		loc = time.UTC
	}
	tc.loc = loc
	return tc
}

// Location returns the exchange time zone.
func (tc *TradingCalendar) Location() *time.Location {
	return tc.loc
}

// IsTradingDay reports whether t falls on a weekday in exchange time.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	switch t.In(tc.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// SessionClose returns the regular close of the session on t's exchange date.
func (tc *TradingCalendar) SessionClose(t time.Time) time.Time {
	local := t.In(tc.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), tc.closeHr, tc.closeMin, 0, 0, tc.loc)
}

// LatestFinishedDay returns the date (midnight UTC) of the most recent
// trading day whose session closed at or before now.
func (tc *TradingCalendar) LatestFinishedDay(now time.Time) time.Time {
	day := now.In(tc.loc)
	if now.Before(tc.SessionClose(day)) {
		day = day.AddDate(0, 0, -1)
	}
	for !tc.IsTradingDay(day) {
		day = day.AddDate(0, 0, -1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}
