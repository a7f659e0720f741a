package gather

import (
	"errors"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"tradelab/internal/domain"
	"tradelab/internal/util"
)

// settleHour and settleMinute mark when a US session's daily bar is final,
// after extended hours have closed.
const (
	settleHour   = 20
	settleMinute = 5
)

// SessionCalendar reports the most recent finished trading day.
type SessionCalendar interface {
	LatestFinishedTradingDay(now time.Time) (time.Time, error)
}

// latestFinishedDay picks the last calendar day whose session has settled by
// now. Calendar dates are exchange-local (New York) dates.
func latestFinishedDay(days []alpaca.CalendarDay, now time.Time) (time.Time, error) {
	if len(days) == 0 {
		return time.Time{}, errors.New("no trading days returned from calendar")
	}

	et := util.NewTradingCalendar(domain.MarketUS).Location()
	local := now.In(et)
	today := local.Format(time.DateOnly)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), settleHour, settleMinute, 0, 0, et)

	for i := len(days) - 1; i >= 0; i-- {
		day := days[i]
		dayDate, err := time.Parse(time.DateOnly, day.Date)
		if err != nil {
			continue
		}
		if day.Date == today {
			if !local.Before(cutoff) {
				return dayDate, nil
			}
			continue
		}
		if day.Date < today {
			return dayDate, nil
		}
	}
	return time.Time{}, errors.New("could not determine latest finished trading day")
}

// ResolveEnd returns the end date for an ingestion run: the exchange
// calendar's latest finished session when available, otherwise the
// weekday approximation for market.
func ResolveEnd(cal SessionCalendar, market domain.Market, now time.Time) time.Time {
	if cal != nil {
		if day, err := cal.LatestFinishedTradingDay(now); err == nil {
			return day
		}
	}
	return util.NewTradingCalendar(market).LatestFinishedDay(now)
}
