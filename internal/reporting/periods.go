package reporting

import (
	"fmt"
	"time"
)

const (
	Period7Days  = "7days"
	Period30Days = "30days"
	PeriodMonth  = "month"
	PeriodYear   = "year"
)

// Window is a reporting range with the chart axis that covers it.
type Window struct {
	Period string
	From   time.Time
	To     time.Time
	Slots  []Slot
	Key    SaleKey
}

// StartOfDay is local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DashboardWindow covers the last seven days (default), the current month or
// the current year.
func DashboardWindow(period string, now time.Time, loc *time.Location) (Window, error) {
	today := StartOfDay(now, loc)
	switch period {
	case "", Period7Days:
		from := today.AddDate(0, 0, -6)
		return Window{Period: Period7Days, From: from, To: today.AddDate(0, 0, 1), Slots: daySlots(from, 7, weekdayLabel), Key: ByDay(loc)}, nil
	case PeriodMonth:
		from := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
		to := from.AddDate(0, 1, 0)
		days := int(to.Sub(from).Hours()/24 + 0.5)
		return Window{Period: PeriodMonth, From: from, To: to, Slots: daySlots(from, days, dayOfMonthLabel), Key: ByDay(loc)}, nil
	case PeriodYear:
		from := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc)
		slots := make([]Slot, 0, 12)
		for m := 0; m < 12; m++ {
			d := from.AddDate(0, m, 0)
			slots = append(slots, Slot{Key: d.Format("2006-01"), Label: monthLabels[d.Month()-1]})
		}
		return Window{Period: PeriodYear, From: from, To: from.AddDate(1, 0, 0), Slots: slots, Key: ByMonth(loc)}, nil
	}
	return Window{}, fmt.Errorf("unknown period %q", period)
}

// FinancialWindow looks back seven days (default), thirty days or a year.
func FinancialWindow(period string, now time.Time, loc *time.Location) (Window, error) {
	var from time.Time
	switch period {
	case "", Period7Days:
		period = Period7Days
		from = now.AddDate(0, 0, -7)
	case Period30Days:
		from = now.AddDate(0, 0, -30)
	case PeriodYear:
		from = now.AddDate(-1, 0, 0)
	default:
		return Window{}, fmt.Errorf("unknown period %q", period)
	}
	return Window{Period: period, From: from, To: now.Add(time.Nanosecond), Key: ByDay(loc)}, nil
}

func daySlots(from time.Time, days int, label func(time.Time) string) []Slot {
	slots := make([]Slot, 0, days)
	for i := 0; i < days; i++ {
		d := from.AddDate(0, 0, i)
		slots = append(slots, Slot{Key: d.Format(time.DateOnly), Label: label(d)})
	}
	return slots
}

func weekdayLabel(t time.Time) string { return weekdayLabels[t.Weekday()] }

func dayOfMonthLabel(t time.Time) string { return t.Format("02") }

func shortDateLabel(t time.Time) string { return t.Format("02/01") }
