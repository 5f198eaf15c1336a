// Package calendar holds the date rules the jobs run on: weekday counts for
// spreading a monthly budget, the window of daily financing to harvest and
// the broker's weekly trading session.
package calendar

import "time"

const DateLayout = "2006-01-02"

// WeekdaysInMonth counts Monday through Friday in t's month. Holidays are
// not excluded.
func WeekdaysInMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	n := 0
	for day := first; day.Month() == first.Month(); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}
	return n
}

// FinancingWindow returns the date range holding the most recent daily
// financing credits, judged on ref's UTC date. On a Monday it reaches back
// to Friday to pick up the weekend.
func FinancingWindow(ref time.Time) (from, to string) {
	ref = ref.UTC()
	back := 1
	if ref.Weekday() == time.Monday {
		back = 3
	}
	return ref.AddDate(0, 0, -back).Format(DateLayout), ref.Format(DateLayout)
}
