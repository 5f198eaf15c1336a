package calendar

import (
	"fmt"
	"time"
)

// Band is an inclusive time-of-day range, measured from local midnight.
type Band struct {
	From time.Duration
	To   time.Duration
}

func (b Band) contains(tod time.Duration) bool {
	return tod >= b.From && tod <= b.To
}

func (b Band) String() string {
	return fmt.Sprintf("%s-%s", clock(b.From), clock(b.To))
}

func clock(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func hm(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

// DefaultBands are the daily rollover windows around the 06:00 and 07:00
// settlement times, in the session's local zone.
var DefaultBands = []Band{
	{From: hm(5, 59), To: hm(6, 5)},
	{From: hm(6, 59), To: hm(7, 5)},
}

// Session is the broker's trading week: Monday Open to Open plus four days,
// 23 hours and 59 minutes, in a fixed zone.
type Session struct {
	Loc   *time.Location
	Open  time.Duration
	Bands []Band
}

const sessionLength = 4*24*time.Hour + 23*time.Hour + 59*time.Minute

// NewSession builds the session for a fixed UTC offset, 06:00 open and the
// default rollover bands.
func NewSession(utcOffsetHours int) *Session {
	name := fmt.Sprintf("UTC%+d", utcOffsetHours)
	return &Session{
		Loc:   time.FixedZone(name, utcOffsetHours*3600),
		Open:  hm(6, 0),
		Bands: DefaultBands,
	}
}

// Window returns the session that t falls in or would fall in: the most
// recent Monday open at or before t's local day, and its close.
func (s *Session) Window(t time.Time) (start, end time.Time) {
	local := t.In(s.Loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Loc)
	sinceMonday := (int(local.Weekday()) + 6) % 7
	start = midnight.AddDate(0, 0, -sinceMonday).Add(s.Open)
	return start, start.Add(sessionLength)
}

// InBand reports whether t falls in one of the excluded rollover bands.
func (s *Session) InBand(t time.Time) bool {
	local := t.In(s.Loc).Truncate(time.Second)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Loc)
	tod := local.Sub(midnight)
	for _, b := range s.Bands {
		if b.contains(tod) {
			return true
		}
	}
	return false
}

// IsOpen reports whether orders may be placed at t. Both window ends are
// inclusive.
func (s *Session) IsOpen(t time.Time) bool {
	if s.InBand(t) {
		return false
	}
	local := t.In(s.Loc).Truncate(time.Second)
	start, end := s.Window(local)
	return !local.Before(start) && !local.After(end)
}
