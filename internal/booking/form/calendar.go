package form

import (
	"strings"
	"time"

	cal "github.com/rickar/cal/v2"
)

// ClinicCalendar decides which dates can be booked.
type ClinicCalendar struct {
	loc    *time.Location
	closed map[time.Weekday]bool
	bc     *cal.BusinessCalendar
	nowF   func() time.Time
}

// Fixed-date national holidays on which the clinic is closed.
var (
	republicDay = &cal.Holiday{
		Name:  "Republic Day",
		Month: time.January,
		Day:   26,
		Func:  cal.CalcDayOfMonth,
	}
	independenceDay = &cal.Holiday{
		Name:  "Independence Day",
		Month: time.August,
		Day:   15,
		Func:  cal.CalcDayOfMonth,
	}
	gandhiJayanti = &cal.Holiday{
		Name:  "Gandhi Jayanti",
		Month: time.October,
		Day:   2,
		Func:  cal.CalcDayOfMonth,
	}
)

// NewClinicCalendar returns a calendar in loc closed on the given weekdays and on national holidays.
// A nil loc means UTC. nowF may be nil (time.Now).
func NewClinicCalendar(loc *time.Location, closed []time.Weekday, nowF func() time.Time) *ClinicCalendar {
	if loc == nil {
		loc = time.UTC
	}
	if nowF == nil {
		nowF = time.Now
	}
	bc := cal.NewBusinessCalendar()
	bc.AddHoliday(republicDay, independenceDay, gandhiJayanti)
	m := make(map[time.Weekday]bool, len(closed))
	for _, d := range closed {
		m[d] = true
	}
	return &ClinicCalendar{loc: loc, closed: m, bc: bc, nowF: nowF}
}

// ParseWeekdays parses a comma-separated list such as "sunday,saturday". Unknown names are ignored.
func ParseWeekdays(s string) []time.Weekday {
	var out []time.Weekday
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.ToLower(d.String()) == name {
				out = append(out, d)
			}
		}
	}
	return out
}

// IsOpen reports whether the date (YYYY-MM-DD) is today or later, not a closed weekday and not a holiday.
func (c *ClinicCalendar) IsOpen(date string) bool {
	d, err := time.ParseInLocation("2006-01-02", date, c.loc)
	if err != nil {
		return false
	}
	now := c.nowF().In(c.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
	if d.Before(today) {
		return false
	}
	if c.closed[d.Weekday()] {
		return false
	}
	actual, observed, _ := c.bc.IsHoliday(d)
	return !actual && !observed
}

// Today returns the current date in the clinic timezone.
func (c *ClinicCalendar) Today() time.Time {
	return c.nowF().In(c.loc)
}
