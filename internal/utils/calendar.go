package utils

import "time"

// Date represents a calendar date
type Date struct {
	Year  int
	Month int
	Day   int
}

// DateOf returns the UTC calendar date of t
func DateOf(t time.Time) Date {
	u := t.UTC()
	return Date{Year: u.Year(), Month: int(u.Month()), Day: u.Day()}
}

// Time returns midnight UTC of the date
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// CalendarDaysBetween counts whole calendar days from the date of `from` to the
// date of `to`, ignoring the time of day. Negative when to is earlier.
func CalendarDaysBetween(from, to time.Time) int {
	start := DateOf(from).Time()
	end := DateOf(to).Time()
	return int(end.Sub(start).Hours() / 24)
}

// AddCalendarDays moves t forward by n calendar days, keeping the time of day
func AddCalendarDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}
