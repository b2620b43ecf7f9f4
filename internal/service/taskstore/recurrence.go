package taskstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const maxRecurrenceLen = 100

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// cronParser accepts 5-field expressions and @descriptors.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NormalizeRecurrence validates a recurrence descriptor and returns its
// canonical form.
//
// Accepted forms:
//
//	daily | weekly | monthly | yearly
//	weekly <weekday>          e.g. "weekly mon"
//	monthly <1-31>            e.g. "monthly 15"
//	@hourly @daily @weekly @monthly @yearly
//	five-field cron           e.g. "0 9 * * 1-5"
func NormalizeRecurrence(raw string) (string, error) {
	s := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if s == "" {
		return "", fmt.Errorf("recurrence is empty")
	}
	if len([]rune(s)) > maxRecurrenceLen {
		return "", fmt.Errorf("recurrence must be at most %d characters", maxRecurrenceLen)
	}

	fields := strings.Fields(s)
	switch fields[0] {
	case "daily", "yearly":
		if len(fields) == 1 {
			return s, nil
		}
	case "weekly":
		if len(fields) == 1 {
			return s, nil
		}
		if len(fields) == 2 {
			wd, ok := weekdays[fields[1]]
			if !ok {
				return "", fmt.Errorf("unknown weekday %q", fields[1])
			}
			return "weekly " + strings.ToLower(wd.String()), nil
		}
	case "monthly":
		if len(fields) == 1 {
			return s, nil
		}
		if len(fields) == 2 {
			day, err := strconv.Atoi(fields[1])
			if err != nil || day < 1 || day > 31 {
				return "", fmt.Errorf("monthly day must be between 1 and 31")
			}
			return "monthly " + strconv.Itoa(day), nil
		}
	}

	if strings.HasPrefix(s, "@every") {
		return "", fmt.Errorf("@every is not supported, use a cron expression")
	}
	if _, err := cronParser.Parse(s); err != nil {
		return "", fmt.Errorf("invalid recurrence %q: %w", raw, err)
	}
	return s, nil
}

// NextOccurrence returns the first occurrence strictly after from. Calendar
// forms keep from's time of day; cron forms follow the schedule in from's
// location.
func NextOccurrence(desc string, from time.Time) (time.Time, error) {
	s, err := NormalizeRecurrence(desc)
	if err != nil {
		return time.Time{}, err
	}

	fields := strings.Fields(s)
	switch {
	case s == "daily":
		return from.AddDate(0, 0, 1), nil
	case s == "weekly":
		return from.AddDate(0, 0, 7), nil
	case s == "monthly":
		return addMonthsClamped(from, 1, from.Day()), nil
	case s == "yearly":
		return addMonthsClamped(from, 12, from.Day()), nil
	case fields[0] == "weekly":
		wd := weekdays[fields[1]]
		days := (int(wd) - int(from.Weekday()) + 7) % 7
		if days == 0 {
			days = 7
		}
		return from.AddDate(0, 0, days), nil
	case fields[0] == "monthly":
		day, _ := strconv.Atoi(fields[1])
		target := min(day, daysIn(from.Year(), from.Month(), from.Location()))
		if from.Day() < target {
			return time.Date(from.Year(), from.Month(), target,
				from.Hour(), from.Minute(), from.Second(), 0, from.Location()), nil
		}
		return addMonthsClamped(from, 1, day), nil
	}

	sched, err := cronParser.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// NextOccurrenceAfter steps from until the occurrence is after not-before.
// An overdue recurring task rolls forward to the next future slot.
func NextOccurrenceAfter(desc string, from, notBefore time.Time) (time.Time, error) {
	next, err := NextOccurrence(desc, from)
	if err != nil {
		return time.Time{}, err
	}
	for i := 0; !next.After(notBefore); i++ {
		if i >= 10000 {
			return time.Time{}, fmt.Errorf("recurrence %q does not advance past %s", desc, notBefore)
		}
		if next, err = NextOccurrence(desc, next); err != nil {
			return time.Time{}, err
		}
	}
	return next, nil
}

// addMonthsClamped moves n months forward and pins the day, clamping to the
// month's last day (Jan 31 + 1 month = Feb 28/29).
func addMonthsClamped(from time.Time, n, day int) time.Time {
	first := time.Date(from.Year(), from.Month(), 1,
		from.Hour(), from.Minute(), from.Second(), 0, from.Location()).AddDate(0, n, 0)
	if last := daysIn(first.Year(), first.Month(), from.Location()); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
