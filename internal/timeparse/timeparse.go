// Package timeparse converts natural-language date and time phrases into
// the canonical forms the schedule stores use: "2006-01-02" dates and
// "03:04 PM" twelve-hour times.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateLayout is the canonical schedule date format.
const DateLayout = "2006-01-02"

// TimeLayout is the canonical schedule time format.
const TimeLayout = "03:04 PM"

// ErrAmbiguousMeridiem means a time was given without AM/PM. The caller
// must ask the user to disambiguate; the parser never guesses.
var ErrAmbiguousMeridiem = errors.New("timeparse: time is missing AM or PM")

// ErrNotParseable means the input could not be understood as a date or time.
var ErrNotParseable = errors.New("timeparse: could not understand input")

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	monthDayRE    = regexp.MustCompile(`^([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?$`)
	dayMonthRE    = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?([a-z]+)\.?$`)
	clockRE       = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?$`)
	compactRE     = regexp.MustCompile(`^(\d{1,2})(\d{2})$`)
	meridiemRE    = regexp.MustCompile(`(?i)\b(a\.?m\.?|p\.?m\.?)\s*$`)
	explicitYearRE = regexp.MustCompile(`\b\d{4}\b`)
)

// NormalizeDateAt resolves a natural-language date relative to now, biased
// toward the future: a bare weekday names the next future occurrence and a
// month-day with no year that already passed rolls into next year.
func NormalizeDateAt(text string, now time.Time) (string, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return "", ErrNotParseable
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch s {
	case "today":
		return today.Format(DateLayout), nil
	case "tomorrow":
		return today.AddDate(0, 0, 1).Format(DateLayout), nil
	case "day after tomorrow":
		return today.AddDate(0, 0, 2).Format(DateLayout), nil
	}

	name := strings.TrimSpace(strings.TrimPrefix(s, "next "))
	if wd, ok := weekdays[name]; ok {
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead).Format(DateLayout), nil
	}

	if d, ok := parseMonthDay(s, today); ok {
		return d.Format(DateLayout), nil
	}

	parsed, err := dateparse.ParseIn(s, now.Location())
	if err != nil {
		return "", ErrNotParseable
	}
	parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, now.Location())

	// A year-less date that lands in the past means the user meant the
	// next occurrence, not the elapsed one.
	if parsed.Before(today) && !explicitYearRE.MatchString(s) {
		parsed = parsed.AddDate(1, 0, 0)
	}
	return parsed.Format(DateLayout), nil
}

// NormalizeDate resolves a natural-language date relative to the current time.
func NormalizeDate(text string) (string, error) {
	return NormalizeDateAt(text, time.Now())
}

// NormalizeTime converts fuzzy times like "9 AM", "09:30pm", or "0930 PM"
// into the canonical "hh:mm AM" form. Inputs without an AM/PM marker fail
// with ErrAmbiguousMeridiem so the caller can re-prompt instead of guessing.
func NormalizeTime(text string) (string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", ErrNotParseable
	}

	loc := meridiemRE.FindStringIndex(s)
	if loc == nil {
		return "", ErrAmbiguousMeridiem
	}
	marker := strings.ToLower(strings.ReplaceAll(s[loc[0]:loc[1]], ".", ""))
	meridiem := "AM"
	if strings.HasPrefix(strings.TrimSpace(marker), "p") {
		meridiem = "PM"
	}

	hour, minute, err := parseClock(strings.TrimSpace(s[:loc[0]]))
	if err != nil {
		return "", err
	}
	if hour < 1 || hour > 12 {
		return "", ErrNotParseable
	}
	return fmt.Sprintf("%02d:%02d %s", hour, minute, meridiem), nil
}

// ParseDateTimeAt parses free-form combined input like "tomorrow at 9" into
// canonical (date, time) relative to now. A bare hour is read as a 24-hour
// clock value, so "at 15" means 3 PM. A date with no time at all resolves to
// the current clock time, mirroring how relative phrases behave elsewhere.
func ParseDateTimeAt(text string, now time.Time) (string, string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", "", ErrNotParseable
	}

	if datePart, timePart, found := splitOnAt(s); found {
		date, err := NormalizeDateAt(datePart, now)
		if err != nil {
			return "", "", ErrNotParseable
		}
		clock, err := normalizeLooseTime(timePart)
		if err != nil {
			return "", "", ErrNotParseable
		}
		return date, clock, nil
	}

	// A full timestamp like "2025-06-01 14:30" parses in one shot.
	if parsed, err := dateparse.ParseIn(s, now.Location()); err == nil &&
		(parsed.Hour() != 0 || parsed.Minute() != 0) {
		return parsed.Format(DateLayout), parsed.Format(TimeLayout), nil
	}

	date, err := NormalizeDateAt(s, now)
	if err != nil {
		return "", "", ErrNotParseable
	}
	return date, now.Format(TimeLayout), nil
}

// ParseDateTime parses free-form combined input relative to the current time.
func ParseDateTime(text string) (string, string, error) {
	return ParseDateTimeAt(text, time.Now())
}

// Minutes converts a canonical "hh:mm AM" time into minutes since midnight,
// for chronological ordering and elapsed-slot filtering.
func Minutes(canonical string) (int, error) {
	t, err := time.Parse(TimeLayout, canonical)
	if err != nil {
		return 0, ErrNotParseable
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseMonthDay(s string, today time.Time) (time.Time, bool) {
	var monthName, dayStr string
	if m := monthDayRE.FindStringSubmatch(s); m != nil {
		monthName, dayStr = m[1], m[2]
	} else if m := dayMonthRE.FindStringSubmatch(s); m != nil {
		dayStr, monthName = m[1], m[2]
	} else {
		return time.Time{}, false
	}

	month, ok := months[monthName]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}

	candidate := time.Date(today.Year(), month, day, 0, 0, 0, 0, today.Location())
	if candidate.Before(today) {
		candidate = candidate.AddDate(1, 0, 0)
	}
	return candidate, true
}

func splitOnAt(s string) (datePart, timePart string, found bool) {
	lower := strings.ToLower(s)
	idx := strings.LastIndex(lower, " at ")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+4:]), true
}

// normalizeLooseTime accepts a meridiem-less hour by reading it as a
// 24-hour clock value. Only the combined free-form parse uses it; the
// strict NormalizeTime path still demands an explicit AM/PM.
func normalizeLooseTime(s string) (string, error) {
	if meridiemRE.MatchString(s) {
		return NormalizeTime(s)
	}
	hour, minute, err := parseClock(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	if hour > 23 {
		return "", ErrNotParseable
	}
	t := time.Date(0, 1, 1, hour, minute, 0, 0, time.UTC)
	return t.Format(TimeLayout), nil
}

func parseClock(s string) (hour, minute int, err error) {
	if m := clockRE.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
	} else if m := compactRE.FindStringSubmatch(s); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
	} else {
		return 0, 0, ErrNotParseable
	}
	if minute > 59 {
		return 0, 0, ErrNotParseable
	}
	return hour, minute, nil
}
