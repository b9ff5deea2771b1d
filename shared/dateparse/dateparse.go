// Package dateparse normalizes the date and time-of-day formats accepted on
// the wire into canonical values in the application timezone.
//
// Dates arrive as ISO "2006-01-02" (preferred), the legacy "02/01/2006"
// slash form, or a localized "Ddd DD Mon" heading such as "Lun 16 Jun"
// coming from older booking clients. The localized form carries no year: if
// the parsed date already passed, it is assumed to mean next year.
//
// Times of day are "HH:MM" 24-hour strings, stored internally as
// minutes since midnight.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"

	"agenda/shared/constant"
	"agenda/shared/failure"
	"agenda/shared/timezone"

	"time"
)

var clockRegexp = regexp.MustCompile(constant.ClockPattern)

// Abbreviated Spanish month names as emitted by the legacy booking widget.
// Keys are lowercased and stripped of accents before lookup.
var monthAbbreviations = map[string]time.Month{
	"ene": time.January,
	"feb": time.February,
	"mar": time.March,
	"abr": time.April,
	"may": time.May,
	"jun": time.June,
	"jul": time.July,
	"ago": time.August,
	"sep": time.September,
	"set": time.September,
	"oct": time.October,
	"nov": time.November,
	"dic": time.December,
}

// ParseDate parses a wire date into midnight of that day in the application
// timezone.
func ParseDate(value string) (time.Time, error) {
	return ParseDateAt(value, timezone.Now())
}

// ParseDateAt is ParseDate with an explicit reference instant, used for the
// year-rollover decision on localized dates.
func ParseDateAt(value string, now time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == constant.Empty {
		return time.Time{}, failure.BadRequestFromString("date is required")
	}

	if parsed, err := timezone.Parse(constant.SlotDateFormat, trimmed); err == nil {
		return parsed, nil
	}

	if parsed, err := timezone.Parse(constant.SlotDateFormatLegacy, trimmed); err == nil {
		return parsed, nil
	}

	if parsed, err := parseLocalized(trimmed, now); err == nil {
		return parsed, nil
	}

	return time.Time{}, failure.BadRequestFromString("unsupported date format: " + trimmed)
}

// parseLocalized handles the "Ddd DD Mon" form. The day-name token is
// display-only and ignored; the year is inferred from the reference instant.
func parseLocalized(value string, now time.Time) (time.Time, error) {
	fields := strings.Fields(value)
	if len(fields) != 3 {
		return time.Time{}, failure.BadRequestFromString("unsupported date format: " + value)
	}

	day, err := strconv.Atoi(fields[1])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, failure.BadRequestFromString("invalid day of month: " + fields[1])
	}

	month, ok := monthAbbreviations[normalizeToken(fields[2])]
	if !ok {
		return time.Time{}, failure.BadRequestFromString("unknown month name: " + fields[2])
	}

	loc := timezone.GetLocation()
	candidate := time.Date(now.Year(), month, day, 0, 0, 0, 0, loc)

	// No year on the wire: a date already behind us means next year.
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if candidate.Before(today) {
		candidate = time.Date(now.Year()+1, month, day, 0, 0, 0, 0, loc)
	}

	if candidate.Day() != day {
		return time.Time{}, failure.BadRequestFromString("invalid day of month: " + fields[1])
	}

	return candidate, nil
}

func normalizeToken(token string) string {
	lowered := strings.ToLower(strings.TrimSpace(token))

	replacer := strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u")

	return replacer.Replace(lowered)
}

// ParseClock converts an "HH:MM" string into minutes since midnight.
func ParseClock(value string) (int, error) {
	if !clockRegexp.MatchString(value) {
		return 0, failure.BadRequestFromString("time must be a 24-hour HH:MM value")
	}

	parts := strings.SplitN(value, ":", 2)
	hour, _ := strconv.Atoi(parts[0])
	minute, _ := strconv.Atoi(parts[1])

	return hour*constant.MinutesToSeconds + minute, nil
}

// FormatClock renders minutes since midnight as a zero-padded "HH:MM"
// string. Downstream slot comparisons are string based, so the padding is
// load bearing.
func FormatClock(minutes int) string {
	hour := minutes / constant.MinutesToSeconds
	minute := minutes % constant.MinutesToSeconds

	return pad(hour) + ":" + pad(minute)
}

func pad(value int) string {
	if value < 10 {
		return "0" + strconv.Itoa(value)
	}

	return strconv.Itoa(value)
}

// MinutesOfDay returns the minutes elapsed since midnight of t in the
// application timezone.
func MinutesOfDay(t time.Time) int {
	local := timezone.ToAppTime(t)

	return local.Hour()*constant.MinutesToSeconds + local.Minute()
}

// At anchors minutes-since-midnight onto a calendar day in the application
// timezone, producing the concrete slot start instant.
func At(day time.Time, minutes int) time.Time {
	local := timezone.ToAppTime(day)

	return time.Date(
		local.Year(), local.Month(), local.Day(),
		minutes/constant.MinutesToSeconds, minutes%constant.MinutesToSeconds, 0, 0,
		timezone.GetLocation(),
	)
}
