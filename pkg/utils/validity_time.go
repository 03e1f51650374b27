package utils

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/turtacn/psn/pkg/errors"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
	secondsPerWeek   = 7 * secondsPerDay
	secondsPerMonth  = 30 * secondsPerDay
	secondsPerYear   = 365 * secondsPerDay
)

var validityTimePattern = regexp.MustCompile(`^(\d+)\s*([a-z]*)$`)

var validityUnits = map[string]int64{
	"":        1,
	"s":       1,
	"sec":     1,
	"secs":    1,
	"second":  1,
	"seconds": 1,
	"min":     secondsPerMinute,
	"mins":    secondsPerMinute,
	"minute":  secondsPerMinute,
	"minutes": secondsPerMinute,
	"h":       secondsPerHour,
	"hour":    secondsPerHour,
	"hours":   secondsPerHour,
	"d":       secondsPerDay,
	"day":     secondsPerDay,
	"days":    secondsPerDay,
	"w":       secondsPerWeek,
	"week":    secondsPerWeek,
	"weeks":   secondsPerWeek,
	"m":       secondsPerMonth,
	"mo":      secondsPerMonth,
	"month":   secondsPerMonth,
	"months":  secondsPerMonth,
	"y":       secondsPerYear,
	"year":    secondsPerYear,
	"years":   secondsPerYear,
}

// ParseValidityTime converts a relative duration such as "1 year", "8w" or "10hours" into seconds.
// Months count as 30 days and years as 365 days.
func ParseValidityTime(raw string) (int64, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	match := validityTimePattern.FindStringSubmatch(value)
	if match == nil {
		return 0, errors.ErrUnprocessableEntity("cannot parse validity time: " + raw)
	}
	amount, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, errors.ErrUnprocessableEntity("validity time out of range: " + raw)
	}
	factor, ok := validityUnits[match[2]]
	if !ok {
		return 0, errors.ErrUnprocessableEntity("unknown validity time unit: " + match[2])
	}
	if amount > (1<<62)/factor {
		return 0, errors.ErrUnprocessableEntity("validity time out of range: " + raw)
	}
	return amount * factor, nil
}
