package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidInterval is returned when an interval token cannot be parsed.
var ErrInvalidInterval = errors.New("invalid interval")

// Milliseconds per supported interval unit.
const (
	MillisPerSecond int64 = 1000
	MillisPerMinute       = 60 * MillisPerSecond
	MillisPerHour         = 60 * MillisPerMinute
	MillisPerDay          = 24 * MillisPerHour
)

var unitMillis = map[byte]int64{
	's': MillisPerSecond,
	'm': MillisPerMinute,
	'h': MillisPerHour,
	'd': MillisPerDay,
}

// Interval is a parsed candle length.
type Interval struct {
	Token  string // canonical token, e.g. "5m"
	Millis int64  // length in milliseconds
}

// String returns the canonical token.
func (i Interval) String() string {
	return i.Token
}

// Duration returns the interval length as a time.Duration.
func (i Interval) Duration() time.Duration {
	return time.Duration(i.Millis) * time.Millisecond
}

// ParseInterval converts a token such as "5m" or "1h" into an Interval.
// The token must be a positive decimal integer immediately followed by one of
// s, m, h or d. Weeks and months are not supported.
func ParseInterval(token string) (Interval, error) {
	if len(token) < 2 {
		return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, token)
	}

	unit := token[len(token)-1]
	mult, ok := unitMillis[unit]
	if !ok {
		return Interval{}, fmt.Errorf("%w: unknown unit in %q", ErrInvalidInterval, token)
	}

	digits := token[:len(token)-1]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, token)
		}
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, token)
	}
	if n <= 0 {
		return Interval{}, fmt.Errorf("%w: %q must be positive", ErrInvalidInterval, token)
	}
	if n > math.MaxInt64/mult {
		return Interval{}, fmt.Errorf("%w: %q overflows", ErrInvalidInterval, token)
	}

	return Interval{
		Token:  strconv.FormatInt(n, 10) + string(unit),
		Millis: n * mult,
	}, nil
}

// ParseIntervalList splits a comma-separated token list ("5m,1h").
// Tokens are trimmed and empty items dropped; the tokens themselves are not
// parsed so that a bad token can be reported without losing the others.
func ParseIntervalList(list string) ([]string, error) {
	var tokens []string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			tokens = append(tokens, part)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: no intervals provided", ErrMissingInput)
	}
	return tokens, nil
}
