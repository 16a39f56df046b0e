package availability

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a time-of-day; "24:00" is the only clock equal to it.
const MinutesPerDay = 24 * 60

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// Clock is a wall-clock time of day expressed as minutes since midnight.
type Clock int

// ParseClock parses a zero-padded 24-hour "HH:MM" value. "24:00" is accepted as the end of the day.
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid clock %q: out of range", s)
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for constants and tests.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// AddMinutes is plain wall-clock addition; it does not wrap at midnight.
func (c Clock) AddMinutes(n int) Clock {
	return c + Clock(n)
}

func (c Clock) Valid() bool {
	return c >= 0 && c <= MinutesPerDay
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("clock must be a HH:MM string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Interval is a half-open time-of-day range [Start, End).
type Interval struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// ParseInterval builds an interval from two "HH:MM" strings.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: s, End: e}, nil
}

// Valid reports whether the interval is non-empty and lies within a single day.
func (a Interval) Valid() bool {
	return a.Start.Valid() && a.End.Valid() && a.Start < a.End
}

// Overlaps uses half-open semantics: touching endpoints do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

func (a Interval) Contains(inner Interval) bool {
	return a.Start <= inner.Start && inner.End <= a.End
}

func (a Interval) Minutes() int {
	return int(a.End - a.Start)
}

func (a Interval) String() string {
	return a.Start.String() + "-" + a.End.String()
}

func overlapsAny(candidate Interval, others []Interval) bool {
	for _, o := range others {
		if candidate.Overlaps(o) {
			return true
		}
	}
	return false
}

// ParseDate parses a YYYY-MM-DD calendar date. The result is midnight UTC and carries no zone meaning;
// dates are tenant-local wall-clock values.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return d, nil
}
