package availability

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidSchedule marks corrupted availability configuration. It is never a booking rejection.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrInvalidCandidate marks a proposed interval that is not a well-formed same-day range.
	ErrInvalidCandidate = errors.New("invalid candidate interval")
)

// WeeklyRule is the recurring availability of one weekday (0=Sunday ... 6=Saturday).
type WeeklyRule struct {
	Weekday   int        `json:"weekday"`
	Active    bool       `json:"active"`
	Intervals []Interval `json:"intervals"`
	Breaks    []Interval `json:"breaks,omitempty"`
}

// DateException replaces the weekly rule for a single date. An inactive exception is a day off;
// an active one without intervals falls back to the configured default window.
type DateException struct {
	Date      string     `json:"date"`
	Active    bool       `json:"active"`
	Intervals []Interval `json:"intervals,omitempty"`
	Breaks    []Interval `json:"breaks,omitempty"`
}

// Schedule is everything the engine needs to know about a professional.
type Schedule struct {
	Weekly       []WeeklyRule    `json:"weekly"`
	Exceptions   []DateException `json:"exceptions"`
	SlotInterval int             `json:"slot_interval"`
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidSchedule, fmt.Sprintf(format, args...))
}

// Check fails fast on the first malformed entry so that bad data written elsewhere surfaces here instead of
// producing silently different slots.
func (s Schedule) Check() error {
	if s.SlotInterval <= 0 || s.SlotInterval > MinutesPerDay {
		return invalidf("slot interval %d out of range", s.SlotInterval)
	}
	seenDays := make(map[int]struct{}, len(s.Weekly))
	for i, r := range s.Weekly {
		if r.Weekday < 0 || r.Weekday > 6 {
			return invalidf("weekly[%d]: weekday %d out of range", i, r.Weekday)
		}
		if _, dup := seenDays[r.Weekday]; dup {
			return invalidf("weekly[%d]: duplicate rule for weekday %d", i, r.Weekday)
		}
		seenDays[r.Weekday] = struct{}{}
		if !r.Active {
			continue
		}
		if len(r.Intervals) == 0 {
			return invalidf("weekly[%d]: active rule without working intervals", i)
		}
		if err := checkDay(r.Intervals, r.Breaks); err != nil {
			return invalidf("weekly[%d]: %v", i, err)
		}
	}
	seenDates := make(map[string]struct{}, len(s.Exceptions))
	for i, e := range s.Exceptions {
		d, err := ParseDate(e.Date)
		if err != nil {
			return invalidf("exceptions[%d]: %v", i, err)
		}
		key := d.Format(DateLayout)
		if _, dup := seenDates[key]; dup {
			return invalidf("exceptions[%d]: duplicate exception for %s", i, key)
		}
		seenDates[key] = struct{}{}
		if !e.Active {
			continue
		}
		if err := checkDay(e.Intervals, e.Breaks); err != nil {
			return invalidf("exceptions[%d]: %v", i, err)
		}
	}
	return nil
}

// CheckRule validates a single weekly rule in isolation, for write paths.
func CheckRule(r WeeklyRule) error {
	return Schedule{Weekly: []WeeklyRule{r}, SlotInterval: 1}.Check()
}

// CheckException validates a single date exception in isolation, for write paths.
func CheckException(e DateException) error {
	return Schedule{Exceptions: []DateException{e}, SlotInterval: 1}.Check()
}

func checkDay(intervals, breaks []Interval) error {
	for i, iv := range intervals {
		if !iv.Valid() {
			return fmt.Errorf("interval %s is empty, inverted or outside the day", iv)
		}
		if i > 0 && intervals[i-1].End > iv.Start {
			return fmt.Errorf("intervals %s and %s overlap or are out of order", intervals[i-1], iv)
		}
	}
	for _, b := range breaks {
		if !b.Valid() {
			return fmt.Errorf("break %s is empty, inverted or outside the day", b)
		}
	}
	return nil
}

func (s Schedule) ruleFor(weekday time.Weekday) (WeeklyRule, bool) {
	for _, r := range s.Weekly {
		if r.Weekday == int(weekday) {
			return r, true
		}
	}
	return WeeklyRule{}, false
}

func (s Schedule) exceptionFor(date time.Time) (DateException, bool) {
	key := date.Format(DateLayout)
	for _, e := range s.Exceptions {
		d, err := ParseDate(e.Date)
		if err != nil {
			continue
		}
		if d.Format(DateLayout) == key {
			return e, true
		}
	}
	return DateException{}, false
}
