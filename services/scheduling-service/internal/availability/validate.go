package availability

import (
	"fmt"
	"time"
)

// Outcome is the result of validating one candidate interval. Everything except OK is a rejection the caller
// shows to the user.
type Outcome string

const (
	OK                  Outcome = "OK"
	NoAvailability      Outcome = "NO_AVAILABILITY"
	OutsideWorkingHours Outcome = "OUTSIDE_WORKING_HOURS"
	Misaligned          Outcome = "MISALIGNED"
	BreakConflict       Outcome = "BREAK_CONFLICT"
	DoubleBooked        Outcome = "DOUBLE_BOOKED"
)

func (o Outcome) Rejected() bool {
	return o != OK
}

// Validate checks a single candidate in fixed order and returns the first failing reason.
// It never enumerates slots, but accepts a candidate of slot length exactly when Slots would list its start.
func (e *Engine) Validate(s Schedule, date time.Time, candidate Interval, bookings []Booking) (Outcome, error) {
	if err := s.Check(); err != nil {
		return "", err
	}
	if !candidate.Valid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidCandidate, candidate)
	}

	day, ok, err := e.resolve(s, date)
	if err != nil {
		return "", err
	}
	if !ok {
		return NoAvailability, nil
	}

	var window *Interval
	for i := range day.Intervals {
		if day.Intervals[i].Contains(candidate) {
			window = &day.Intervals[i]
			break
		}
	}
	if window == nil {
		return OutsideWorkingHours, nil
	}
	if int(candidate.Start-window.Start)%s.SlotInterval != 0 {
		return Misaligned, nil
	}
	if overlapsAny(candidate, day.Breaks) {
		return BreakConflict, nil
	}
	if overlapsAny(candidate, activeIntervals(bookings)) {
		return DoubleBooked, nil
	}
	return OK, nil
}
