package availability

import (
	"fmt"
	"time"
)

// Booking is an existing appointment of the same professional and date. Cancelled bookings never block.
type Booking struct {
	Interval  Interval
	Cancelled bool
}

func activeIntervals(bookings []Booking) []Interval {
	out := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		if b.Cancelled {
			continue
		}
		out = append(out, b.Interval)
	}
	return out
}

// Slots returns the bookable start times of date using the professional's slot interval as both step and length.
func (e *Engine) Slots(s Schedule, date time.Time, bookings []Booking) ([]Clock, error) {
	return e.SlotsFor(s, date, bookings, s.SlotInterval)
}

// SlotsFor steps through every working interval by the slot interval and keeps the starts whose
// [start, start+duration) fits the interval and avoids breaks and active bookings.
// Results are strictly increasing because working intervals are ordered and disjoint.
func (e *Engine) SlotsFor(s Schedule, date time.Time, bookings []Booking, duration int) ([]Clock, error) {
	if err := s.Check(); err != nil {
		return nil, err
	}
	if duration <= 0 || duration > MinutesPerDay {
		return nil, fmt.Errorf("%w: duration %d out of range", ErrInvalidCandidate, duration)
	}
	day, ok, err := e.resolve(s, date)
	if err != nil || !ok {
		return nil, err
	}

	busy := activeIntervals(bookings)
	var slots []Clock
	for _, win := range day.Intervals {
		for t := win.Start; t.AddMinutes(duration) <= win.End; t = t.AddMinutes(s.SlotInterval) {
			candidate := Interval{Start: t, End: t.AddMinutes(duration)}
			if overlapsAny(candidate, day.Breaks) {
				continue
			}
			if overlapsAny(candidate, busy) {
				continue
			}
			slots = append(slots, t)
		}
	}
	return slots, nil
}
