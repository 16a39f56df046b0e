package availability

import (
	"fmt"
	"time"
)

// Source tells which configuration produced a resolved day.
type Source string

const (
	SourceException Source = "exception"
	SourceWeekly    Source = "weekly"
)

// ResolvedDay is the effective availability of one date. It is built from exactly one source.
type ResolvedDay struct {
	Source    Source     `json:"source"`
	Intervals []Interval `json:"intervals"`
	Breaks    []Interval `json:"breaks"`
}

// Config holds the engine's tunables.
type Config struct {
	// ExceptionDefault is the working window of an active exception that lists no intervals.
	ExceptionDefault Interval
}

// DefaultConfig returns the 09:00-18:00 exception fallback.
func DefaultConfig() Config {
	return Config{ExceptionDefault: Interval{Start: 9 * 60, End: 18 * 60}}
}

// Engine resolves availability, generates slots and validates bookings. It keeps no mutable state and is safe
// for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if !cfg.ExceptionDefault.Valid() {
		return nil, fmt.Errorf("exception default window %s is not a valid interval", cfg.ExceptionDefault)
	}
	return &Engine{cfg: cfg}, nil
}

// Resolve returns the working intervals and breaks of date, or ok=false when the professional does not work.
// A date exception wins over the weekly rule and is never merged with it.
func (e *Engine) Resolve(s Schedule, date time.Time) (ResolvedDay, bool, error) {
	if err := s.Check(); err != nil {
		return ResolvedDay{}, false, err
	}
	return e.resolve(s, date)
}

func (e *Engine) resolve(s Schedule, date time.Time) (ResolvedDay, bool, error) {
	if exc, ok := s.exceptionFor(date); ok {
		if !exc.Active {
			return ResolvedDay{}, false, nil
		}
		intervals := exc.Intervals
		if len(intervals) == 0 {
			intervals = []Interval{e.cfg.ExceptionDefault}
		}
		return ResolvedDay{
			Source:    SourceException,
			Intervals: cloneIntervals(intervals),
			Breaks:    cloneIntervals(exc.Breaks),
		}, true, nil
	}

	rule, ok := s.ruleFor(date.Weekday())
	if !ok || !rule.Active {
		return ResolvedDay{}, false, nil
	}
	return ResolvedDay{
		Source:    SourceWeekly,
		Intervals: cloneIntervals(rule.Intervals),
		Breaks:    cloneIntervals(rule.Breaks),
	}, true, nil
}

func cloneIntervals(in []Interval) []Interval {
	out := make([]Interval, len(in))
	copy(out, in)
	return out
}
