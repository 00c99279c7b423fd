// Package phase implements the market phase state machine: a weekly
// schedule mapped from wall clock to a phase whose flags gate order
// submission, cancellation and matching.
package phase

import (
	"fmt"
	"time"
)

// Phase is a mode of the market.
type Phase string

const (
	PhaseClosed         Phase = "closed"
	PhasePreOpen        Phase = "pre_open"
	PhaseOpeningAuction Phase = "opening_auction"
	PhaseContinuous     Phase = "continuous"
)

// ExecutionStyle controls how accepted orders execute.
type ExecutionStyle string

const (
	ExecutionNone       ExecutionStyle = "none"
	ExecutionBatch      ExecutionStyle = "batch"
	ExecutionContinuous ExecutionStyle = "continuous"
)

// State carries the phase and its gating flags.
type State struct {
	Name           Phase          `json:"phase_name"`
	SubmitAllowed  bool           `json:"submit_allowed"`
	CancelAllowed  bool           `json:"cancel_allowed"`
	MatchEnabled   bool           `json:"match_enabled"`
	ExecutionStyle ExecutionStyle `json:"execution_style"`
}

// Closed is the resting state when no schedule window matches.
func Closed() State {
	return State{Name: PhaseClosed, ExecutionStyle: ExecutionNone}
}

// Window is one scheduled phase window: a time-of-day range on a set of
// weekdays.
type Window struct {
	State    State
	Start    TimeOfDay
	End      TimeOfDay
	Weekdays map[time.Weekday]bool
}

// TimeOfDay is minutes plus seconds since midnight in the schedule's
// timezone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	switch {
	case len(s) == 5:
		if _, err := fmt.Sscanf(s, "%02d:%02d", &t.Hour, &t.Minute); err != nil {
			return t, fmt.Errorf("invalid time of day %q", s)
		}
	case len(s) == 8:
		if _, err := fmt.Sscanf(s, "%02d:%02d:%02d", &t.Hour, &t.Minute, &t.Second); err != nil {
			return t, fmt.Errorf("invalid time of day %q", s)
		}
	default:
		return t, fmt.Errorf("invalid time of day %q", s)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return t, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Schedule is the immutable weekly phase schedule.
type Schedule struct {
	windows  []Window
	location *time.Location
}

// NewSchedule builds a schedule in the given timezone. Windows are
// evaluated in declared order; the first match wins.
func NewSchedule(windows []Window, location *time.Location) *Schedule {
	if location == nil {
		location = time.UTC
	}
	return &Schedule{windows: windows, location: location}
}

// At evaluates the schedule at the given instant.
func (s *Schedule) At(now time.Time) State {
	local := now.In(s.location)
	secs := local.Hour()*3600 + local.Minute()*60 + local.Second()
	day := local.Weekday()

	for _, w := range s.windows {
		if len(w.Weekdays) > 0 && !w.Weekdays[day] {
			continue
		}
		if secs >= w.Start.seconds() && secs < w.End.seconds() {
			return w.State
		}
	}
	return Closed()
}

// Location returns the schedule's timezone.
func (s *Schedule) Location() *time.Location {
	return s.location
}
