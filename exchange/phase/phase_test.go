package phase

import (
	"testing"
	"time"
)

func weekdaySchedule() *Schedule {
	weekdays := map[time.Weekday]bool{
		time.Monday:    true,
		time.Tuesday:   true,
		time.Wednesday: true,
		time.Thursday:  true,
		time.Friday:    true,
	}
	return NewSchedule([]Window{
		{
			State:    State{Name: PhasePreOpen, SubmitAllowed: true, CancelAllowed: true, ExecutionStyle: ExecutionNone},
			Start:    TimeOfDay{Hour: 9, Minute: 0},
			End:      TimeOfDay{Hour: 9, Minute: 30},
			Weekdays: weekdays,
		},
		{
			State:    State{Name: PhaseOpeningAuction, ExecutionStyle: ExecutionBatch, MatchEnabled: true},
			Start:    TimeOfDay{Hour: 9, Minute: 30},
			End:      TimeOfDay{Hour: 9, Minute: 31},
			Weekdays: weekdays,
		},
		{
			State:    State{Name: PhaseContinuous, SubmitAllowed: true, CancelAllowed: true, MatchEnabled: true, ExecutionStyle: ExecutionContinuous},
			Start:    TimeOfDay{Hour: 9, Minute: 31},
			End:      TimeOfDay{Hour: 16, Minute: 0},
			Weekdays: weekdays,
		},
	}, time.UTC)
}

// 2026-08-24 is a Monday.
func mondayAt(hour, minute, second int) time.Time {
	return time.Date(2026, 8, 24, hour, minute, second, 0, time.UTC)
}

func TestScheduleEvaluation(t *testing.T) {
	s := weekdaySchedule()
	cases := []struct {
		at   time.Time
		want Phase
	}{
		{mondayAt(8, 59, 59), PhaseClosed},
		{mondayAt(9, 0, 0), PhasePreOpen},
		{mondayAt(9, 29, 59), PhasePreOpen},
		{mondayAt(9, 30, 0), PhaseOpeningAuction},
		{mondayAt(9, 31, 0), PhaseContinuous},
		{mondayAt(15, 59, 59), PhaseContinuous},
		{mondayAt(16, 0, 0), PhaseClosed},
	}
	for _, tc := range cases {
		if got := s.At(tc.at).Name; got != tc.want {
			t.Errorf("At(%s) = %s, want %s", tc.at.Format("15:04:05"), got, tc.want)
		}
	}
}

func TestScheduleSkipsWeekend(t *testing.T) {
	s := weekdaySchedule()
	saturday := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	if got := s.At(saturday).Name; got != PhaseClosed {
		t.Errorf("Saturday noon = %s, want closed", got)
	}
}

func TestScheduleTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	s := NewSchedule([]Window{
		{
			State: State{Name: PhaseContinuous, SubmitAllowed: true, CancelAllowed: true, MatchEnabled: true, ExecutionStyle: ExecutionContinuous},
			Start: TimeOfDay{Hour: 9, Minute: 30},
			End:   TimeOfDay{Hour: 16, Minute: 0},
		},
	}, ny)

	// 14:00 UTC on 2026-08-24 is 10:00 in New York (EDT): open.
	if got := s.At(mondayAt(14, 0, 0)).Name; got != PhaseContinuous {
		t.Errorf("10:00 ET = %s, want continuous", got)
	}
	// 13:00 UTC is 09:00 ET: closed.
	if got := s.At(mondayAt(13, 0, 0)).Name; got != PhaseClosed {
		t.Errorf("09:00 ET = %s, want closed", got)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:30")
	if err != nil || got != (TimeOfDay{Hour: 9, Minute: 30}) {
		t.Errorf("ParseTimeOfDay(09:30) = %+v, %v", got, err)
	}
	got, err = ParseTimeOfDay("16:00:30")
	if err != nil || got != (TimeOfDay{Hour: 16, Second: 30}) {
		t.Errorf("ParseTimeOfDay(16:00:30) = %+v, %v", got, err)
	}
	for _, bad := range []string{"", "9:30", "25:00", "09:61", "09:30:99"} {
		if _, err := ParseTimeOfDay(bad); err == nil {
			t.Errorf("ParseTimeOfDay(%q) should fail", bad)
		}
	}
}

func TestManagerTransitions(t *testing.T) {
	s := weekdaySchedule()
	m := NewManager(s, time.Hour, nil) // never ticks on its own

	// Pin a known baseline before subscribing; the initial cell depends
	// on the wall clock at construction.
	m.Advance(mondayAt(3, 0, 0))

	type transition struct{ from, to Phase }
	var seen []transition
	m.Subscribe(func(from, to State) {
		seen = append(seen, transition{from.Name, to.Name})
	})

	m.Advance(mondayAt(9, 0, 1))
	m.Advance(mondayAt(9, 15, 0)) // same phase, no transition
	m.Advance(mondayAt(9, 30, 1))
	m.Advance(mondayAt(9, 32, 0))
	m.Advance(mondayAt(16, 0, 1))

	want := []transition{
		{PhaseClosed, PhasePreOpen},
		{PhasePreOpen, PhaseOpeningAuction},
		{PhaseOpeningAuction, PhaseContinuous},
		{PhaseContinuous, PhaseClosed},
	}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %d entries", seen, len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
	if m.Current().Name != PhaseClosed {
		t.Errorf("final phase = %s, want closed", m.Current().Name)
	}
}
