package forecast

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"time"
)

// Action is the work an iteration performs at the cursor.
type Action string

const (
	// ActionDownload fetches the pending files of the cursor's cycle.
	ActionDownload Action = "download"
	// ActionAwait waits on the newest cycle of the newest day, whose
	// directory may be listed before its data is published.
	ActionAwait Action = "await"
	// ActionComplete marks the cursor's cycle as exhausted.
	ActionComplete Action = "complete"
)

// Move is how the cursor changes after an iteration.
type Move string

const (
	MoveStay      Move = "stay"
	MoveNextCycle Move = "next-cycle"
	MoveNextDay   Move = "next-day"
	// MoveHold wants the next day but none is listed yet.
	MoveHold Move = "hold"
)

// State is the controller's mutable session state.
type State struct {
	Cursor Cursor
	// Days is the cached day listing. It is refreshed on EC rollover,
	// while the cursor waits on the newest listed day, and on recovery.
	Days []string
	// Completed is the last cycle handed to the conversion sink.
	Completed Cursor
}

// Snapshot is the catalog as observed by one poll. It is never reused
// across iterations.
type Snapshot struct {
	Source Source
	// Cycles lists the cycles of the cursor's day.
	Cycles []string
	// Pending counts filtered files not yet present locally.
	Pending int
	Now     time.Time
}

// Decision records why Advance chose its action and move.
type Decision struct {
	Action       Action
	Move         Move
	Convert      bool
	NextCycle    bool
	NextDay      bool
	CanSwitchDay bool
	RolledOver   bool
}

// RolledOver reports whether the UTC day has passed cycle since it was
// first observed. Only EC catalogs are browsable by cycle alone, so only
// they are affected; callers refresh State.Days before calling Advance
// when this is true.
func RolledOver(source Source, now time.Time, cycle string) bool {
	if source != SourceEC {
		return false
	}
	hour, err := strconv.Atoi(cycle)
	if err != nil {
		return false
	}
	return now.UTC().Hour() < hour
}

// Advance decides the action for one poll and the state to poll next. When
// the move is MoveNextDay the returned cursor has an empty cycle: the first
// cycle of the new day must be listed before polling resumes.
//
// The action and the returned Completed marker are filled in whenever the
// cycle listing is non-empty, even if an error is returned for the move.
func Advance(st State, snap Snapshot) (State, Decision, error) {
	var dec Decision
	if len(snap.Cycles) == 0 {
		return st, dec, fmt.Errorf("%w: no cycles listed for day %s", ErrCursorNotListed, st.Cursor.Day)
	}
	if len(st.Days) == 0 {
		return st, dec, fmt.Errorf("%w: no days listed", ErrCursorNotListed)
	}

	latestDay := st.Days[len(st.Days)-1]
	latestCycle := snap.Cycles[len(snap.Cycles)-1]
	next := st

	switch {
	case snap.Pending > 0:
		dec.Action = ActionDownload
	case st.Cursor.Day == latestDay && st.Cursor.Cycle == latestCycle:
		// Known approximation: a provider publishing cycles out of order
		// can keep the session waiting here.
		dec.Action = ActionAwait
	default:
		dec.Action = ActionComplete
		dec.NextCycle = true
		if st.Completed != st.Cursor {
			dec.Convert = true
			next.Completed = st.Cursor
		}
	}

	dec.NextDay = dec.NextCycle && st.Cursor.Cycle == latestCycle

	if RolledOver(snap.Source, snap.Now, st.Cursor.Cycle) {
		dec.RolledOver = true
		dec.NextCycle = true
		dec.NextDay = true
	}

	dec.CanSwitchDay = st.Cursor.Day != latestDay

	switch {
	case dec.NextCycle && !dec.NextDay:
		idx := slices.Index(snap.Cycles, st.Cursor.Cycle)
		if idx < 0 || idx+1 >= len(snap.Cycles) {
			dec.Move = MoveStay
			return next, dec, fmt.Errorf("%w: cycle %s not followed by another on %s (listed %v)",
				ErrCursorNotListed, st.Cursor.Cycle, st.Cursor.Day, snap.Cycles)
		}
		dec.Move = MoveNextCycle
		next.Cursor.Cycle = snap.Cycles[idx+1]
	case dec.NextCycle && dec.NextDay && dec.CanSwitchDay:
		dec.Move = MoveNextDay
		next.Cursor = Cursor{Day: nextDay(snap.Source, st.Days, st.Cursor.Day)}
	case dec.NextCycle && dec.NextDay:
		dec.Move = MoveHold
	default:
		dec.Move = MoveStay
	}

	return next, dec, nil
}

// nextDay returns the day to move to. EC catalogs only ever list the
// current day so the latest is used; otherwise the first day after
// current in lexical order.
func nextDay(source Source, days []string, current string) string {
	if source == SourceEC {
		return days[len(days)-1]
	}
	if idx := slices.Index(days, current); idx >= 0 {
		return days[idx+1]
	}
	idx := sort.SearchStrings(days, current)
	if idx < len(days) && days[idx] == current {
		idx++
	}
	if idx >= len(days) {
		return days[len(days)-1]
	}
	return days[idx]
}

// Recover derives the cursor a failed session resumes from. cycles must be
// the listing for RecoveryDay(prev, days).
//
// The previous day is kept when still listed, with its cycle clamped to the
// previous cycle if still listed or else the newest one. Otherwise the
// session restarts at the earliest day and its earliest cycle.
func Recover(prev Cursor, days, cycles []string) (Cursor, error) {
	if len(days) == 0 {
		return Cursor{}, fmt.Errorf("%w: no days listed", ErrCursorNotListed)
	}
	day := RecoveryDay(prev, days)
	if len(cycles) == 0 {
		return Cursor{}, fmt.Errorf("%w: no cycles listed for day %s", ErrCursorNotListed, day)
	}
	if day != prev.Day {
		return Cursor{Day: day, Cycle: cycles[0]}, nil
	}
	if slices.Contains(cycles, prev.Cycle) {
		return prev, nil
	}
	return Cursor{Day: day, Cycle: cycles[len(cycles)-1]}, nil
}

// RecoveryDay returns prev.Day when it is still listed, else the earliest
// listed day. days must be non-empty.
func RecoveryDay(prev Cursor, days []string) string {
	if slices.Contains(days, prev.Day) {
		return prev.Day
	}
	return days[0]
}
