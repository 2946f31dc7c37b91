package calendar

import (
	"sync"
	"time"

	"github.com/slotbook/backend/internal/storage/models"
)

// Sequencer issues increasing load numbers and tells whether a finished load
// is still the most recent one issued.
type Sequencer struct {
	mu     sync.Mutex
	latest uint64
}

// Next issues a new sequence number.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest++
	return s.latest
}

// IsLatest reports whether seq is the last number issued.
func (s *Sequencer) IsLatest(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq == s.latest
}

// ViewState is the position of a calendar view.
type ViewState struct {
	Ref   time.Time
	Mode  ViewMode
	Range Range
}

// Load is a view state paired with the sequence number of its fetch.
type Load struct {
	Seq   uint64
	State ViewState
}

// Navigator tracks the reference date and mode of one viewer. Every change
// issues a new Load; callers fetch events for it and apply the result only
// if Current(seq) still holds.
type Navigator struct {
	mu   sync.Mutex
	ref  time.Time
	mode ViewMode
	loc  *time.Location
	now  func() time.Time
	seq  Sequencer
}

// NewNavigator starts at now in loc. A nil loc means UTC.
func NewNavigator(mode ViewMode, loc *time.Location, now func() time.Time) *Navigator {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Navigator{ref: now().In(loc), mode: mode, loc: loc, now: now}
}

func (n *Navigator) issue() Load {
	return Load{
		Seq: n.seq.Next(),
		State: ViewState{
			Ref:   n.ref,
			Mode:  n.mode,
			Range: ComputeRange(n.ref, n.mode),
		},
	}
}

// Reload issues a load for the current position.
func (n *Navigator) Reload() Load {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.issue()
}

// Previous moves back one period.
func (n *Navigator) Previous() Load {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ref = Shift(n.ref, n.mode, -1)
	return n.issue()
}

// Next moves forward one period.
func (n *Navigator) Next() Load {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ref = Shift(n.ref, n.mode, 1)
	return n.issue()
}

// Today jumps to the clock's current date.
func (n *Navigator) Today() Load {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ref = n.now().In(n.loc)
	return n.issue()
}

// SetMode switches the view mode, keeping the reference date.
func (n *Navigator) SetMode(mode ViewMode) Load {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mode = mode
	return n.issue()
}

// SetDate moves to t.
func (n *Navigator) SetDate(t time.Time) Load {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ref = t.In(n.loc)
	return n.issue()
}

// Current reports whether seq belongs to the most recent load.
func (n *Navigator) Current(seq uint64) bool {
	return n.seq.IsLatest(seq)
}

// View is the render-ready calendar model.
type View struct {
	Seq    uint64     `json:"seq,omitempty"`
	Mode   ViewMode   `json:"mode"`
	Date   string     `json:"date"`
	Title  string     `json:"title"`
	Range  Range      `json:"range"`
	Cells  []DayCell  `json:"cells"`
	Slots  []HourSlot `json:"slots,omitempty"`
	Notice string     `json:"notice,omitempty"`
}

// FetchFailedNotice is shown when events could not be loaded.
const FetchFailedNotice = "Failed to load calendar events"

// BuildView assembles the view for state. When fetchErr is set the view
// keeps its range and cells but carries no events and a notice.
func BuildView(state ViewState, events []models.CalendarEvent, fetchErr error, cfg SlotConfig) View {
	v := View{
		Mode:  state.Mode,
		Date:  state.Ref.Format("2006-01-02"),
		Title: viewTitle(state),
		Range: state.Range,
	}
	if fetchErr != nil {
		events = nil
		v.Notice = FetchFailedNotice
	}

	v.Cells = DayCells(state.Range, state.Ref, state.Mode, events)
	if state.Mode == ModeDay {
		v.Slots = HourSlots(state.Ref, events, cfg)
	}
	return v
}

func viewTitle(state ViewState) string {
	switch state.Mode {
	case ModeDay:
		return state.Ref.Format("Monday, January 2, 2006")
	case ModeMonth:
		return state.Ref.Format("January 2006")
	default:
		start := state.Range.Start
		end := StartOfDay(state.Range.End)
		return start.Format("January 2") + " - " + end.Format("January 2, 2006")
	}
}
