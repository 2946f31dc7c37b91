package calendar

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/slotbook/backend/internal/storage/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNavigatorMoves(t *testing.T) {
	t.Parallel()

	now := date(2024, time.March, 14)
	nav := NewNavigator(ModeWeek, time.UTC, fixedClock(now))

	load := nav.Next()
	if want := now.AddDate(0, 0, 7); !load.State.Ref.Equal(want) {
		t.Errorf("next ref = %v, want %v", load.State.Ref, want)
	}
	load = nav.Next()
	if want := now.AddDate(0, 0, 14); !load.State.Ref.Equal(want) {
		t.Errorf("next twice ref = %v, want %v", load.State.Ref, want)
	}

	load = nav.SetMode(ModeMonth)
	if load.State.Mode != ModeMonth || !load.State.Ref.Equal(now.AddDate(0, 0, 14)) {
		t.Errorf("set mode changed reference: %+v", load.State)
	}
	if load.State.Range != ComputeRange(load.State.Ref, ModeMonth) {
		t.Error("set mode did not recompute range")
	}

	load = nav.Previous()
	if want := date(2024, time.February, 28); !load.State.Ref.Equal(want) {
		t.Errorf("previous month ref = %v, want %v", load.State.Ref, want)
	}

	load = nav.Today()
	if !load.State.Ref.Equal(now) {
		t.Errorf("today ref = %v, want %v", load.State.Ref, now)
	}

	load = nav.SetDate(date(2025, time.July, 4))
	if load.State.Ref.Year() != 2025 || load.State.Ref.Month() != time.July {
		t.Errorf("set date ref = %v", load.State.Ref)
	}
}

func TestNavigatorDiscardsStaleLoads(t *testing.T) {
	t.Parallel()

	nav := NewNavigator(ModeWeek, time.UTC, fixedClock(date(2024, time.March, 14)))

	first := nav.Next()
	second := nav.Next()
	if second.Seq <= first.Seq {
		t.Fatalf("sequence did not increase: %d then %d", first.Seq, second.Seq)
	}

	// The first load finishes after the second was issued.
	if nav.Current(first.Seq) {
		t.Error("stale load reported as current")
	}
	if !nav.Current(second.Seq) {
		t.Error("latest load reported as stale")
	}
}

func TestSequencerConcurrent(t *testing.T) {
	t.Parallel()

	var seq Sequencer
	var wg sync.WaitGroup
	seen := make(chan uint64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- seq.Next()
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[uint64]bool{}
	for n := range seen {
		if unique[n] {
			t.Fatalf("duplicate sequence %d", n)
		}
		unique[n] = true
	}
	if !seq.IsLatest(100) {
		t.Error("latest should be 100")
	}
}

func TestBuildView(t *testing.T) {
	t.Parallel()

	ref := date(2024, time.March, 14)
	state := ViewState{Ref: ref, Mode: ModeDay, Range: ComputeRange(ref, ModeDay)}
	events := []models.CalendarEvent{event("a", time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC), time.Hour)}

	v := BuildView(state, events, nil, DefaultSlotConfig)
	if v.Date != "2024-03-14" || v.Title != "Thursday, March 14, 2024" {
		t.Errorf("date/title = %q / %q", v.Date, v.Title)
	}
	if len(v.Cells) != 1 || len(v.Cells[0].Events) != 1 {
		t.Errorf("cells = %+v", v.Cells)
	}
	if len(v.Slots) != 14 || len(v.Slots[2].Events) != 1 {
		t.Errorf("slots not built for day view")
	}
	if v.Notice != "" {
		t.Errorf("unexpected notice %q", v.Notice)
	}
}

func TestBuildViewFetchFailure(t *testing.T) {
	t.Parallel()

	ref := date(2024, time.March, 14)
	state := ViewState{Ref: ref, Mode: ModeWeek, Range: ComputeRange(ref, ModeWeek)}
	events := []models.CalendarEvent{event("a", ref, time.Hour)}

	v := BuildView(state, events, errors.New("upstream down"), DefaultSlotConfig)
	if v.Notice != FetchFailedNotice {
		t.Errorf("notice = %q", v.Notice)
	}
	if v.Range != state.Range || len(v.Cells) != 7 {
		t.Errorf("range or cells missing on failure: %+v", v)
	}
	for _, c := range v.Cells {
		if len(c.Events) != 0 {
			t.Error("events shown despite fetch failure")
		}
	}
	if v.Title != "March 10 - March 16, 2024" {
		t.Errorf("week title = %q", v.Title)
	}
	if v.Slots != nil {
		t.Error("week view should not carry hour slots")
	}
}
