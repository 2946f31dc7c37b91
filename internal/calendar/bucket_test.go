package calendar

import (
	"testing"
	"time"

	"github.com/slotbook/backend/internal/storage/models"
)

func event(id string, start time.Time, d time.Duration) models.CalendarEvent {
	return models.CalendarEvent{ID: id, Title: id, Start: start, End: start.Add(d)}
}

func TestDayCellsPlacesEachEventOnce(t *testing.T) {
	t.Parallel()

	ref := date(2024, time.March, 14)
	rng := ComputeRange(ref, ModeWeek)
	events := []models.CalendarEvent{
		event("sunday-morning", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), time.Hour),
		event("thursday", time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC), time.Hour),
		event("multi-day", time.Date(2024, 3, 15, 22, 0, 0, 0, time.UTC), 30*time.Hour),
		event("saturday-night", time.Date(2024, 3, 16, 23, 59, 0, 0, time.UTC), time.Minute),
		event("outside", time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC), time.Hour),
	}

	cells := DayCells(rng, ref, ModeWeek, events)
	if len(cells) != 7 {
		t.Fatalf("expected 7 cells, got %d", len(cells))
	}

	seen := map[string]int{}
	for _, cell := range cells {
		for _, ev := range cell.Events {
			seen[ev.ID]++
			if !sameDate(cell.Date, ev.Start) {
				t.Errorf("event %s in cell %s", ev.ID, cell.Date.Format("2006-01-02"))
			}
		}
		if !cell.InMonth {
			t.Errorf("week cells should never be dimmed: %s", cell.Date.Format("2006-01-02"))
		}
	}
	for _, id := range []string{"sunday-morning", "thursday", "multi-day", "saturday-night"} {
		if seen[id] != 1 {
			t.Errorf("event %s placed %d times", id, seen[id])
		}
	}
	if seen["outside"] != 0 {
		t.Error("event outside range was placed")
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}

func TestDayCellsMonthDimming(t *testing.T) {
	t.Parallel()

	ref := date(2024, time.March, 14)
	cells := DayCells(ComputeRange(ref, ModeMonth), ref, ModeMonth, nil)

	for _, cell := range cells {
		want := cell.Date.Month() == time.March
		if cell.InMonth != want {
			t.Errorf("%s: in_month = %v", cell.Date.Format("2006-01-02"), cell.InMonth)
		}
		if cell.Events == nil {
			t.Errorf("%s: events should be an empty slice", cell.Date.Format("2006-01-02"))
		}
	}
	// March 2024 starts on a Friday: Feb 25..Apr 6.
	if len(cells) != 42 {
		t.Errorf("expected 42 cells, got %d", len(cells))
	}
}

func TestDayCellsUseRangeLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+9", 9*3600)
	ref := time.Date(2024, 3, 14, 12, 0, 0, 0, loc)
	rng := ComputeRange(ref, ModeDay)
	// 20:00 UTC on the 13th is 05:00 on the 14th in UTC+9.
	ev := event("early", time.Date(2024, 3, 13, 20, 0, 0, 0, time.UTC), time.Hour)

	cells := DayCells(rng, ref, ModeDay, []models.CalendarEvent{ev})
	if len(cells) != 1 || len(cells[0].Events) != 1 {
		t.Fatalf("event not placed in local day: %+v", cells)
	}
}

func TestHourSlots(t *testing.T) {
	t.Parallel()

	day := date(2024, time.March, 14)
	events := []models.CalendarEvent{
		event("nine-thirty", time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC), 90*time.Minute),
		event("short", time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC), 5*time.Minute),
		event("too-early", time.Date(2024, 3, 14, 6, 0, 0, 0, time.UTC), time.Hour),
		event("last-slot", time.Date(2024, 3, 14, 20, 15, 0, 0, time.UTC), time.Hour),
		event("other-day", time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC), time.Hour),
	}

	slots := HourSlots(day, events, DefaultSlotConfig)
	if len(slots) != 14 {
		t.Fatalf("expected 14 slots (07-20), got %d", len(slots))
	}
	if slots[0].Hour != 7 || slots[13].Hour != 20 {
		t.Errorf("ladder = %d..%d", slots[0].Hour, slots[13].Hour)
	}

	nine := slots[9-7].Events
	if len(nine) != 1 || nine[0].Top != 0.5 || nine[0].Height != 1.5 {
		t.Errorf("09:30 placement = %+v", nine)
	}
	noon := slots[12-7].Events
	if len(noon) != 1 || noon[0].Height != DefaultSlotConfig.MinHeight {
		t.Errorf("short event should get minimum height: %+v", noon)
	}
	if last := slots[13].Events; len(last) != 1 || last[0].Top != 0.25 {
		t.Errorf("20:15 placement = %+v", last)
	}

	total := 0
	for _, s := range slots {
		total += len(s.Events)
	}
	if total != 3 {
		t.Errorf("expected 3 placed events, got %d", total)
	}
}

func TestHourSlotsOnDSTTransition(t *testing.T) {
	t.Parallel()

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, ny)
	events := []models.CalendarEvent{
		event("seven-thirty", time.Date(2024, 3, 10, 7, 30, 0, 0, ny), time.Hour),
	}

	slots := HourSlots(day, events, DefaultSlotConfig)
	for _, s := range slots {
		if s.Start.Hour() != s.Hour {
			t.Errorf("slot %d starts at %s", s.Hour, s.Start.Format(time.RFC3339))
		}
	}
	first := slots[0]
	if len(first.Events) != 1 || first.Events[0].Top != 0.5 {
		t.Errorf("07:30 placement = %+v", first.Events)
	}
	if first.Events[0].Event.Start.Before(first.Start) {
		t.Errorf("event at %s placed before slot start %s", first.Events[0].Event.Start, first.Start)
	}
}
