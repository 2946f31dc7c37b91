package calendar

import (
	"time"

	"github.com/slotbook/backend/internal/storage/models"
)

// DayCell is one day of a week or month grid.
type DayCell struct {
	Date    time.Time              `json:"date"`
	InMonth bool                   `json:"in_month"`
	Events  []models.CalendarEvent `json:"events"`
}

// SlotConfig describes the hourly ladder of a day view.
type SlotConfig struct {
	FirstHour int
	LastHour  int
	// MinHeight is the smallest rendered event height, in slot units.
	MinHeight float64
}

// DefaultSlotConfig shows 07:00 through 20:00.
var DefaultSlotConfig = SlotConfig{FirstHour: 7, LastHour: 20, MinHeight: 1.0 / 3}

// PlacedEvent is an event positioned inside an hour slot. Top and Height are
// fractions of one slot.
type PlacedEvent struct {
	Event  models.CalendarEvent `json:"event"`
	Top    float64              `json:"top"`
	Height float64              `json:"height"`
}

// HourSlot is one row of a day view.
type HourSlot struct {
	Hour   int           `json:"hour"`
	Start  time.Time     `json:"start"`
	Events []PlacedEvent `json:"events"`
}

type dateKey struct {
	year  int
	month time.Month
	day   int
}

func keyOf(t time.Time) dateKey {
	y, m, d := t.Date()
	return dateKey{y, m, d}
}

// DayCells lays events onto one cell per day of rng. An event belongs to the
// cell of its start date in the range's location; events starting outside
// the range are dropped and multi-day events are not split. In month mode
// cells outside ref's month are marked InMonth=false.
func DayCells(rng Range, ref time.Time, mode ViewMode, events []models.CalendarEvent) []DayCell {
	loc := rng.Start.Location()
	refMonth := ref.In(loc).Month()

	var cells []DayCell
	index := make(map[dateKey]int)
	for d := StartOfDay(rng.Start); !d.After(rng.End); d = d.AddDate(0, 0, 1) {
		index[keyOf(d)] = len(cells)
		cells = append(cells, DayCell{
			Date:    d,
			InMonth: mode != ModeMonth || d.Month() == refMonth,
			Events:  []models.CalendarEvent{},
		})
	}

	for _, ev := range events {
		i, ok := index[keyOf(ev.Start.In(loc))]
		if !ok {
			continue
		}
		cells[i].Events = append(cells[i].Events, ev)
	}
	return cells
}

// HourSlots builds the hourly ladder for day and places that day's events in
// the slot of their start hour. Events starting outside the ladder are not
// shown.
func HourSlots(day time.Time, events []models.CalendarEvent, cfg SlotConfig) []HourSlot {
	start := StartOfDay(day)
	y, m, d := start.Date()
	slots := make([]HourSlot, 0, cfg.LastHour-cfg.FirstHour+1)
	for h := cfg.FirstHour; h <= cfg.LastHour; h++ {
		// Wall-clock hours, so DST transition days keep their labels.
		slots = append(slots, HourSlot{
			Hour:   h,
			Start:  time.Date(y, m, d, h, 0, 0, 0, start.Location()),
			Events: []PlacedEvent{},
		})
	}

	want := keyOf(start)
	for _, ev := range events {
		local := ev.Start.In(start.Location())
		if keyOf(local) != want {
			continue
		}
		h := local.Hour()
		if h < cfg.FirstHour || h > cfg.LastHour {
			continue
		}
		height := ev.Duration().Hours()
		if height < cfg.MinHeight {
			height = cfg.MinHeight
		}
		i := h - cfg.FirstHour
		slots[i].Events = append(slots[i].Events, PlacedEvent{
			Event:  ev,
			Top:    float64(local.Minute()) / 60,
			Height: height,
		})
	}
	return slots
}
