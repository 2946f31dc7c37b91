package calendar

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/slotbook/backend/internal/storage/models"
)

// icsProductID identifies exported feeds.
const icsProductID = "-//slotbook//calendar export//EN"

// EncodeICS writes events as an iCalendar feed. Times are written in UTC.
func EncodeICS(w io.Writer, name string, events []models.CalendarEvent, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, icsProductID)
	if name != "" {
		cal.Props.SetText("X-WR-CALNAME", name)
	}

	for _, ev := range events {
		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, ev.ID)
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		event.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, ev.End.UTC())
		event.Props.SetText(ical.PropSummary, ev.Title)
		if ev.Description != "" {
			event.Props.SetText(ical.PropDescription, ev.Description)
		}
		if ev.Location != "" {
			event.Props.SetText(ical.PropLocation, ev.Location)
		}
		for _, email := range ev.Attendees {
			attendee := ical.NewProp(ical.PropAttendee)
			attendee.Value = "mailto:" + email
			event.Props.Add(attendee)
		}
		cal.Children = append(cal.Children, event.Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encoding calendar: %w", err)
	}
	return nil
}
