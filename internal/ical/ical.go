// Package ical renders schedules and homework as iCalendar files that
// Apple Calendar, Google Calendar, and Outlook import directly.
package ical

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magister-tools/magctl/internal/api"
)

const (
	prodID   = "-//magister-tools//magctl//NL"
	timezone = "Europe/Amsterdam"
)

// ScheduleCalendar renders appointments as timed VEVENTs. Cancelled and
// modified lessons are marked in the summary and cancelled ones carry
// STATUS:CANCELLED so calendar apps strike them through.
func ScheduleCalendar(appointments []api.Appointment, name string) string {
	if name == "" {
		name = "Magister Rooster"
	}
	var events [][]string
	for i := range appointments {
		events = append(events, appointmentEvent(&appointments[i]))
	}
	return buildCalendar(name, events)
}

// HomeworkCalendar renders homework as all-day VEVENTs on the deadline date.
func HomeworkCalendar(items []api.Appointment, name string) string {
	if name == "" {
		name = "Magister Huiswerk"
	}
	var events [][]string
	for i := range items {
		events = append(events, homeworkEvent(&items[i]))
	}
	return buildCalendar(name, events)
}

// WriteFile writes calendar content to path, creating parent directories.
func WriteFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}
	return nil
}

func buildCalendar(name string, events [][]string) string {
	var sb strings.Builder
	write := func(line string) {
		sb.WriteString(line + "\r\n")
	}

	write("BEGIN:VCALENDAR")
	write("VERSION:2.0")
	write("PRODID:" + prodID)
	write("CALSCALE:GREGORIAN")
	write("METHOD:PUBLISH")
	write("X-WR-CALNAME:" + escapeValue(name))
	write("X-WR-TIMEZONE:" + timezone)
	for _, ev := range events {
		write("BEGIN:VEVENT")
		for _, line := range ev {
			write(line)
		}
		write("END:VEVENT")
	}
	write("END:VCALENDAR")
	return sb.String()
}

func appointmentEvent(apt *api.Appointment) []string {
	var lines []string
	lines = append(lines, "UID:"+eventUID("appointment", apt.ID, apt.Start.Time, apt.Description))
	lines = append(lines, "DTSTAMP:"+time.Now().UTC().Format("20060102T150405Z"))
	lines = append(lines, formatDateTime("DTSTART", apt.Start.Time))
	lines = append(lines, formatDateTime("DTEND", apt.End.Time))

	summary := apt.SubjectName()
	if summary == "" {
		summary = "Onbekend"
	}
	switch {
	case apt.Cancelled:
		summary = "[UITVAL] " + summary
	case apt.Modified:
		summary = "[WIJZIGING] " + summary
	}
	if apt.IsTest {
		summary += " (TOETS)"
	}
	lines = append(lines, "SUMMARY:"+escapeValue(summary))

	if room := apt.RoomName(); room != "" {
		lines = append(lines, "LOCATION:"+escapeValue(room))
	}

	var desc []string
	if apt.Period > 0 {
		desc = append(desc, fmt.Sprintf("Les %d", apt.Period))
	}
	if teacher := apt.TeacherName(); teacher != "" {
		desc = append(desc, "Docent: "+teacher)
	}
	if apt.HasHomework() {
		desc = append(desc, "", "--- Huiswerk ---", apt.HomeworkText())
	}
	if len(desc) > 0 {
		lines = append(lines, "DESCRIPTION:"+escapeValue(strings.Join(desc, "\n")))
	}

	var categories []string
	if apt.IsTest {
		categories = append(categories, "Toets")
	}
	if apt.HasHomework() {
		categories = append(categories, "Huiswerk")
	}
	if apt.Cancelled {
		categories = append(categories, "Uitval")
	}
	if len(categories) > 0 {
		lines = append(lines, "CATEGORIES:"+strings.Join(categories, ","))
	}

	if apt.Cancelled {
		lines = append(lines, "STATUS:CANCELLED")
	} else {
		lines = append(lines, "STATUS:CONFIRMED")
	}
	return lines
}

func homeworkEvent(apt *api.Appointment) []string {
	deadline := apt.Start.Time

	var lines []string
	lines = append(lines, "UID:"+eventUID("homework", apt.ID, deadline, apt.HomeworkText()))
	lines = append(lines, "DTSTAMP:"+time.Now().UTC().Format("20060102T150405Z"))
	lines = append(lines, "DTSTART;VALUE=DATE:"+deadline.Format("20060102"))
	lines = append(lines, "DTEND;VALUE=DATE:"+deadline.AddDate(0, 0, 1).Format("20060102"))

	subject := apt.SubjectName()
	if apt.IsTest {
		lines = append(lines, "SUMMARY:"+escapeValue("TOETS: "+subject))
	} else {
		lines = append(lines, "SUMMARY:"+escapeValue("HW: "+subject))
	}

	var desc []string
	if text := apt.HomeworkText(); text != "" {
		desc = append(desc, text)
	}
	if teacher := apt.TeacherName(); teacher != "" {
		desc = append(desc, "Docent: "+teacher)
	}
	if room := apt.RoomName(); room != "" {
		desc = append(desc, "Lokaal: "+room)
	}
	if len(desc) > 0 {
		lines = append(lines, "DESCRIPTION:"+escapeValue(strings.Join(desc, "\n")))
	}

	if apt.IsTest {
		lines = append(lines, "CATEGORIES:Toets,Huiswerk")
	} else {
		lines = append(lines, "CATEGORIES:Huiswerk")
	}
	return lines
}

// eventUID builds a stable identifier so re-exports update events in place
// instead of duplicating them. Items without an id get a deterministic
// UUID derived from their content.
func eventUID(prefix string, id int64, when time.Time, fallback string) string {
	if id != 0 {
		return fmt.Sprintf("%s-%d-%s@magctl", prefix, id, when.Format("20060102"))
	}
	seed := fmt.Sprintf("%s:%s:%s", prefix, when.Format("20060102"), fallback)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String() + "@magctl"
}

// formatDateTime renders a timed property in the Dutch local timezone,
// falling back to UTC when the tz database is unavailable.
func formatDateTime(prop string, t time.Time) string {
	if loc, err := time.LoadLocation(timezone); err == nil {
		return fmt.Sprintf("%s;TZID=%s:%s", prop, timezone, t.In(loc).Format("20060102T150405"))
	}
	return fmt.Sprintf("%s:%s", prop, t.UTC().Format("20060102T150405Z"))
}

// escapeValue escapes text for iCalendar property values.
func escapeValue(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
