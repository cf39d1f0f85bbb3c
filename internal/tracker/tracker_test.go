package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "state_demo.json"))
}

func initialized(t *testing.T) *Tracker {
	t.Helper()
	tr := newTestTracker(t)
	if err := tr.MarkInitialized(); err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestFirstCycleSuppressed(t *testing.T) {
	tr := newTestTracker(t)

	changes, err := tr.CheckGrades([]GradeObservation{
		{ID: "1", Subject: "Wiskunde", Value: "7,5"},
		{ID: "2", Subject: "Engels", Value: "8"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("first cycle must not report changes, got %d", len(changes))
	}

	// The grades are recorded anyway.
	stats := tr.Stats()
	if stats.TrackedGrades != 2 {
		t.Errorf("tracked grades = %d, want 2", stats.TrackedGrades)
	}

	if err := tr.MarkInitialized(); err != nil {
		t.Fatal(err)
	}

	// Same grades again: still no changes.
	changes, err = tr.CheckGrades([]GradeObservation{{ID: "1", Subject: "Wiskunde", Value: "7,5"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("known grades must not be reported, got %d", len(changes))
	}

	// A genuinely new grade is reported now.
	changes, err = tr.CheckGrades([]GradeObservation{{ID: "3", Subject: "Natuurkunde", Value: "6", Description: "Toets H2"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want 1", len(changes))
	}
	c := changes[0]
	if c.Type != ChangeNewGrade || c.Subject != "Natuurkunde" || c.Details.Value != "6" {
		t.Errorf("unexpected change: %+v", c)
	}
}

func TestGradeIdentityIsID(t *testing.T) {
	tr := initialized(t)

	if _, err := tr.CheckGrades([]GradeObservation{{ID: "1", Subject: "Wiskunde", Value: "7,5"}}); err != nil {
		t.Fatal(err)
	}

	// A corrected value on the same grade id is not a new grade.
	changes, err := tr.CheckGrades([]GradeObservation{{ID: "1", Subject: "Wiskunde", Value: "8,0"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("value edit reported as new grade: %+v", changes)
	}
}

func TestScheduleCancellationTransition(t *testing.T) {
	tr := initialized(t)

	base := []AppointmentObservation{{ID: "100", Subject: "Gym", Start: "2026-01-05T08:30:00Z"}}
	if _, err := tr.CheckSchedule(base); err != nil {
		t.Fatal(err)
	}

	cancelled := []AppointmentObservation{{ID: "100", Subject: "Gym", Start: "2026-01-05T08:30:00Z", Cancelled: true}}
	changes, err := tr.CheckSchedule(cancelled)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].Description != "Les uitgevallen" || !changes[0].Details.Cancelled {
		t.Fatalf("cancellation not reported: %+v", changes)
	}

	// Observing the same cancelled lesson again stays quiet.
	changes, err = tr.CheckSchedule(cancelled)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("repeated cancellation reported again: %+v", changes)
	}
}

func TestScheduleModification(t *testing.T) {
	tr := initialized(t)

	if _, err := tr.CheckSchedule([]AppointmentObservation{
		{ID: "100", Subject: "Gym", Start: "2026-01-05T08:30:00Z"},
	}); err != nil {
		t.Fatal(err)
	}

	changes, err := tr.CheckSchedule([]AppointmentObservation{
		{ID: "100", Subject: "Gym", Start: "2026-01-05T10:30:00Z", Modified: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].Description != "Roosterwijziging" || !changes[0].Details.Modified {
		t.Fatalf("modification not reported: %+v", changes)
	}
}

func TestScheduleNewAppointmentQuiet(t *testing.T) {
	tr := initialized(t)

	// A never-seen appointment is recorded but produces no change; only
	// transitions on known appointments are events.
	changes, err := tr.CheckSchedule([]AppointmentObservation{
		{ID: "200", Subject: "Scheikunde", Start: "2026-01-06T08:30:00Z", Cancelled: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("new appointment should not report: %+v", changes)
	}
}

func TestHomeworkReminderWindow(t *testing.T) {
	tr := initialized(t)
	now := time.Now()

	items := []HomeworkObservation{
		{ID: "hw1", Subject: "Wiskunde", Deadline: now.Add(10 * time.Hour), Description: "Opgave 1-5"},
		{ID: "hw2", Subject: "Engels", Deadline: now.Add(72 * time.Hour), Description: "Essay"},
		{ID: "hw3", Subject: "Frans", Deadline: now.Add(-2 * time.Hour), Description: "Te laat"},
	}

	changes, err := tr.CheckHomework(items, 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Fatalf("got %d changes, want only the item inside the window", len(changes))
	}
	if changes[0].Subject != "Wiskunde" || changes[0].Type != ChangeHomeworkDue {
		t.Errorf("unexpected change: %+v", changes[0])
	}
}

func TestHomeworkReminderDedup(t *testing.T) {
	tr := initialized(t)
	deadline := time.Now().Add(10 * time.Hour)
	items := []HomeworkObservation{{ID: "hw1", Subject: "Wiskunde", Deadline: deadline}}

	changes, err := tr.CheckHomework(items, 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Fatalf("first check: got %d changes", len(changes))
	}

	// Same item and window: never again.
	changes, err = tr.CheckHomework(items, 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("duplicate reminder sent: %+v", changes)
	}

	// A different reminder window is a separate notification.
	changes, err = tr.CheckHomework(items, 12)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Errorf("separate window should notify once: %+v", changes)
	}
}

func TestHomeworkDescriptionTruncated(t *testing.T) {
	tr := initialized(t)
	long := ""
	for i := 0; i < 10; i++ {
		long += "0123456789"
	}

	changes, err := tr.CheckHomework([]HomeworkObservation{
		{ID: "hw1", Subject: "Wiskunde", Deadline: time.Now().Add(time.Hour), Description: long},
	}, 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Fatal("expected one change")
	}
	if got := changes[0].Details.HomeworkDescription; len(got) != 53 {
		t.Errorf("description length = %d, want 50 + ellipsis", len(got))
	}
}

func TestHomeworkDescriptionTruncatesOnRunes(t *testing.T) {
	tr := initialized(t)
	// The 50th rune is multi-byte, so a byte-based cut would split it.
	long := strings.Repeat("a", 49) + "é én daarna nog een heel verhaal"

	changes, err := tr.CheckHomework([]HomeworkObservation{
		{ID: "hw1", Subject: "Frans", Deadline: time.Now().Add(time.Hour), Description: long},
	}, 24)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Fatal("expected one change")
	}
	got := changes[0].Details.HomeworkDescription
	if !utf8.ValidString(got) {
		t.Errorf("truncated description is not valid UTF-8: %q", got)
	}
	if runes := []rune(strings.TrimSuffix(got, "...")); len(runes) != 50 {
		t.Errorf("truncated to %d runes, want 50", len(runes))
	}
}

func TestRetentionSweep(t *testing.T) {
	tr := newTestTracker(t)

	// Write a state file with an entry far beyond retention and one fresh.
	old := time.Now().UTC().Add(-retentionPeriod - 24*time.Hour)
	fresh := time.Now().UTC()
	s := &state{
		Grades: map[string]gradeEntry{
			"stale": {Subject: "Oud", Value: "5", SeenAt: old},
			"fresh": {Subject: "Nieuw", Value: "8", SeenAt: fresh},
		},
		Schedule: map[string]scheduleEntry{
			"stale": {Subject: "Oud", Fingerprint: "f", SeenAt: old},
		},
		Homework: map[string]homeworkEntry{
			"stale:24h": {Subject: "Oud", NotifiedAt: old},
		},
		Initialized: true,
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tr.path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	// Any save sweeps; an empty check is enough.
	if _, err := tr.CheckGrades(nil); err != nil {
		t.Fatal(err)
	}

	stats := tr.Stats()
	if stats.TrackedGrades != 1 {
		t.Errorf("tracked grades = %d, want stale entry swept", stats.TrackedGrades)
	}
	if stats.TrackedAppointments != 0 {
		t.Errorf("tracked appointments = %d, want 0", stats.TrackedAppointments)
	}
	if stats.NotifiedHomework != 0 {
		t.Errorf("notified homework = %d, want 0", stats.NotifiedHomework)
	}
}

func TestSeenAtRefreshedOnObservation(t *testing.T) {
	tr := initialized(t)

	// An entry just inside the retention cutoff stays alive as long as it
	// keeps being observed.
	nearCutoff := time.Now().UTC().Add(-retentionPeriod + time.Hour)
	s := tr.load()
	s.Grades["g1"] = gradeEntry{Subject: "Wiskunde", Value: "7", SeenAt: nearCutoff}
	if err := tr.save(s); err != nil {
		t.Fatal(err)
	}

	if _, err := tr.CheckGrades([]GradeObservation{{ID: "g1", Subject: "Wiskunde", Value: "7"}}); err != nil {
		t.Fatal(err)
	}

	reloaded := tr.load()
	if entry, ok := reloaded.Grades["g1"]; !ok {
		t.Fatal("observed grade disappeared")
	} else if !entry.SeenAt.After(nearCutoff) {
		t.Error("seen_at not refreshed on observation")
	}
}

func TestCorruptStateReadsAsEmpty(t *testing.T) {
	tr := newTestTracker(t)
	if err := os.WriteFile(tr.path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	if tr.IsInitialized() {
		t.Error("corrupt state should read as uninitialized")
	}
	stats := tr.Stats()
	if stats.TrackedGrades != 0 {
		t.Errorf("corrupt state should read as empty, got %+v", stats)
	}
}

func TestReset(t *testing.T) {
	tr := initialized(t)
	if _, err := tr.CheckGrades([]GradeObservation{{ID: "1", Subject: "X", Value: "7"}}); err != nil {
		t.Fatal(err)
	}

	if err := tr.Reset(); err != nil {
		t.Fatal(err)
	}
	if tr.IsInitialized() {
		t.Error("reset should clear initialized flag")
	}
	if tr.Stats().TrackedGrades != 0 {
		t.Error("reset should clear tracked grades")
	}

	// Resetting again is fine.
	if err := tr.Reset(); err != nil {
		t.Errorf("second reset: %v", err)
	}
}

func TestStateFilePermissions(t *testing.T) {
	tr := initialized(t)

	info, err := os.Stat(tr.path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("state file permissions = %o, want 0600", perm)
	}
}

func TestLastCheckUpdated(t *testing.T) {
	tr := newTestTracker(t)

	if _, ok := tr.LastCheck(); ok {
		t.Error("fresh tracker should have no last check")
	}

	before := time.Now().UTC().Add(-time.Second)
	if _, err := tr.CheckGrades(nil); err != nil {
		t.Fatal(err)
	}
	last, ok := tr.LastCheck()
	if !ok {
		t.Fatal("expected last check after a cycle")
	}
	if last.Before(before) {
		t.Errorf("last check %s not updated", last)
	}
}
