// Package tracker detects changes between polling cycles: new grades,
// schedule changes, and homework deadlines entering the reminder window.
//
// State lives in one JSON file per school. Reads take a shared file lock,
// writes take an exclusive one and go through a temp file plus rename, so
// concurrent processes never observe a torn state file.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ChangeType classifies a detected change.
type ChangeType string

const (
	ChangeNewGrade    ChangeType = "new_grade"
	ChangeSchedule    ChangeType = "schedule_change"
	ChangeHomeworkDue ChangeType = "homework_due"
)

// Change is one detected difference against the stored state.
type Change struct {
	Type        ChangeType
	Subject     string
	Description string
	Details     Details
	Timestamp   time.Time
}

// Details carries the type-specific payload of a Change.
type Details struct {
	GradeID          string
	Value            string
	GradeDescription string

	AppointmentID string
	Start         string
	Cancelled     bool
	Modified      bool

	HomeworkID          string
	Deadline            string
	HomeworkDescription string
}

// GradeObservation is a grade as seen in the current polling cycle.
type GradeObservation struct {
	ID          string
	Subject     string
	Value       string
	Description string
}

// AppointmentObservation is a calendar entry as seen in the current cycle.
type AppointmentObservation struct {
	ID        string
	Subject   string
	Cancelled bool
	Modified  bool
	Start     string
}

// HomeworkObservation is a homework item with a deadline.
type HomeworkObservation struct {
	ID          string
	Subject     string
	Deadline    time.Time
	Description string
}

// Stats summarizes the tracked state.
type Stats struct {
	Initialized         bool
	LastCheck           *time.Time
	TrackedGrades       int
	TrackedAppointments int
	NotifiedHomework    int
}

// retentionPeriod bounds how long unobserved entries survive. Every save
// sweeps entries older than this so the state file cannot grow forever.
const retentionPeriod = 90 * 24 * time.Hour

type gradeEntry struct {
	Subject string    `json:"subject"`
	Value   string    `json:"value"`
	SeenAt  time.Time `json:"seen_at"`
}

type scheduleEntry struct {
	Subject      string    `json:"subject"`
	Fingerprint  string    `json:"fingerprint"`
	WasCancelled bool      `json:"was_cancelled"`
	SeenAt       time.Time `json:"seen_at"`
}

type homeworkEntry struct {
	Subject    string    `json:"subject"`
	Deadline   string    `json:"deadline"`
	NotifiedAt time.Time `json:"notified_at"`
}

type state struct {
	Grades      map[string]gradeEntry    `json:"grades"`
	Schedule    map[string]scheduleEntry `json:"schedule"`
	Homework    map[string]homeworkEntry `json:"homework"`
	LastCheck   *time.Time               `json:"last_check"`
	Initialized bool                     `json:"initialized"`
}

func emptyState() *state {
	return &state{
		Grades:   map[string]gradeEntry{},
		Schedule: map[string]scheduleEntry{},
		Homework: map[string]homeworkEntry{},
	}
}

// Tracker persists per-school observation state and reports changes.
type Tracker struct {
	path string
}

// New creates a tracker storing state at path (state_{school}.json).
func New(path string) *Tracker {
	return &Tracker{path: path}
}

func (t *Tracker) lockPath() string {
	return t.path + ".lock"
}

// load reads the state under a shared lock. Missing and corrupt files both
// read as empty; the next cycle rebuilds a baseline.
func (t *Tracker) load() *state {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return emptyState()
	}
	lock := flock.New(t.lockPath())
	if err := lock.RLock(); err != nil {
		return emptyState()
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(t.path)
	if err != nil {
		return emptyState()
	}
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return emptyState()
	}
	if s.Grades == nil {
		s.Grades = map[string]gradeEntry{}
	}
	if s.Schedule == nil {
		s.Schedule = map[string]scheduleEntry{}
	}
	if s.Homework == nil {
		s.Homework = map[string]homeworkEntry{}
	}
	return &s
}

// save writes the state under an exclusive lock with an atomic rename,
// sweeping expired entries first.
func (t *Tracker) save(s *state) error {
	now := time.Now().UTC()
	s.LastCheck = &now
	t.sweep(s, now)

	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	lock := flock.New(t.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock state file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (t *Tracker) sweep(s *state, now time.Time) {
	cutoff := now.Add(-retentionPeriod)
	for id, entry := range s.Grades {
		if entry.SeenAt.Before(cutoff) {
			delete(s.Grades, id)
		}
	}
	for id, entry := range s.Schedule {
		if entry.SeenAt.Before(cutoff) {
			delete(s.Schedule, id)
		}
	}
	for key, entry := range s.Homework {
		if entry.NotifiedAt.Before(cutoff) {
			delete(s.Homework, key)
		}
	}
}

// IsInitialized reports whether a first full cycle has completed. Until
// then changes are recorded but not reported, preventing a notification
// flood on first run.
func (t *Tracker) IsInitialized() bool {
	return t.load().Initialized
}

// MarkInitialized records that the first full cycle is done.
func (t *Tracker) MarkInitialized() error {
	s := t.load()
	s.Initialized = true
	return t.save(s)
}

// LastCheck returns the time of the last saved cycle.
func (t *Tracker) LastCheck() (time.Time, bool) {
	s := t.load()
	if s.LastCheck == nil {
		return time.Time{}, false
	}
	return *s.LastCheck, true
}

// Reset deletes all tracked state. The next cycle starts a fresh baseline.
func (t *Tracker) Reset() error {
	err := os.Remove(t.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// Stats returns counts of tracked entries.
func (t *Tracker) Stats() Stats {
	s := t.load()
	return Stats{
		Initialized:         s.Initialized,
		LastCheck:           s.LastCheck,
		TrackedGrades:       len(s.Grades),
		TrackedAppointments: len(s.Schedule),
		NotifiedHomework:    len(s.Homework),
	}
}

// CheckGrades reports grades not seen before. A grade's identity is its id;
// value edits on an existing grade are not reported. Every observation
// refreshes seen_at so grades the API keeps serving never age out of the
// retention window.
func (t *Tracker) CheckGrades(grades []GradeObservation) ([]Change, error) {
	s := t.load()
	now := time.Now().UTC()
	var changes []Change

	for _, g := range grades {
		if g.ID == "" {
			continue
		}
		_, known := s.Grades[g.ID]
		if !known && s.Initialized {
			changes = append(changes, Change{
				Type:        ChangeNewGrade,
				Subject:     g.Subject,
				Description: fmt.Sprintf("Nieuw cijfer: %s", g.Value),
				Details: Details{
					GradeID:          g.ID,
					Value:            g.Value,
					GradeDescription: g.Description,
				},
				Timestamp: now,
			})
		}
		s.Grades[g.ID] = gradeEntry{Subject: g.Subject, Value: g.Value, SeenAt: now}
	}

	if err := t.save(s); err != nil {
		return nil, err
	}
	return changes, nil
}

// CheckSchedule reports cancellations and modifications. A cancellation is
// reported only on the transition into the cancelled state; re-observing an
// already-cancelled lesson stays quiet.
func (t *Tracker) CheckSchedule(appointments []AppointmentObservation) ([]Change, error) {
	s := t.load()
	now := time.Now().UTC()
	var changes []Change

	for _, apt := range appointments {
		if apt.ID == "" {
			continue
		}
		fingerprint := fmt.Sprintf("%t:%t:%s", apt.Cancelled, apt.Modified, apt.Start)

		if known, ok := s.Schedule[apt.ID]; ok && known.Fingerprint != fingerprint && s.Initialized {
			switch {
			case apt.Cancelled && !known.WasCancelled:
				changes = append(changes, Change{
					Type:        ChangeSchedule,
					Subject:     apt.Subject,
					Description: "Les uitgevallen",
					Details: Details{
						AppointmentID: apt.ID,
						Start:         apt.Start,
						Cancelled:     true,
					},
					Timestamp: now,
				})
			case apt.Modified:
				changes = append(changes, Change{
					Type:        ChangeSchedule,
					Subject:     apt.Subject,
					Description: "Roosterwijziging",
					Details: Details{
						AppointmentID: apt.ID,
						Start:         apt.Start,
						Modified:      true,
					},
					Timestamp: now,
				})
			}
		}

		s.Schedule[apt.ID] = scheduleEntry{
			Subject:      apt.Subject,
			Fingerprint:  fingerprint,
			WasCancelled: apt.Cancelled,
			SeenAt:       now,
		}
	}

	if err := t.save(s); err != nil {
		return nil, err
	}
	return changes, nil
}

// CheckHomework reports items whose deadline falls within the reminder
// window. Each (item, window) pair is reported at most once, ever; the
// dedup key survives until retention expiry.
func (t *Tracker) CheckHomework(items []HomeworkObservation, reminderHours int) ([]Change, error) {
	if reminderHours <= 0 {
		reminderHours = 24
	}
	s := t.load()
	now := time.Now().UTC()
	var changes []Change

	for _, item := range items {
		if item.ID == "" || item.Deadline.IsZero() {
			continue
		}
		hoursUntil := item.Deadline.Sub(now).Hours()
		if hoursUntil <= 0 || hoursUntil > float64(reminderHours) {
			continue
		}

		key := fmt.Sprintf("%s:%dh", item.ID, reminderHours)
		if _, notified := s.Homework[key]; notified {
			continue
		}

		if s.Initialized {
			desc := item.Description
			// Truncate on runes so multi-byte text stays valid UTF-8.
			if runes := []rune(desc); len(runes) > 50 {
				desc = string(runes[:50]) + "..."
			}
			changes = append(changes, Change{
				Type:        ChangeHomeworkDue,
				Subject:     item.Subject,
				Description: fmt.Sprintf("Deadline over %d uur", int(hoursUntil)),
				Details: Details{
					HomeworkID:          item.ID,
					Deadline:            item.Deadline.Format(time.RFC3339),
					HomeworkDescription: desc,
				},
				Timestamp: now,
			})
		}
		s.Homework[key] = homeworkEntry{
			Subject:    item.Subject,
			Deadline:   item.Deadline.Format(time.RFC3339),
			NotifiedAt: now,
		}
	}

	if err := t.save(s); err != nil {
		return nil, err
	}
	return changes, nil
}
