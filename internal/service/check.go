package service

import (
	"context"
	"strconv"
	"time"

	"github.com/magister-tools/magctl/internal/config"
	"github.com/magister-tools/magctl/internal/tracker"
)

// checkScheduleDays is how far ahead the change detector looks.
const checkScheduleDays = 7

// CheckChanges runs one polling cycle: fetch current data, diff it against
// the tracker state, and return the detected changes. Each data family is
// checked independently so one failing endpoint does not hide changes from
// the others. The first completed cycle establishes the baseline and
// reports nothing.
func (s *Service) CheckChanges(ctx context.Context, tr *tracker.Tracker, cfg config.NotificationConfig) ([]tracker.Change, error) {
	var all []tracker.Change

	if cfg.GradesEnabled {
		if grades, err := s.client.RecentGrades(ctx, 20); err == nil {
			observations := make([]tracker.GradeObservation, 0, len(grades))
			for i := range grades {
				observations = append(observations, tracker.GradeObservation{
					ID:          strconv.FormatInt(grades[i].ID, 10),
					Subject:     grades[i].Subject.Name,
					Value:       grades[i].Value,
					Description: grades[i].Description,
				})
			}
			changes, err := tr.CheckGrades(observations)
			if err != nil {
				return nil, err
			}
			all = append(all, changes...)
		} else {
			s.log.Debug("grade check failed: %v", err)
		}
	}

	if cfg.ScheduleEnabled {
		start := time.Now()
		end := start.AddDate(0, 0, checkScheduleDays)
		if appointments, err := s.client.Appointments(ctx, start, end); err == nil {
			observations := make([]tracker.AppointmentObservation, 0, len(appointments))
			for i := range appointments {
				observations = append(observations, tracker.AppointmentObservation{
					ID:        strconv.FormatInt(appointments[i].ID, 10),
					Subject:   appointments[i].SubjectName(),
					Cancelled: appointments[i].Cancelled,
					Modified:  appointments[i].Modified,
					Start:     appointments[i].Start.Format(time.RFC3339),
				})
			}
			changes, err := tr.CheckSchedule(observations)
			if err != nil {
				return nil, err
			}
			all = append(all, changes...)
		} else {
			s.log.Debug("schedule check failed: %v", err)
		}
	}

	if cfg.HomeworkEnabled {
		if grouped, err := s.Homework(ctx, HomeworkOptions{Days: checkScheduleDays}); err == nil {
			var observations []tracker.HomeworkObservation
			for _, day := range grouped {
				for _, item := range day.Items {
					observations = append(observations, tracker.HomeworkObservation{
						ID:          strconv.FormatInt(item.AppointmentID, 10),
						Subject:     item.Subject,
						Deadline:    item.Deadline,
						Description: item.Description,
					})
				}
			}
			changes, err := tr.CheckHomework(observations, cfg.HomeworkReminderHours)
			if err != nil {
				return nil, err
			}
			all = append(all, changes...)
		} else {
			s.log.Debug("homework check failed: %v", err)
		}
	}

	if !tr.IsInitialized() {
		if err := tr.MarkInitialized(); err != nil {
			return nil, err
		}
	}
	return all, nil
}
