// Package service holds the business logic between the API client and the
// surfaces that present it (CLI commands, MCP tools, exports).
package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/magister-tools/magctl/internal/api"
	"github.com/magister-tools/magctl/internal/logger"
)

// attachmentFetchLimit bounds concurrent detail fetches during enrichment.
const attachmentFetchLimit = 5

const sufficientThreshold = 5.5

// infoTypeTest marks test appointments in the API's InfoType field.
const infoTypeTest = 2

// Client is the API surface the service layer consumes. *api.Client
// implements it; tests substitute a fake.
type Client interface {
	Account(ctx context.Context) (*api.Account, error)
	Appointments(ctx context.Context, start, end time.Time) ([]api.Appointment, error)
	Homework(ctx context.Context, start, end time.Time) ([]api.Appointment, error)
	RecentGrades(ctx context.Context, limit int) ([]api.Grade, error)
	Schedule(ctx context.Context, day time.Time) ([]api.Appointment, error)
	Appointment(ctx context.Context, id int64) (*api.Appointment, error)
	PersonName() string
}

// AttachmentInfo describes a homework attachment for display.
type AttachmentInfo struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Size        string `json:"size"`
	ContentType string `json:"content_type"`
	DownloadURL string `json:"download_url,omitempty"`
}

// HomeworkItem is a homework assignment with its lesson context.
type HomeworkItem struct {
	AppointmentID int64            `json:"appointment_id"`
	Subject       string           `json:"subject"`
	SubjectAbbr   string           `json:"subject_abbr,omitempty"`
	Description   string           `json:"description"`
	Deadline      time.Time        `json:"deadline"`
	LessonNumber  int              `json:"lesson_number,omitempty"`
	Location      string           `json:"location,omitempty"`
	Teacher       string           `json:"teacher,omitempty"`
	IsTest        bool             `json:"is_test"`
	IsCompleted   bool             `json:"is_completed"`
	Attachments   []AttachmentInfo `json:"attachments,omitempty"`
}

// HomeworkDay groups homework items sharing a deadline date.
type HomeworkDay struct {
	Date  time.Time      `json:"date"`
	Items []HomeworkItem `json:"items"`
}

var dutchDays = []string{"zondag", "maandag", "dinsdag", "woensdag", "donderdag", "vrijdag", "zaterdag"}

var dutchMonths = []string{"jan", "feb", "mrt", "apr", "mei", "jun", "jul", "aug", "sep", "okt", "nov", "dec"}

// Label returns a human-readable Dutch day label, with "Vandaag" and
// "Morgen" for the nearest days.
func (d *HomeworkDay) Label() string {
	today := time.Now().Truncate(24 * time.Hour)
	day := d.Date.Truncate(24 * time.Hour)
	switch {
	case day.Equal(today):
		return "Vandaag"
	case day.Equal(today.AddDate(0, 0, 1)):
		return "Morgen"
	}
	name := dutchDays[d.Date.Weekday()]
	return fmt.Sprintf("%s%s %d %s", strings.ToUpper(name[:1]), name[1:], d.Date.Day(), dutchMonths[d.Date.Month()-1])
}

// GradeInfo is a grade prepared for display.
type GradeInfo struct {
	Subject      string     `json:"subject"`
	Value        string     `json:"grade"`
	Weight       *float64   `json:"weight,omitempty"`
	EnteredAt    *time.Time `json:"date,omitempty"`
	Description  string     `json:"description,omitempty"`
	IsSufficient bool       `json:"is_sufficient"`
}

// HomeworkOptions filter a homework query.
type HomeworkOptions struct {
	Days             int
	Subject          string
	IncludeCompleted bool
	WithAttachments  bool
}

// Service is the shared business logic layer.
type Service struct {
	client Client
	log    *logger.Logger
}

// New creates a service on top of an API client.
func New(client Client, log *logger.Logger) *Service {
	return &Service{client: client, log: log}
}

func newHomeworkItem(apt *api.Appointment) HomeworkItem {
	item := HomeworkItem{
		AppointmentID: apt.ID,
		Subject:       apt.SubjectName(),
		Description:   apt.HomeworkText(),
		Deadline:      apt.Start.Time,
		LessonNumber:  apt.Period,
		Location:      apt.RoomName(),
		Teacher:       apt.TeacherName(),
		IsTest:        apt.IsTest || apt.InfoType == infoTypeTest,
		IsCompleted:   apt.Completed,
	}
	if item.Subject == "" {
		item.Subject = "Onbekend"
	}
	if len(apt.Subjects) > 0 {
		item.SubjectAbbr = apt.Subjects[0].Abbreviation
	}
	for i := range apt.Attachments {
		att := &apt.Attachments[i]
		item.Attachments = append(item.Attachments, AttachmentInfo{
			ID:          att.ID,
			Name:        att.Name,
			Size:        att.HumanSize(),
			ContentType: att.ContentType,
			DownloadURL: att.DownloadPath(),
		})
	}
	return item
}

// Homework returns upcoming homework grouped by deadline date.
func (s *Service) Homework(ctx context.Context, opts HomeworkOptions) ([]HomeworkDay, error) {
	days := opts.Days
	if days <= 0 {
		days = 7
	}
	start := time.Now()
	end := start.AddDate(0, 0, days)

	appointments, err := s.client.Homework(ctx, start, end)
	if err != nil {
		return nil, err
	}

	if opts.WithAttachments {
		appointments = s.enrichAttachments(ctx, appointments)
	}

	var items []HomeworkItem
	for i := range appointments {
		item := newHomeworkItem(&appointments[i])
		if !opts.IncludeCompleted && item.IsCompleted {
			continue
		}
		if opts.Subject != "" && !matchesSubject(&item, opts.Subject) {
			continue
		}
		items = append(items, item)
	}

	return groupByDate(items), nil
}

// UpcomingTests returns test appointments in the next days.
func (s *Service) UpcomingTests(ctx context.Context, days int) ([]HomeworkItem, error) {
	if days <= 0 {
		days = 14
	}
	grouped, err := s.Homework(ctx, HomeworkOptions{Days: days})
	if err != nil {
		return nil, err
	}
	var tests []HomeworkItem
	for _, day := range grouped {
		for _, item := range day.Items {
			if item.IsTest {
				tests = append(tests, item)
			}
		}
	}
	return tests, nil
}

// enrichAttachments fetches full details for appointments that advertise
// attachments. Fetches run concurrently with a bounded limit; a failed
// fetch leaves the list entry as is rather than failing the whole query.
func (s *Service) enrichAttachments(ctx context.Context, appointments []api.Appointment) []api.Appointment {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(attachmentFetchLimit)

	for i := range appointments {
		if !appointments[i].HasAttachments || len(appointments[i].Attachments) > 0 {
			continue
		}
		g.Go(func() error {
			full, err := s.client.Appointment(gctx, appointments[i].ID)
			if err != nil {
				s.log.Debug("attachment fetch for appointment %d failed: %v", appointments[i].ID, err)
				return nil
			}
			appointments[i].Attachments = full.Attachments
			return nil
		})
	}
	_ = g.Wait()
	return appointments
}

func matchesSubject(item *HomeworkItem, subject string) bool {
	needle := strings.ToLower(subject)
	if strings.Contains(strings.ToLower(item.Subject), needle) {
		return true
	}
	return item.SubjectAbbr != "" && strings.Contains(strings.ToLower(item.SubjectAbbr), needle)
}

func groupByDate(items []HomeworkItem) []HomeworkDay {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Deadline.Equal(items[j].Deadline) {
			return items[i].Deadline.Before(items[j].Deadline)
		}
		return items[i].Subject < items[j].Subject
	})

	var grouped []HomeworkDay
	for _, item := range items {
		day := time.Date(item.Deadline.Year(), item.Deadline.Month(), item.Deadline.Day(), 0, 0, 0, 0, item.Deadline.Location())
		if n := len(grouped); n > 0 && grouped[n-1].Date.Equal(day) {
			grouped[n-1].Items = append(grouped[n-1].Items, item)
			continue
		}
		grouped = append(grouped, HomeworkDay{Date: day, Items: []HomeworkItem{item}})
	}
	return grouped
}

// RecentGrades returns the latest grades prepared for display.
func (s *Service) RecentGrades(ctx context.Context, limit int) ([]GradeInfo, error) {
	grades, err := s.client.RecentGrades(ctx, limit)
	if err != nil {
		return nil, err
	}
	infos := make([]GradeInfo, 0, len(grades))
	for i := range grades {
		infos = append(infos, newGradeInfo(&grades[i]))
	}
	return infos, nil
}

func newGradeInfo(g *api.Grade) GradeInfo {
	info := GradeInfo{
		Subject:     g.Subject.Name,
		Value:       g.Value,
		Weight:      g.Weight,
		Description: g.Description,
	}
	if info.Subject == "" {
		info.Subject = "Onbekend"
	}
	if !g.EnteredAt.IsZero() {
		t := g.EnteredAt.Time
		info.EnteredAt = &t
	}
	// Letter grades count as sufficient; only a parsed numeric value below
	// the threshold marks a grade insufficient.
	info.IsSufficient = true
	if v, ok := g.NumericValue(); ok {
		info.IsSufficient = v >= sufficientThreshold
	}
	return info
}

// WeightedAverage computes the weighted mean of the numeric grades,
// rounded to two decimals. Letter grades are skipped; a missing weight
// counts as 1. The second result is false when nothing was numeric.
func WeightedAverage(grades []GradeInfo) (float64, bool) {
	var totalWeighted, totalWeight float64
	for i := range grades {
		v, err := strconv.ParseFloat(strings.ReplaceAll(grades[i].Value, ",", "."), 64)
		if err != nil {
			continue
		}
		weight := 1.0
		if grades[i].Weight != nil && *grades[i].Weight > 0 {
			weight = *grades[i].Weight
		}
		totalWeighted += v * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0, false
	}
	return math.Round(totalWeighted/totalWeight*100) / 100, true
}

// Schedule returns the lessons for one day, sorted by start time.
func (s *Service) Schedule(ctx context.Context, day time.Time) ([]api.Appointment, error) {
	appointments, err := s.client.Schedule(ctx, day)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(appointments, func(i, j int) bool {
		return appointments[i].Start.Before(appointments[j].Start.Time)
	})
	return appointments, nil
}

// ScheduleRange returns the lessons for a date span, sorted by start time.
func (s *Service) ScheduleRange(ctx context.Context, start, end time.Time) ([]api.Appointment, error) {
	appointments, err := s.client.Appointments(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(appointments, func(i, j int) bool {
		return appointments[i].Start.Before(appointments[j].Start.Time)
	})
	return appointments, nil
}

// Summary is a compact overview of the student's situation, sized for an
// agent to consume in one tool call.
type Summary struct {
	StudentName    string        `json:"student_name"`
	HomeworkCount  int           `json:"homework_count"`
	TestCount      int           `json:"test_count"`
	NextTest       *HomeworkItem `json:"next_test,omitempty"`
	RecentGrades   []GradeInfo   `json:"recent_grades"`
	AverageGrade   *float64      `json:"average_grade,omitempty"`
	LessonsToday   int           `json:"lessons_today"`
	CancelledToday int           `json:"cancelled_today"`
}

// StudentSummary assembles the overview. Partial failures degrade the
// summary instead of failing it; only a failed account fetch is fatal.
func (s *Service) StudentSummary(ctx context.Context) (*Summary, error) {
	if _, err := s.client.Account(ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}
	summary := &Summary{StudentName: s.client.PersonName()}

	if homework, err := s.Homework(ctx, HomeworkOptions{Days: 7}); err == nil {
		for _, day := range homework {
			for _, item := range day.Items {
				summary.HomeworkCount++
				if item.IsTest {
					summary.TestCount++
					if summary.NextTest == nil {
						test := item
						summary.NextTest = &test
					}
				}
			}
		}
	} else {
		s.log.Debug("summary homework fetch failed: %v", err)
	}

	if grades, err := s.RecentGrades(ctx, 10); err == nil {
		summary.RecentGrades = grades
		if avg, ok := WeightedAverage(grades); ok {
			summary.AverageGrade = &avg
		}
	} else {
		s.log.Debug("summary grades fetch failed: %v", err)
	}

	if lessons, err := s.Schedule(ctx, time.Now()); err == nil {
		for i := range lessons {
			summary.LessonsToday++
			if lessons[i].Cancelled {
				summary.CancelledToday++
			}
		}
	} else {
		s.log.Debug("summary schedule fetch failed: %v", err)
	}

	return summary, nil
}
