// Package api is the HTTP client for the Magister REST API.
//
// The wire format uses Dutch PascalCase field names ("Omschrijving",
// "CijferStr"); the types here keep those as JSON tags and expose English
// accessors.
package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Time handles the API's timestamp variants: RFC 3339 with or without
// fractional seconds, and zoneless timestamps from older deployments.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

func (t *Time) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", raw)
}

func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339))
}

// Subject is a school subject.
type Subject struct {
	ID           int64  `json:"Id"`
	Name         string `json:"Naam"`
	Abbreviation string `json:"Afkorting,omitempty"`
}

// Room is a classroom.
type Room struct {
	Name string `json:"Naam"`
}

// Teacher is a staff member on an appointment.
type Teacher struct {
	Name         string `json:"Naam"`
	Abbreviation string `json:"Afkorting,omitempty"`
}

// AttachmentLink points at attachment content.
type AttachmentLink struct {
	Rel  string `json:"Rel"`
	Href string `json:"Href"`
}

// Attachment is a file attached to an appointment.
type Attachment struct {
	ID          int64            `json:"Id"`
	Name        string           `json:"Naam"`
	ContentType string           `json:"ContentType"`
	Size        int64            `json:"Grootte"`
	Date        *Time            `json:"Datum,omitempty"`
	Links       []AttachmentLink `json:"Links,omitempty"`
}

// DownloadPath returns the content link, or "" when none exists.
func (a *Attachment) DownloadPath() string {
	for _, link := range a.Links {
		if link.Rel == "Contents" {
			return link.Href
		}
	}
	return ""
}

// HumanSize formats the attachment size for display.
func (a *Attachment) HumanSize() string {
	switch {
	case a.Size < 1024:
		return fmt.Sprintf("%d B", a.Size)
	case a.Size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(a.Size)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(a.Size)/(1024*1024))
	}
}

// Appointment is a lesson or other calendar entry, possibly carrying
// homework.
type Appointment struct {
	ID             int64        `json:"Id"`
	Start          Time         `json:"Start"`
	End            Time         `json:"Einde"`
	Description    string       `json:"Omschrijving"`
	Content        string       `json:"Inhoud,omitempty"`
	Homework       string       `json:"Huiswerk,omitempty"`
	InfoType       int          `json:"InfoType"`
	Status         int          `json:"Status"`
	Subjects       []Subject    `json:"Vakken,omitempty"`
	Rooms          []Room       `json:"Lokalen,omitempty"`
	Teachers       []Teacher    `json:"Docenten,omitempty"`
	Period         int          `json:"LesuurVan,omitempty"`
	Completed      bool         `json:"Afgerond"`
	IsTest         bool         `json:"Toets"`
	HasAttachments bool         `json:"HeeftBijlagen"`
	Attachments    []Attachment `json:"Bijlagen,omitempty"`
	Cancelled      bool         `json:"IsVervallen"`
	Modified       bool         `json:"IsGewijzigd"`
}

// HasHomework reports whether the appointment carries homework text.
func (a *Appointment) HasHomework() bool {
	return a.Content != "" || a.Homework != ""
}

// HomeworkText returns the homework body, preferring the richer Inhoud
// field over the legacy Huiswerk one.
func (a *Appointment) HomeworkText() string {
	if a.Content != "" {
		return a.Content
	}
	return a.Homework
}

// SubjectName returns the primary subject, falling back to the appointment
// description.
func (a *Appointment) SubjectName() string {
	if len(a.Subjects) > 0 {
		return a.Subjects[0].Name
	}
	return a.Description
}

// RoomName returns the primary room, or "".
func (a *Appointment) RoomName() string {
	if len(a.Rooms) > 0 {
		return a.Rooms[0].Name
	}
	return ""
}

// TeacherName returns the primary teacher, or "".
func (a *Appointment) TeacherName() string {
	if len(a.Teachers) > 0 {
		return a.Teachers[0].Name
	}
	return ""
}

// GradeColumn is grade column metadata.
type GradeColumn struct {
	ID          int64    `json:"Id"`
	Description string   `json:"Omschrijving"`
	Weight      *float64 `json:"Weging,omitempty"`
	IsAverage   bool     `json:"IsGemiddelde"`
}

// Grade is a single mark.
type Grade struct {
	ID          int64        `json:"CijferId"`
	Subject     Subject      `json:"Vak"`
	Value       string       `json:"CijferStr"`
	Description string       `json:"Omschrijving"`
	EnteredAt   Time         `json:"DatumIngevoerd"`
	Weight      *float64     `json:"Weging,omitempty"`
	Sufficient  *bool        `json:"IsVoldoende,omitempty"`
	Column      *GradeColumn `json:"Kolom,omitempty"`
}

// NumericValue parses the grade string (comma decimal separator) into a
// number. The second result is false for letter grades and empty values.
func (g *Grade) NumericValue() (float64, bool) {
	if g.Value == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(g.Value, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Person is a student or account holder.
type Person struct {
	ID        int64  `json:"Id"`
	Nickname  string `json:"Roepnaam,omitempty"`
	FirstName string `json:"Voornaam,omitempty"`
	LastName  string `json:"Achternaam,omitempty"`
	Infix     string `json:"Tussenvoegsel,omitempty"`
}

// FullName assembles the display name from the available parts.
func (p *Person) FullName() string {
	first := p.Nickname
	if first == "" {
		first = p.FirstName
	}
	var parts []string
	if first != "" {
		parts = append(parts, first)
	}
	if p.Infix != "" {
		parts = append(parts, p.Infix)
	}
	if p.LastName != "" {
		parts = append(parts, p.LastName)
	}
	if len(parts) == 0 {
		return "Onbekend"
	}
	return strings.Join(parts, " ")
}

// Child is a linked student on a parent account. Same shape as Person.
type Child = Person

// Group is an account role.
type Group struct {
	Name string `json:"Naam"`
}

// Account is the login account, which may be a student or a parent.
type Account struct {
	Person Person  `json:"Persoon"`
	Groups []Group `json:"Groep,omitempty"`
}

// IsParent reports whether the account belongs to a parent. Parent data is
// fetched through a linked child rather than the account itself.
func (a *Account) IsParent() bool {
	for _, g := range a.Groups {
		if g.Name == "Ouder" {
			return true
		}
	}
	return false
}

// itemsEnvelope is the wrapped list format {"Items": [...], "TotalCount": n}.
type itemsEnvelope struct {
	Items json.RawMessage `json:"Items"`
}

// decodeItems handles both the wrapped {"Items": [...]} and bare [...] list
// formats the API serves depending on endpoint generation.
func decodeItems[T any](data []byte) ([]T, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var envelope itemsEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Items) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(envelope.Items, &items); err != nil {
		return nil, err
	}
	return items, nil
}
