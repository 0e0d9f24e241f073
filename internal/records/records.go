// Package records models the logical entities the app reads from the sync
// backend. Backend payloads are loosely typed JSON blobs with no schema
// enforcement at the source, so each entity gets a tagged record type with
// explicit optional fields and a validator applied where data enters the
// gateway. Malformed entries are reported, never trusted downstream.
package records

import "strings"

// Kind tags a recognized backend collection.
type Kind string

const (
	KindUnknown  Kind = ""
	KindSchedule Kind = "schedule"
	KindSubject  Kind = "subject"
	KindMaterial Kind = "material"
	KindNotice   Kind = "notice"
	KindDoubt    Kind = "doubt"
)

// record is implemented by every backend record type. problems lists the
// constraint violations found in a decoded record, one message per field.
type record interface {
	problems() []string
}

// ScheduleSlot is one timetable entry under divisions/<div>/schedules/<day>.
type ScheduleSlot struct {
	Time      string `json:"time"`
	SubjectID string `json:"subjectId"`
	// Type selects the slot color on the timetable; optional.
	Type string `json:"type,omitempty"`
}

func (s *ScheduleSlot) problems() []string {
	var p []string
	if blank(s.Time) {
		p = append(p, "missing or empty time")
	}
	if blank(s.SubjectID) {
		p = append(p, "missing or empty subjectId")
	}
	return p
}

// Subject lives under divisions/<div>/subjects/<id>.
type Subject struct {
	Name    string `json:"name"`
	Teacher string `json:"teacher"`
}

func (s *Subject) problems() []string {
	if blank(s.Name) {
		return []string{"missing or empty name"}
	}
	return nil
}

// StudyMaterial lives under divisions/<div>/studyMaterials/<id>. Subject
// and SubjectName are alternates; at least one must be present.
type StudyMaterial struct {
	Title       string `json:"title"`
	Subject     string `json:"subject,omitempty"`
	SubjectName string `json:"subjectName,omitempty"`
	Description string `json:"description,omitempty"`
	Division    string `json:"division,omitempty"`
	FileURL     string `json:"fileUrl"`
	FileName    string `json:"fileName"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

func (m *StudyMaterial) problems() []string {
	var p []string
	if blank(m.Title) {
		p = append(p, "missing or empty title")
	}
	if blank(m.Subject) && blank(m.SubjectName) {
		p = append(p, "missing subject or subjectName")
	}
	if blank(m.FileURL) {
		p = append(p, "missing or empty fileUrl")
	}
	if blank(m.FileName) {
		p = append(p, "missing or empty fileName")
	}
	return p
}

// Notice lives under notifications/<id>. Priority drives popup behavior;
// ExpiryTimestamp marks self-deleting notices.
type Notice struct {
	ID              string `json:"id,omitempty"`
	Title           string `json:"title"`
	Message         string `json:"message,omitempty"`
	Priority        string `json:"priority,omitempty"`
	Timestamp       int64  `json:"timestamp,omitempty"`
	ExpiryTimestamp int64  `json:"expiryTimestamp,omitempty"`
}

func (n *Notice) problems() []string {
	if blank(n.Title) {
		return []string{"missing or empty title"}
	}
	return nil
}

// Doubt is a community Q&A post under community/doubts/<division>/<id>.
type Doubt struct {
	Text        string   `json:"text"`
	Author      string   `json:"author,omitempty"`
	Timestamp   int64    `json:"timestamp,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

func (d *Doubt) problems() []string {
	if blank(d.Text) {
		return []string{"missing or empty text"}
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
