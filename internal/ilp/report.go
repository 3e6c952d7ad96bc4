package ilp

import (
	"encoding/xml"
	"fmt"
)

// Default pagination for grade reports.
const (
	DefaultPageNumber = 1
	DefaultPerPage    = 50
)

// EnrolledUser is a user enrolled in a course.
type EnrolledUser struct {
	ID         int64
	Username   string
	FirstName  string
	LastName   string
	Email      string
	Department string
	IDNumber   string
}

// Role is a role a user holds in a course.
type Role struct {
	ID        int64  `xml:"roleid"`
	Name      string `xml:"name"`
	ShortName string `xml:"shortname"`
	SortOrder int64  `xml:"sortorder"`
}

// GradeItem is the course aggregate grade item.
type GradeItem struct {
	ID       int64
	CourseID int64
	GradeMin float64
	GradeMax float64
}

// GradeRow is one user's grade on the course aggregate item. Grades are nil
// when not yet computed.
type GradeRow struct {
	CourseID   int64
	UserID     int64
	FinalGrade *float64
	RawGrade   *float64
}

// GradeDisplay selects how a grade value is rendered.
type GradeDisplay int

const (
	GradeDisplayReal GradeDisplay = iota + 1
	GradeDisplayLetter
	GradeDisplayRealLetter
)

// GradeFormatter renders grade values for display.
type GradeFormatter interface {
	Format(value *float64, item *GradeItem, display GradeDisplay) string
}

// CourseSnapshot is the course part of a grade report.
type CourseSnapshot struct {
	XMLName                xml.Name `xml:"course"`
	ID                     int64    `xml:"id"`
	ShortName              string   `xml:"shortname"`
	CategoryID             int64    `xml:"categoryid"`
	FullName               string   `xml:"fullname"`
	DisplayName            string   `xml:"displayname"`
	IDNumber               string   `xml:"idnumber"`
	Summary                string   `xml:"summary"`
	SummaryFormat          int64    `xml:"summaryformat"`
	Format                 string   `xml:"format"`
	ShowGrades             int64    `xml:"showgrades"`
	NewsItems              int64    `xml:"newsitems"`
	StartDate              int64    `xml:"startdate"`
	EndDate                int64    `xml:"enddate"`
	NumSections            *int64   `xml:"numsections"`
	MaxBytes               int64    `xml:"maxbytes"`
	ShowReports            int64    `xml:"showreports"`
	Visible                int64    `xml:"visible"`
	HiddenSections         *int64   `xml:"hiddensections"`
	GroupMode              int64    `xml:"groupmode"`
	GroupModeForce         int64    `xml:"groupmodeforce"`
	DefaultGroupingID      int64    `xml:"defaultgroupingid"`
	TimeCreated            int64    `xml:"timecreated"`
	TimeModified           int64    `xml:"timemodified"`
	EnableCompletion       int64    `xml:"enablecompletion"`
	CompletionNotify       int64    `xml:"completionnotify"`
	Lang                   string   `xml:"lang"`
	ExceededCategoryCutoff bool     `xml:"exceededCategoryCutoff,omitempty"`
}

// UserGrades is the grade part of an enrollment entry.
type UserGrades struct {
	CourseID               int64    `xml:"courseid,omitempty"`
	Grade                  *float64 `xml:"grade"`
	RawGrade               *float64 `xml:"rawgrade"`
	CurrentGradeRealLetter string   `xml:"currentgradeRealLetter"`
	CurrentGradeLetter     string   `xml:"currentgradeLetter"`
}

// ReportUser is a user entry in a grade report.
type ReportUser struct {
	ID         int64       `xml:"id"`
	Username   string      `xml:"username"`
	FirstName  string      `xml:"firstname"`
	LastName   string      `xml:"lastname"`
	FullName   string      `xml:"fullname"`
	Email      string      `xml:"email"`
	Department string      `xml:"department"`
	IDNumber   string      `xml:"idnumber"`
	Grades     UserGrades  `xml:"grades"`
	Roles      []*RoleItem `xml:"roles>role"`
}

// RoleItem wraps a role in a report entry.
type RoleItem struct {
	Role
}

// Enrollment is one entry of a grade report.
type Enrollment struct {
	User ReportUser `xml:"user"`
}

// GradeReport is a course snapshot with its enrolled users and their grades.
type GradeReport struct {
	Course      *CourseSnapshot `xml:"course"`
	Enrollments []*Enrollment   `xml:"enrollments>enrollment"`
}

// GradeReporter assembles grade reports. It never writes to the store.
type GradeReporter struct {
	database  Database
	formatter GradeFormatter
	cutoffs   map[int64]int64
	clock     Clock
	logger    Logger
}

// NewGradeReporter creates a GradeReporter.
func NewGradeReporter(database Database, formatter GradeFormatter, settings Settings, clock Clock, logger Logger) *GradeReporter {
	return &GradeReporter{
		database:  database,
		formatter: formatter,
		cutoffs:   settings.CategoryCutoffs,
		clock:     clock,
		logger:    logger,
	}
}

// Report returns the snapshot of one course and its enrollments in store
// order. pageNumber and perPage are accepted but the report is not paged.
func (r *GradeReporter) Report(courseID int64, pageNumber, perPage int) (*GradeReport, error) {
	r.logger.Debug("building grade report", "course", courseID, "page", pageNumber, "perpage", perPage)

	course, err := r.database.FindCourseByID(courseID)
	if err != nil {
		return nil, fmt.Errorf("finding course: %w", err)
	}
	if course == nil {
		return nil, NewNotFoundError("course", fmt.Sprint(courseID))
	}

	users, err := r.database.FindEnrolledUsers(courseID)
	if err != nil {
		return nil, fmt.Errorf("finding enrolled users: %w", err)
	}
	rows, err := r.database.FindCourseGradeRows(courseID)
	if err != nil {
		return nil, fmt.Errorf("finding grades: %w", err)
	}
	item, err := r.database.FindCourseGradeItem(courseID)
	if err != nil {
		return nil, fmt.Errorf("finding course grade item: %w", err)
	}

	report := &GradeReport{Course: snapshotOf(course)}
	if r.exceededCategoryCutoff(course.Category) {
		report.Course.ExceededCategoryCutoff = true
	}

	for _, u := range users {
		roles, err := r.database.FindUserRoles(courseID, u.ID)
		if err != nil {
			return nil, fmt.Errorf("finding roles for user %d: %w", u.ID, err)
		}

		grades := UserGrades{}
		if row := findGradeRow(rows, u.ID); row != nil {
			grades.CourseID = row.CourseID
			grades.Grade = row.FinalGrade
			grades.RawGrade = row.RawGrade
		}
		grades.CurrentGradeRealLetter = r.formatter.Format(grades.Grade, item, GradeDisplayRealLetter)
		grades.CurrentGradeLetter = r.formatter.Format(grades.Grade, item, GradeDisplayLetter)

		entry := &Enrollment{User: ReportUser{
			ID:         u.ID,
			Username:   u.Username,
			FirstName:  u.FirstName,
			LastName:   u.LastName,
			FullName:   u.FirstName + " " + u.LastName,
			Email:      u.Email,
			Department: u.Department,
			IDNumber:   u.IDNumber,
			Grades:     grades,
		}}
		for _, role := range roles {
			entry.User.Roles = append(entry.User.Roles, &RoleItem{Role: *role})
		}
		report.Enrollments = append(report.Enrollments, entry)
	}

	return report, nil
}

// exceededCategoryCutoff reports whether the grade cutoff configured for the
// category has passed.
func (r *GradeReporter) exceededCategoryCutoff(categoryID int64) bool {
	cutoff, ok := r.cutoffs[categoryID]
	if !ok {
		return false
	}
	return r.clock.Now().Unix() > cutoff
}

func findGradeRow(rows []*GradeRow, userID int64) *GradeRow {
	for _, row := range rows {
		if row.UserID == userID {
			return row
		}
	}
	return nil
}

// snapshotOf copies the reported course fields. numsections and
// hiddensections are left nil: the report has never carried them.
func snapshotOf(c *Course) *CourseSnapshot {
	return &CourseSnapshot{
		ID:                c.ID,
		ShortName:         c.ShortName,
		CategoryID:        c.Category,
		FullName:          c.FullName,
		DisplayName:       c.FullName,
		IDNumber:          c.IDNumber,
		Summary:           c.Summary,
		SummaryFormat:     c.SummaryFormat,
		Format:            c.Format,
		ShowGrades:        c.ShowGrades,
		NewsItems:         c.NewsItems,
		StartDate:         c.StartDate,
		EndDate:           c.EndDate,
		MaxBytes:          c.MaxBytes,
		ShowReports:       c.ShowReports,
		Visible:           c.Visible,
		GroupMode:         c.GroupMode,
		GroupModeForce:    c.GroupModeForce,
		DefaultGroupingID: c.DefaultGroupingID,
		TimeCreated:       c.TimeCreated,
		TimeModified:      c.TimeModified,
		EnableCompletion:  c.EnableCompletion,
		CompletionNotify:  c.CompletionNotify,
		Lang:              c.Lang,
	}
}
