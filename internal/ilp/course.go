package ilp

import (
	"fmt"
	"strconv"
	"unicode/utf8"
)

// MaxKeyLength is the maximum length of a course shortname or idnumber.
const MaxKeyLength = 100

// CourseFields lists the course fields kept in sync with the feed, in the
// order they are applied. Input keys outside this list are ignored.
var CourseFields = []string{
	"shortname",
	"category",
	"fullname",
	"idnumber",
	"summary",
	"format",
	"showgrades",
	"startdate",
	"numsections",
	"visible",
	"groupmode",
	"groupmodeforce",
	"enddate",
	"automaticenddate",
}

// Course is a course record in the learning platform.
// Dates are epoch seconds.
type Course struct {
	ID                int64  `xml:"id"`
	Category          int64  `xml:"category"`
	SortOrder         int64  `xml:"sortorder"`
	FullName          string `xml:"fullname"`
	ShortName         string `xml:"shortname"`
	IDNumber          string `xml:"idnumber"`
	Summary           string `xml:"summary"`
	SummaryFormat     int64  `xml:"summaryformat"`
	Format            string `xml:"format"`
	ShowGrades        int64  `xml:"showgrades"`
	NewsItems         int64  `xml:"newsitems"`
	StartDate         int64  `xml:"startdate"`
	EndDate           int64  `xml:"enddate"`
	AutomaticEndDate  int64  `xml:"automaticenddate"`
	NumSections       int64  `xml:"numsections"`
	MaxBytes          int64  `xml:"maxbytes"`
	ShowReports       int64  `xml:"showreports"`
	Visible           int64  `xml:"visible"`
	GroupMode         int64  `xml:"groupmode"`
	GroupModeForce    int64  `xml:"groupmodeforce"`
	DefaultGroupingID int64  `xml:"defaultgroupingid"`
	EnableCompletion  int64  `xml:"enablecompletion"`
	CompletionNotify  int64  `xml:"completionnotify"`
	Lang              string `xml:"lang"`
	TimeCreated       int64  `xml:"timecreated"`
	TimeModified      int64  `xml:"timemodified"`
}

// Category is a node in the course category tree. Parent 0 is the root.
type Category struct {
	ID        int64
	Name      string
	Parent    int64
	Depth     int64
	SortOrder int64
}

// MetaLink ties a child course to a parent metacourse through a "meta"
// enrolment instance.
type MetaLink struct {
	ID       int64
	ParentID int64
	ChildID  int64
}

// textFields are course fields holding free text; every other synced or
// defaulted field is an integer.
var textFields = map[string]bool{
	"shortname": true,
	"fullname":  true,
	"idnumber":  true,
	"summary":   true,
	"format":    true,
	"lang":      true,
}

// IsTextField reports whether the named course field holds text.
func IsTextField(name string) bool {
	return textFields[name]
}

// Field returns the string form of a named course field.
// ok is false for names that are not course columns.
func (c *Course) Field(name string) (value string, ok bool) {
	if p := c.textPtr(name); p != nil {
		return *p, true
	}
	if p := c.intPtr(name); p != nil {
		return strconv.FormatInt(*p, 10), true
	}
	return "", false
}

// SetField assigns a named course field from its string form.
// Integer fields must parse as base-10 integers.
func (c *Course) SetField(name, raw string) error {
	if p := c.textPtr(name); p != nil {
		*p = raw
		return nil
	}
	p := c.intPtr(name)
	if p == nil {
		return fmt.Errorf("unknown course field: %s", name)
	}
	n, err := ParseInt(name, raw)
	if err != nil {
		return err
	}
	*p = n
	return nil
}

func (c *Course) textPtr(name string) *string {
	switch name {
	case "shortname":
		return &c.ShortName
	case "fullname":
		return &c.FullName
	case "idnumber":
		return &c.IDNumber
	case "summary":
		return &c.Summary
	case "format":
		return &c.Format
	case "lang":
		return &c.Lang
	}
	return nil
}

func (c *Course) intPtr(name string) *int64 {
	switch name {
	case "id":
		return &c.ID
	case "category":
		return &c.Category
	case "sortorder":
		return &c.SortOrder
	case "summaryformat":
		return &c.SummaryFormat
	case "showgrades":
		return &c.ShowGrades
	case "newsitems":
		return &c.NewsItems
	case "startdate":
		return &c.StartDate
	case "enddate":
		return &c.EndDate
	case "automaticenddate":
		return &c.AutomaticEndDate
	case "numsections":
		return &c.NumSections
	case "maxbytes":
		return &c.MaxBytes
	case "showreports":
		return &c.ShowReports
	case "visible":
		return &c.Visible
	case "groupmode":
		return &c.GroupMode
	case "groupmodeforce":
		return &c.GroupModeForce
	case "defaultgroupingid":
		return &c.DefaultGroupingID
	case "enablecompletion":
		return &c.EnableCompletion
	case "completionnotify":
		return &c.CompletionNotify
	case "timecreated":
		return &c.TimeCreated
	case "timemodified":
		return &c.TimeModified
	}
	return nil
}

// ParseInt parses an integer course field value.
func ParseInt(field, raw string) (int64, error) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, NewValidationError(field, fmt.Sprintf("expected an integer, got %q", raw))
	}
	return n, nil
}

// Truncate shortens s to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
