package ilp

import (
	"encoding/xml"
	"fmt"
)

// Response is the result of one handled request.
type Response struct {
	XMLName xml.Name `xml:"response"`
	Action  string   `xml:"action,attr"`

	// Course holds a *Course for write actions and a *CourseSnapshot for
	// grade reports.
	Course      any              `xml:"course"`
	Enrollments *enrollmentsList `xml:"enrollments,omitempty"`

	// Record is the resulting course of a write action.
	Record *Course `xml:"-"`
	// Report is the grade report of a course_grade_user request.
	Report *GradeReport `xml:"-"`
}

type enrollmentsList struct {
	Items []*Enrollment `xml:"enrollment"`
}

func newCourseResponse(action string, course *Course) *Response {
	return &Response{Action: action, Course: course, Record: course}
}

func newReportResponse(report *GradeReport) *Response {
	return &Response{
		Action:      ActionGradeReport,
		Course:      report.Course,
		Enrollments: &enrollmentsList{Items: report.Enrollments},
		Report:      report,
	}
}

// Marshal encodes the response as an indented XML document.
func (r *Response) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
