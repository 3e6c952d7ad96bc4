package ilp

import (
	"fmt"
	"slices"
	"strconv"
)

// Service dispatches provisioning requests to the course engine and the
// grade reporter.
type Service struct {
	database Database
	engine   *CourseEngine
	reporter *GradeReporter
	logger   Logger
}

// NewService creates a Service.
func NewService(database Database, engine *CourseEngine, reporter *GradeReporter, logger Logger) *Service {
	return &Service{
		database: database,
		engine:   engine,
		reporter: reporter,
		logger:   logger,
	}
}

// NewServiceFromSettings builds the full component graph over one store.
func NewServiceFromSettings(database Database, syncer EnrollmentSyncer, cache ContextCache, formatter GradeFormatter, settings Settings, clock Clock, logger Logger) *Service {
	resolver := NewCategoryResolver(database, cache, settings, logger)
	reconciler := NewMetacourseReconciler(database, syncer, settings, logger)
	engine := NewCourseEngine(database, resolver, reconciler, settings, clock, logger)
	reporter := NewGradeReporter(database, formatter, settings, clock, logger)
	return NewService(database, engine, reporter, logger)
}

// Handle parses an XML request payload and executes it.
func (s *Service) Handle(payload []byte) (*Response, error) {
	req, err := ParseRequest(payload)
	if err != nil {
		return nil, err
	}
	return s.HandleRequest(req)
}

// HandleRequest executes a parsed request. Invalid actions and missing
// required keys are rejected before the store is touched.
func (s *Service) HandleRequest(req *Request) (*Response, error) {
	if !slices.Contains(ValidActions, req.Action) {
		return nil, &InvalidActionError{Action: req.Action}
	}

	if req.Action == ActionGradeReport {
		return s.gradeReport(req.Data)
	}

	idnumber := req.Data.Get("idnumber")
	if idnumber.IsEmpty() {
		return nil, NewValidationError("idnumber", "idnumber is required")
	}

	course, err := s.database.FindCourseByIDNumber(idnumber.String())
	if err != nil {
		return nil, fmt.Errorf("finding course: %w", err)
	}
	if course != nil && (course.ID == 0 || course.IDNumber == "") {
		course = nil
	}

	switch req.Action {
	case ActionCreate, ActionAdd, ActionUpdate, ActionChange:
		if course != nil {
			return s.update(req.Action, course, req.Data)
		}
		return s.create(req.Action, req.Data)
	default:
		if course == nil {
			return nil, NewNotFoundError("course", idnumber.String())
		}
		return s.remove(req.Action, course)
	}
}

func (s *Service) create(action string, data Data) (*Response, error) {
	for _, name := range []string{"shortname", "fullname"} {
		if data.Get(name).IsEmpty() {
			return nil, NewValidationError(name, name+" is required to create a course")
		}
	}

	course, err := s.engine.Add(data)
	if err != nil {
		return nil, err
	}
	s.logger.Info("request handled", "action", action, "idnumber", course.IDNumber, "id", course.ID)
	return newCourseResponse(action, course), nil
}

func (s *Service) update(action string, course *Course, data Data) (*Response, error) {
	if err := s.engine.Update(course, data); err != nil {
		return nil, err
	}

	updated, err := s.database.FindCourseByID(course.ID)
	if err != nil {
		return nil, fmt.Errorf("reloading course: %w", err)
	}
	if updated == nil {
		return nil, NewNotFoundError("course", fmt.Sprint(course.ID))
	}
	s.logger.Info("request handled", "action", action, "idnumber", updated.IDNumber, "id", updated.ID)
	return newCourseResponse(action, updated), nil
}

// remove shows every meta-linked child again and then deletes the course.
func (s *Service) remove(action string, course *Course) (*Response, error) {
	links, err := s.database.FindMetaLinks(course.ID)
	if err != nil {
		return nil, fmt.Errorf("finding meta links: %w", err)
	}
	for _, link := range links {
		if err := s.database.SetCourseVisible(link.ChildID, true); err != nil {
			return nil, &PersistenceError{Op: "show child course", ID: fmt.Sprint(link.ChildID), Err: err}
		}
	}

	if err := s.database.DeleteCourse(course.ID); err != nil {
		return nil, &PersistenceError{Op: "delete course", ID: "idnumber = " + course.IDNumber, Err: err}
	}
	s.logger.Info("course deleted", "id", course.ID, "idnumber", course.IDNumber, "children", len(links))
	return newCourseResponse(action, course), nil
}

func (s *Service) gradeReport(data Data) (*Response, error) {
	idValue := data.Get("id")
	if idValue.IsEmpty() {
		return nil, NewValidationError("id", "id is required")
	}
	id, err := ParseInt("id", idValue.String())
	if err != nil {
		return nil, err
	}
	page, err := intOrDefault(data, "pagenumber", DefaultPageNumber)
	if err != nil {
		return nil, err
	}
	perPage, err := intOrDefault(data, "perpage", DefaultPerPage)
	if err != nil {
		return nil, err
	}

	report, err := s.reporter.Report(id, page, perPage)
	if err != nil {
		return nil, err
	}
	s.logger.Info("request handled", "action", ActionGradeReport, "id", id, "enrollments", len(report.Enrollments))
	return newReportResponse(report), nil
}

func intOrDefault(data Data, name string, def int) (int, error) {
	v := data.Get(name)
	if v.IsEmpty() {
		return def, nil
	}
	n, err := strconv.Atoi(v.String())
	if err != nil {
		return 0, NewValidationError(name, fmt.Sprintf("%q is not a number", v.String()))
	}
	return n, nil
}
