package ilp

import (
	"fmt"
	"sort"
	"strconv"
)

const (
	daySeconds  = 24 * 60 * 60
	weekSeconds = 7 * daySeconds

	// weeksFormatOffset is added to the start date before counting weeks,
	// matching the weekly format's section date arithmetic.
	weeksFormatOffset = 2 * 60 * 60
)

// CourseEngine applies create and update requests to course records.
type CourseEngine struct {
	database   Database
	resolver   *CategoryResolver
	reconciler *MetacourseReconciler
	settings   Settings
	clock      Clock
	logger     Logger
}

// NewCourseEngine creates a CourseEngine.
func NewCourseEngine(database Database, resolver *CategoryResolver, reconciler *MetacourseReconciler, settings Settings, clock Clock, logger Logger) *CourseEngine {
	return &CourseEngine{
		database:   database,
		resolver:   resolver,
		reconciler: reconciler,
		settings:   settings,
		clock:      clock,
		logger:     logger,
	}
}

// createDefaults returns the values used for fields the request leaves
// absent or empty: built-in values overlaid by the platform course defaults.
func (e *CourseEngine) createDefaults() map[string]string {
	now := e.clock.Now().Unix()
	defaults := map[string]string{
		"startdate":        strconv.FormatInt(now+daySeconds, 10),
		"summary":          "",
		"format":           "weeks",
		"numsections":      "10",
		"idnumber":         "",
		"newsitems":        "5",
		"showgrades":       "1",
		"groupmode":        "0",
		"groupmodeforce":   "0",
		"visible":          "1",
		"automaticenddate": "1",
	}
	for name, value := range e.settings.CourseDefaults {
		defaults[name] = value
	}
	return defaults
}

// Add creates a course from the request data. The caller has checked that
// shortname and fullname are present. When children is supplied the new
// course becomes a metacourse; a reconciliation failure is returned after
// the course itself has been created.
func (e *CourseEngine) Add(data Data) (*Course, error) {
	values := make(map[string]string)
	for _, name := range CourseFields {
		if v := data.Get(name); v.IsSet() {
			values[name] = v.String()
		}
	}
	for name, value := range e.createDefaults() {
		if current, ok := values[name]; !ok || current == "" {
			values[name] = value
		}
	}
	// Integer fields left empty with no default keep their zero value.
	for name, value := range values {
		if value == "" && !IsTextField(name) {
			delete(values, name)
		}
	}

	// An explicit end date turns off end date inference.
	if end, err := strconv.ParseInt(values["enddate"], 10, 64); err == nil && end > 0 {
		values["automaticenddate"] = "0"
	}

	course := &Course{}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "category" || name == "id" {
			continue
		}
		if _, ok := course.Field(name); !ok {
			e.logger.Debug("ignoring unknown course default", "field", name)
			continue
		}
		if err := course.SetField(name, values[name]); err != nil {
			return nil, err
		}
	}

	categoryID, err := e.resolver.Resolve(values["category"], 0)
	if err != nil {
		return nil, fmt.Errorf("resolving category: %w", err)
	}
	course.Category = categoryID

	now := e.clock.Now().Unix()
	course.TimeCreated = now
	course.TimeModified = now
	course.ShortName = Truncate(course.ShortName, MaxKeyLength)
	course.IDNumber = Truncate(course.IDNumber, MaxKeyLength)
	if end, ok := inferredEndDate(course); ok {
		course.EndDate = end
	}

	course.SortOrder, err = e.database.NextCourseSortOrder(course.Category)
	if err != nil {
		return nil, fmt.Errorf("computing sort order: %w", err)
	}

	created, err := e.database.CreateCourse(course)
	if err != nil {
		return nil, &PersistenceError{Op: "create course", ID: "idnumber = " + course.IDNumber, Err: err}
	}
	e.logger.Info("course created", "id", created.ID, "idnumber", created.IDNumber, "category", created.Category)

	if children := data.Get("children"); children.IsSet() {
		if _, err := e.reconciler.Reconcile(created.IDNumber, children.String(), data.Get("startdate"), data.Get("enddate")); err != nil {
			return nil, err
		}
	}

	if err := e.database.EnsureCourseSection(created.ID, 0); err != nil {
		return nil, &PersistenceError{Op: "create default section", ID: fmt.Sprintf("id = %d", created.ID), Err: err}
	}

	reloaded, err := e.database.FindCourseByID(created.ID)
	if err != nil || reloaded == nil {
		return nil, fmt.Errorf("failed to get course object from database id = %d: %v", created.ID, err)
	}
	return reloaded, nil
}

// Update applies the fields of data that differ from course in a single
// write, then reconciles metacourse children when the children field is
// present (even when no field changed).
func (e *CourseEngine) Update(course *Course, data Data) error {
	var resolvedCategory string
	if v := data.Get("category"); v.IsSet() {
		id, err := e.resolver.Resolve(v.String(), 0)
		if err != nil {
			return fmt.Errorf("resolving category: %w", err)
		}
		resolvedCategory = strconv.FormatInt(id, 10)
	}

	crosslist := data.Get("children").IsSet()
	dropVisible := (!crosslist && !e.settings.ModifySectionVisibility) ||
		(crosslist && !e.settings.ModifyCrosslistVisibility)

	fields := make(map[string]any)
	updated := *course
	for _, name := range CourseFields {
		v := data.Get(name)
		if !v.IsSet() || (name == "visible" && dropVisible) {
			continue
		}
		if v.IsEmpty() && !IsTextField(name) && name != "category" {
			continue
		}
		raw := v.String()
		if name == "category" {
			raw = resolvedCategory
		}
		if name == "shortname" || name == "idnumber" {
			raw = Truncate(raw, MaxKeyLength)
		}

		current, _ := course.Field(name)
		if IsTextField(name) {
			if raw == current {
				continue
			}
			fields[name] = raw
		} else {
			n, err := ParseInt(name, raw)
			if err != nil {
				return err
			}
			if strconv.FormatInt(n, 10) == current {
				continue
			}
			fields[name] = n
		}
		if err := updated.SetField(name, raw); err != nil {
			return err
		}
	}

	if len(fields) > 0 {
		if data.Get("enddate").IsEmpty() {
			if end, ok := inferredEndDate(&updated); ok && end != updated.EndDate {
				fields["enddate"] = end
				updated.EndDate = end
			}
		}
		fields["timemodified"] = e.clock.Now().Unix()

		if err := e.database.UpdateCourseFields(course.ID, fields); err != nil {
			return &PersistenceError{Op: "update course", ID: fmt.Sprintf("id = %d", course.ID), Err: err}
		}
		e.logger.Info("course updated", "id", course.ID, "idnumber", updated.IDNumber, "fields", len(fields)-1)
	}

	if children := data.Get("children"); children.IsSet() {
		if _, err := e.reconciler.Reconcile(updated.IDNumber, children.String(), data.Get("startdate"), data.Get("enddate")); err != nil {
			return err
		}
	}
	return nil
}

// inferredEndDate returns the end date implied by a weekly course with
// automatic end dates enabled.
func inferredEndDate(c *Course) (int64, bool) {
	if c.AutomaticEndDate != 1 || c.Format != "weeks" {
		return 0, false
	}
	return c.StartDate + weeksFormatOffset + c.NumSections*weekSeconds, true
}
