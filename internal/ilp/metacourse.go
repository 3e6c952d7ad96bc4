package ilp

import (
	"fmt"
	"strings"
)

// realEndDateSpan is the end-minus-start span above which a child course is
// considered to carry a real end date rather than a placeholder.
const realEndDateSpan = 24 * 60 * 60

// MetacourseReconciler keeps a parent course's meta links in line with a
// requested list of child courses.
type MetacourseReconciler struct {
	database          Database
	syncer            EnrollmentSyncer
	logger            Logger
	defaultCategoryID int64
}

// NewMetacourseReconciler creates a MetacourseReconciler.
func NewMetacourseReconciler(database Database, syncer EnrollmentSyncer, settings Settings, logger Logger) *MetacourseReconciler {
	return &MetacourseReconciler{
		database:          database,
		syncer:            syncer,
		logger:            logger,
		defaultCategoryID: settings.DefaultCategoryID,
	}
}

// ParseChildList splits a comma-separated child idnumber list. Blank
// entries are dropped, so "" yields no children.
func ParseChildList(children string) []string {
	var ids []string
	for _, id := range strings.Split(children, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// childAggregate accumulates the parent attributes derived from children.
type childAggregate struct {
	fullNames   string
	shortNames  string
	category    int64
	autoEndDate int64
	count       int
}

func (a *childAggregate) add(child *Course) {
	a.fullNames += ", " + child.FullName
	a.shortNames += ", " + child.ShortName
	a.category = child.Category
	if a.autoEndDate == 1 && child.EndDate-child.StartDate > realEndDateSpan {
		a.autoEndDate = 0
	}
	a.count++
}

// Reconcile links every course in children to the parent course with the
// given idnumber, unlinks courses no longer listed, and refreshes the
// parent's derived attributes. crosslistStart and crosslistEnd become the
// parent's start and end dates when supplied.
//
// Steps are committed one by one. On failure the returned *ReconcileError
// describes the request, and links already added or removed stay in place.
func (m *MetacourseReconciler) Reconcile(parentIDNumber, children string, crosslistStart, crosslistEnd Value) (*Course, error) {
	parent, err := m.reconcile(parentIDNumber, children, crosslistStart, crosslistEnd)
	if err != nil {
		m.logger.Error("metacourse reconciliation failed", "parent", parentIDNumber, "children", children, "error", err)
		return nil, &ReconcileError{Children: children, ParentIDNumber: parentIDNumber, Err: err}
	}
	return parent, nil
}

func (m *MetacourseReconciler) reconcile(parentIDNumber, children string, crosslistStart, crosslistEnd Value) (*Course, error) {
	parent, err := m.database.FindCourseByIDNumber(parentIDNumber)
	if err != nil {
		return nil, fmt.Errorf("finding metacourse: %w", err)
	}
	if parent == nil {
		return nil, NewNotFoundError("course", parentIDNumber)
	}

	agg := childAggregate{autoEndDate: 1}
	requested := make(map[int64]bool)

	for _, idnumber := range ParseChildList(children) {
		if idnumber == parent.IDNumber {
			return nil, NewValidationError("children", "a course cannot be its own child")
		}
		child, err := m.database.FindCourseByIDNumber(idnumber)
		if err != nil {
			return nil, fmt.Errorf("finding child course %s: %w", idnumber, err)
		}
		if child == nil {
			return nil, NewNotFoundError("child course", idnumber)
		}
		agg.add(child)

		if err := m.link(parent, child); err != nil {
			return nil, err
		}
		requested[child.ID] = true
	}

	links, err := m.database.FindMetaLinks(parent.ID)
	if err != nil {
		return nil, fmt.Errorf("finding meta links: %w", err)
	}
	for _, link := range links {
		if requested[link.ChildID] {
			continue
		}
		if err := m.unlink(parent, link); err != nil {
			return nil, err
		}
	}

	if err := m.syncer.SyncMetaEnrolments(parent.ID); err != nil {
		return nil, fmt.Errorf("syncing meta enrolments: %w", err)
	}

	if agg.count == 0 {
		return parent, nil
	}
	if err := m.applyAggregate(parent, &agg, crosslistStart, crosslistEnd); err != nil {
		return nil, err
	}
	return parent, nil
}

// link adds the meta link and hides the child unless the link exists.
func (m *MetacourseReconciler) link(parent, child *Course) error {
	existing, err := m.database.FindMetaLink(parent.ID, child.ID)
	if err != nil {
		return fmt.Errorf("finding meta link for %s: %w", child.IDNumber, err)
	}
	if existing != nil {
		return nil
	}

	if _, err := m.database.CreateMetaLink(parent.ID, child.ID); err != nil {
		return &PersistenceError{Op: "add meta link", ID: child.IDNumber, Err: err}
	}
	// Users interact with the parent only.
	if err := m.database.SetCourseVisible(child.ID, false); err != nil {
		return &PersistenceError{Op: "hide child course", ID: child.IDNumber, Err: err}
	}
	m.logger.Info("meta link added", "parent", parent.IDNumber, "child", child.IDNumber)
	return nil
}

// unlink makes the child visible again and removes its link.
func (m *MetacourseReconciler) unlink(parent *Course, link *MetaLink) error {
	if err := m.database.SetCourseVisible(link.ChildID, true); err != nil {
		return &PersistenceError{Op: "show child course", ID: fmt.Sprint(link.ChildID), Err: err}
	}
	if err := m.database.DeleteMetaLink(link); err != nil {
		return &PersistenceError{Op: "remove meta link", ID: fmt.Sprint(link.ID), Err: err}
	}
	m.logger.Info("meta link removed", "parent", parent.IDNumber, "child_id", link.ChildID)
	return nil
}

// applyAggregate writes the child-derived attributes to the parent in one
// update. Titles are only filled when empty; the category only moves off
// the default category.
func (m *MetacourseReconciler) applyAggregate(parent *Course, agg *childAggregate, crosslistStart, crosslistEnd Value) error {
	fields := make(map[string]any)

	if parent.FullName == "" {
		parent.FullName = strings.TrimLeft(agg.fullNames, ", ")
		fields["fullname"] = parent.FullName
	}
	if parent.ShortName == "" {
		parent.ShortName = strings.TrimLeft(Truncate(agg.shortNames, MaxKeyLength), ", ")
		fields["shortname"] = parent.ShortName
	}
	if !crosslistStart.IsEmpty() {
		start, err := ParseInt("startdate", crosslistStart.String())
		if err != nil {
			return err
		}
		parent.StartDate = start
		fields["startdate"] = start
	}
	if parent.Category == m.defaultCategoryID {
		parent.Category = agg.category
		fields["category"] = agg.category
	}
	if !crosslistEnd.IsEmpty() {
		end, err := ParseInt("enddate", crosslistEnd.String())
		if err != nil {
			return err
		}
		parent.EndDate = end
		fields["enddate"] = end
	}
	parent.AutomaticEndDate = agg.autoEndDate
	fields["automaticenddate"] = agg.autoEndDate

	if err := m.database.UpdateCourseFields(parent.ID, fields); err != nil {
		return &PersistenceError{Op: "update metacourse", ID: parent.IDNumber, Err: err}
	}
	return nil
}
