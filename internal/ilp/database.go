package ilp

// Database provides the store operations the provisioning components need.
// Finders return (nil, nil) when no record matches. Each method is its own
// statement (or its own transaction where noted); there is no transaction
// spanning several calls.
type Database interface {
	// Category operations

	// CategoryExists reports whether a category with the given id exists.
	CategoryExists(id int64) (bool, error)

	// FindCategoriesByNameAndParent returns categories with an exact name
	// under parent, in id order. Duplicates are possible.
	FindCategoriesByNameAndParent(name string, parent int64) ([]*Category, error)

	// CreateCategory inserts a category and returns it with its id.
	CreateCategory(category *Category) (*Category, error)

	// Course operations

	FindCourseByID(id int64) (*Course, error)
	FindCourseByIDNumber(idnumber string) (*Course, error)

	// NextCourseSortOrder returns max(sortorder)+1 within the category, or
	// 100 when the category holds no courses.
	NextCourseSortOrder(categoryID int64) (int64, error)

	// CreateCourse inserts the course together with its numbered content
	// sections (0..NumSections) in one transaction.
	CreateCourse(course *Course) (*Course, error)

	// UpdateCourseFields writes the named fields of one course in a single
	// statement. Names are course field names (see CourseFields).
	UpdateCourseFields(id int64, fields map[string]any) error

	// SetCourseVisible sets the visible flag of one course.
	SetCourseVisible(id int64, visible bool) error

	// DeleteCourse removes the course and everything hanging off it
	// (sections, enrolment instances, role assignments, grades).
	DeleteCourse(id int64) error

	// EnsureCourseSection creates the numbered section if it is missing.
	EnsureCourseSection(courseID int64, section int64) error

	// Meta link operations

	// FindMetaLinks returns the meta links of a parent course in id order.
	FindMetaLinks(parentID int64) ([]*MetaLink, error)
	FindMetaLink(parentID, childID int64) (*MetaLink, error)
	CreateMetaLink(parentID, childID int64) (*MetaLink, error)

	// DeleteMetaLink removes the link and the user enrolments derived from it.
	DeleteMetaLink(link *MetaLink) error

	// Reporting

	// FindEnrolledUsers returns the distinct users enrolled in the course
	// through any method who hold a role assignment, in enrolment order.
	FindEnrolledUsers(courseID int64) ([]*EnrolledUser, error)

	// FindUserRoles returns the roles assigned to the user in the course.
	FindUserRoles(courseID, userID int64) ([]*Role, error)

	// FindCourseGradeItem returns the course aggregate grade item.
	FindCourseGradeItem(courseID int64) (*GradeItem, error)

	// FindCourseGradeRows returns the grades recorded against the course
	// aggregate item (the item with no name).
	FindCourseGradeRows(courseID int64) ([]*GradeRow, error)

	// Close closes the database connection.
	Close() error
}

// EnrollmentSyncer materializes the user enrolments derived from a parent
// course's meta links.
type EnrollmentSyncer interface {
	SyncMetaEnrolments(parentID int64) error
}

// ContextCache receives cache invalidation signals for the category and
// course hierarchy.
type ContextCache interface {
	// MarkDirty flags the context path so hierarchy caches reload it.
	MarkDirty(path string) error
}
