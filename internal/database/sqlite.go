package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ilp-go/internal/database/migrations"
	"ilp-go/internal/ilp"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// MetaMethod is the enrolment method of meta links.
const MetaMethod = "meta"

// metaComponent owns the role assignments mirrored by meta links.
const metaComponent = "enrol_meta"

// defaultSortOrder is the sort order of the first course in a category.
const defaultSortOrder = 100

// SQLiteDatabase implements ilp.Database, ilp.EnrollmentSyncer and
// ilp.OperationLog using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite database connection.
// Foreign keys are enabled on every pooled connection through the DSN.
// An in-memory database is limited to one connection, since each
// connection would otherwise see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Category operations

func (s *SQLiteDatabase) CategoryExists(id int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM course_categories WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking category: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDatabase) FindCategoriesByNameAndParent(name string, parent int64) ([]*ilp.Category, error) {
	rows, err := s.db.Query(
		`SELECT id, name, parent, depth, sort_order FROM course_categories
		 WHERE name = ? AND parent = ? ORDER BY id`, name, parent)
	if err != nil {
		return nil, fmt.Errorf("finding categories: %w", err)
	}
	defer rows.Close()

	var result []*ilp.Category
	for rows.Next() {
		c := &ilp.Category{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Parent, &c.Depth, &c.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) CreateCategory(category *ilp.Category) (*ilp.Category, error) {
	res, err := s.db.Exec(
		`INSERT INTO course_categories (name, parent, depth, sort_order, time_modified) VALUES (?, ?, ?, ?, ?)`,
		category.Name, category.Parent, category.Depth, category.SortOrder, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("inserting category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading category id: %w", err)
	}
	created := *category
	created.ID = id
	return &created, nil
}

// Course operations

// courseColumns maps course field names to columns, in scan order.
var courseColumns = []struct {
	field  string
	column string
}{
	{"id", "id"},
	{"category", "category"},
	{"sortorder", "sort_order"},
	{"fullname", "full_name"},
	{"shortname", "short_name"},
	{"idnumber", "id_number"},
	{"summary", "summary"},
	{"summaryformat", "summary_format"},
	{"format", "format"},
	{"showgrades", "show_grades"},
	{"newsitems", "news_items"},
	{"startdate", "start_date"},
	{"enddate", "end_date"},
	{"automaticenddate", "automatic_end_date"},
	{"numsections", "num_sections"},
	{"maxbytes", "max_bytes"},
	{"showreports", "show_reports"},
	{"visible", "visible"},
	{"groupmode", "group_mode"},
	{"groupmodeforce", "group_mode_force"},
	{"defaultgroupingid", "default_grouping_id"},
	{"enablecompletion", "enable_completion"},
	{"completionnotify", "completion_notify"},
	{"lang", "lang"},
	{"timecreated", "time_created"},
	{"timemodified", "time_modified"},
}

func courseColumn(field string) (string, bool) {
	for _, c := range courseColumns {
		if c.field == field {
			return c.column, true
		}
	}
	return "", false
}

func courseSelect() string {
	cols := make([]string, len(courseColumns))
	for i, c := range courseColumns {
		cols[i] = c.column
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM courses"
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(row scanner) (*ilp.Course, error) {
	c := &ilp.Course{}
	err := row.Scan(
		&c.ID, &c.Category, &c.SortOrder, &c.FullName, &c.ShortName, &c.IDNumber,
		&c.Summary, &c.SummaryFormat, &c.Format, &c.ShowGrades, &c.NewsItems,
		&c.StartDate, &c.EndDate, &c.AutomaticEndDate, &c.NumSections, &c.MaxBytes,
		&c.ShowReports, &c.Visible, &c.GroupMode, &c.GroupModeForce, &c.DefaultGroupingID,
		&c.EnableCompletion, &c.CompletionNotify, &c.Lang, &c.TimeCreated, &c.TimeModified,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteDatabase) findCourse(where string, arg any) (*ilp.Course, error) {
	c, err := scanCourse(s.db.QueryRow(courseSelect()+" WHERE "+where+" ORDER BY id LIMIT 1", arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return c, nil
}

func (s *SQLiteDatabase) FindCourseByID(id int64) (*ilp.Course, error) {
	c, err := s.findCourse("id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("finding course by id: %w", err)
	}
	return c, nil
}

func (s *SQLiteDatabase) FindCourseByIDNumber(idnumber string) (*ilp.Course, error) {
	c, err := s.findCourse("id_number = ?", idnumber)
	if err != nil {
		return nil, fmt.Errorf("finding course by idnumber: %w", err)
	}
	return c, nil
}

func (s *SQLiteDatabase) NextCourseSortOrder(categoryID int64) (int64, error) {
	var next int64
	err := s.db.QueryRow(
		`SELECT COALESCE(MAX(sort_order) + 1, ?) FROM courses WHERE category = ?`,
		defaultSortOrder, categoryID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("computing next sort order: %w", err)
	}
	return next, nil
}

// CreateCourse inserts the course, its sections 0..NumSections and a manual
// enrolment instance in one transaction.
func (s *SQLiteDatabase) CreateCourse(course *ilp.Course) (*ilp.Course, error) {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	cols := make([]string, 0, len(courseColumns)-1)
	args := make([]any, 0, len(courseColumns)-1)
	for _, c := range courseColumns[1:] {
		v, _ := course.Field(c.field)
		cols = append(cols, c.column)
		if ilp.IsTextField(c.field) {
			args = append(args, v)
		} else {
			n, err := ilp.ParseInt(c.field, v)
			if err != nil {
				return nil, err
			}
			args = append(args, n)
		}
	}
	query := fmt.Sprintf("INSERT INTO courses (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("inserting course: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading course id: %w", err)
	}

	for section := int64(0); section <= course.NumSections; section++ {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_sections (course_id, section) VALUES (?, ?)`, id, section); err != nil {
			return nil, fmt.Errorf("inserting section %d: %w", section, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO enrol_instances (course_id, method, time_created) VALUES (?, 'manual', ?)`,
		id, course.TimeCreated); err != nil {
		return nil, fmt.Errorf("inserting manual enrolment instance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	created := *course
	created.ID = id
	return &created, nil
}

// UpdateCourseFields writes the named fields in one statement.
func (s *SQLiteDatabase) UpdateCourseFields(id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		column, ok := courseColumn(name)
		if !ok || name == "id" {
			return fmt.Errorf("unknown course field: %s", name)
		}
		sets = append(sets, column+" = ?")
		args = append(args, fields[name])
	}
	args = append(args, id)

	res, err := s.db.Exec("UPDATE courses SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating course: %w", err)
	}
	return expectOneRow(res, "course", id)
}

func (s *SQLiteDatabase) SetCourseVisible(id int64, visible bool) error {
	v := 0
	if visible {
		v = 1
	}
	res, err := s.db.Exec(`UPDATE courses SET visible = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("setting course visibility: %w", err)
	}
	return expectOneRow(res, "course", id)
}

// DeleteCourse removes the course. Sections, enrolment instances (including
// meta links pointing at it), role assignments and grades cascade.
func (s *SQLiteDatabase) DeleteCourse(id int64) error {
	res, err := s.db.Exec(`DELETE FROM courses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting course: %w", err)
	}
	return expectOneRow(res, "course", id)
}

func (s *SQLiteDatabase) EnsureCourseSection(courseID int64, section int64) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO course_sections (course_id, section) VALUES (?, ?)`, courseID, section)
	if err != nil {
		return fmt.Errorf("ensuring course section: %w", err)
	}
	return nil
}

// CountCourseSections returns the number of sections of a course.
func (s *SQLiteDatabase) CountCourseSections(courseID int64) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM course_sections WHERE course_id = ?`, courseID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting course sections: %w", err)
	}
	return n, nil
}

func expectOneRow(res sql.Result, resource string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d does not exist", resource, id)
	}
	return nil
}

// Meta link operations

func (s *SQLiteDatabase) FindMetaLinks(parentID int64) ([]*ilp.MetaLink, error) {
	rows, err := s.db.Query(
		`SELECT id, course_id, linked_course_id FROM enrol_instances
		 WHERE course_id = ? AND method = ? ORDER BY id`, parentID, MetaMethod)
	if err != nil {
		return nil, fmt.Errorf("finding meta links: %w", err)
	}
	defer rows.Close()

	var result []*ilp.MetaLink
	for rows.Next() {
		l := &ilp.MetaLink{}
		if err := rows.Scan(&l.ID, &l.ParentID, &l.ChildID); err != nil {
			return nil, fmt.Errorf("scanning meta link: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindMetaLink(parentID, childID int64) (*ilp.MetaLink, error) {
	l := &ilp.MetaLink{}
	err := s.db.QueryRow(
		`SELECT id, course_id, linked_course_id FROM enrol_instances
		 WHERE course_id = ? AND method = ? AND linked_course_id = ? ORDER BY id LIMIT 1`,
		parentID, MetaMethod, childID).Scan(&l.ID, &l.ParentID, &l.ChildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding meta link: %w", err)
	}
	return l, nil
}

func (s *SQLiteDatabase) CreateMetaLink(parentID, childID int64) (*ilp.MetaLink, error) {
	res, err := s.db.Exec(
		`INSERT INTO enrol_instances (course_id, method, linked_course_id, time_created) VALUES (?, ?, ?, ?)`,
		parentID, MetaMethod, childID, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("inserting meta link: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading meta link id: %w", err)
	}
	return &ilp.MetaLink{ID: id, ParentID: parentID, ChildID: childID}, nil
}

// DeleteMetaLink removes the link together with the enrolments and role
// assignments it mirrored.
func (s *SQLiteDatabase) DeleteMetaLink(link *ilp.MetaLink) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM role_assignments WHERE component = ? AND item_id = ?`, metaComponent, link.ID); err != nil {
		return fmt.Errorf("deleting mirrored role assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM enrol_instances WHERE id = ?`, link.ID); err != nil {
		return fmt.Errorf("deleting meta link: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SyncMetaEnrolments makes the enrolments of every meta link of the parent
// mirror the users enrolled in the linked child through non-meta methods,
// along with their manual role assignments in the child.
func (s *SQLiteDatabase) SyncMetaEnrolments(parentID int64) error {
	links, err := s.FindMetaLinks(parentID)
	if err != nil {
		return err
	}

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	const childUsers = `SELECT ue.user_id FROM user_enrolments ue
		JOIN enrol_instances e ON e.id = ue.enrol_instance_id
		WHERE e.course_id = ? AND e.method <> 'meta'`

	for _, link := range links {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM user_enrolments WHERE enrol_instance_id = ? AND user_id NOT IN (`+childUsers+`)`,
			link.ID, link.ChildID); err != nil {
			return fmt.Errorf("removing stale meta enrolments: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO user_enrolments (enrol_instance_id, user_id, time_created)
			 SELECT DISTINCT ?, user_id, ? FROM (`+childUsers+`)`,
			link.ID, now, link.ChildID); err != nil {
			return fmt.Errorf("adding meta enrolments: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM role_assignments WHERE component = ? AND item_id = ?`, metaComponent, link.ID); err != nil {
			return fmt.Errorf("clearing mirrored role assignments: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_assignments (role_id, course_id, user_id, component, item_id)
			 SELECT DISTINCT ra.role_id, ?, ra.user_id, ?, ? FROM role_assignments ra
			 WHERE ra.course_id = ? AND ra.component = ''
			   AND ra.user_id IN (SELECT user_id FROM user_enrolments WHERE enrol_instance_id = ?)`,
			parentID, metaComponent, link.ID, link.ChildID, link.ID); err != nil {
			return fmt.Errorf("mirroring role assignments: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Reporting

func (s *SQLiteDatabase) FindEnrolledUsers(courseID int64) ([]*ilp.EnrolledUser, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.username, u.first_name, u.last_name, u.email, u.department, u.id_number
		 FROM users u
		 JOIN user_enrolments ue ON ue.user_id = u.id
		 JOIN enrol_instances e ON e.id = ue.enrol_instance_id
		 JOIN role_assignments ra ON ra.user_id = u.id AND ra.course_id = e.course_id
		 WHERE e.course_id = ?
		 GROUP BY u.id
		 ORDER BY MIN(ue.id)`, courseID)
	if err != nil {
		return nil, fmt.Errorf("finding enrolled users: %w", err)
	}
	defer rows.Close()

	var result []*ilp.EnrolledUser
	for rows.Next() {
		u := &ilp.EnrolledUser{}
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.Department, &u.IDNumber); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindUserRoles(courseID, userID int64) ([]*ilp.Role, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT r.id, r.name, r.short_name, r.sort_order
		 FROM role_assignments ra JOIN roles r ON r.id = ra.role_id
		 WHERE ra.course_id = ? AND ra.user_id = ?
		 ORDER BY r.sort_order`, courseID, userID)
	if err != nil {
		return nil, fmt.Errorf("finding user roles: %w", err)
	}
	defer rows.Close()

	var result []*ilp.Role
	for rows.Next() {
		r := &ilp.Role{}
		if err := rows.Scan(&r.ID, &r.Name, &r.ShortName, &r.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindCourseGradeItem(courseID int64) (*ilp.GradeItem, error) {
	item := &ilp.GradeItem{}
	err := s.db.QueryRow(
		`SELECT id, course_id, grade_min, grade_max FROM grade_items
		 WHERE course_id = ? AND item_type = 'course' ORDER BY id LIMIT 1`, courseID).
		Scan(&item.ID, &item.CourseID, &item.GradeMin, &item.GradeMax)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding course grade item: %w", err)
	}
	return item, nil
}

func (s *SQLiteDatabase) FindCourseGradeRows(courseID int64) ([]*ilp.GradeRow, error) {
	rows, err := s.db.Query(
		`SELECT gi.course_id, gg.user_id, gg.final_grade, gg.raw_grade
		 FROM grade_grades gg JOIN grade_items gi ON gi.id = gg.item_id
		 WHERE gi.course_id = ? AND (gi.item_name IS NULL OR gi.item_name = '')
		 ORDER BY gg.id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("finding grade rows: %w", err)
	}
	defer rows.Close()

	var result []*ilp.GradeRow
	for rows.Next() {
		r := &ilp.GradeRow{}
		var final, raw sql.NullFloat64
		if err := rows.Scan(&r.CourseID, &r.UserID, &final, &raw); err != nil {
			return nil, fmt.Errorf("scanning grade row: %w", err)
		}
		if final.Valid {
			r.FinalGrade = &final.Float64
		}
		if raw.Valid {
			r.RawGrade = &raw.Float64
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Sync operation tracking

func (s *SQLiteDatabase) CreateSyncOperation(requestID, action, idnumber string, startedAt time.Time) (*ilp.SyncOperation, error) {
	res, err := s.db.Exec(
		`INSERT INTO sync_operations (request_id, action, id_number, started_at) VALUES (?, ?, ?, ?)`,
		requestID, action, idnumber, startedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("creating sync operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading sync operation id: %w", err)
	}
	return &ilp.SyncOperation{
		ID:        id,
		RequestID: requestID,
		Action:    action,
		IDNumber:  idnumber,
		Status:    "running",
		StartedAt: startedAt.UTC(),
	}, nil
}

func (s *SQLiteDatabase) FinishSyncOperation(id int64, status, message string, finishedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE sync_operations SET status = ?, message = ?, finished_at = ? WHERE id = ?`,
		status, message, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("finishing sync operation: %w", err)
	}
	return expectOneRow(res, "sync operation", id)
}

func (s *SQLiteDatabase) ListSyncOperations(limit int) ([]*ilp.SyncOperation, error) {
	rows, err := s.db.Query(
		`SELECT id, request_id, action, id_number, status, message, started_at, finished_at
		 FROM sync_operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync operations: %w", err)
	}
	defer rows.Close()

	var result []*ilp.SyncOperation
	for rows.Next() {
		op := &ilp.SyncOperation{}
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.RequestID, &op.Action, &op.IDNumber, &op.Status, &op.Message, &op.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning sync operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		result = append(result, op)
	}
	return result, rows.Err()
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate brings the schema up to date.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ ilp.Database         = (*SQLiteDatabase)(nil)
	_ ilp.EnrollmentSyncer = (*SQLiteDatabase)(nil)
	_ ilp.OperationLog     = (*SQLiteDatabase)(nil)
)
