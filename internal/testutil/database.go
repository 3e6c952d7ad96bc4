package testutil

import (
	"testing"

	"ilp-go/internal/database"
	"ilp-go/internal/ilp"
)

// NewTestDatabase creates a new in-memory SQLite database with the
// migrations applied. It is closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// MustCreateCourse inserts a course with sections and a manual enrolment
// instance, filling the fields the store needs.
func MustCreateCourse(t *testing.T, db *database.SQLiteDatabase, c *ilp.Course) *ilp.Course {
	t.Helper()

	if c.Category == 0 {
		c.Category = 1
	}
	if c.Format == "" {
		c.Format = "weeks"
	}
	created, err := db.CreateCourse(c)
	if err != nil {
		t.Fatalf("creating course %s: %v", c.IDNumber, err)
	}
	return created
}

// MustFindCourse loads a course by idnumber and fails the test if it is missing.
func MustFindCourse(t *testing.T, db ilp.Database, idnumber string) *ilp.Course {
	t.Helper()

	c, err := db.FindCourseByIDNumber(idnumber)
	if err != nil {
		t.Fatalf("finding course %s: %v", idnumber, err)
	}
	if c == nil {
		t.Fatalf("course %s not found", idnumber)
	}
	return c
}
