package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ilp-go/internal/ilp"
)

// Users, manual enrolments and grades are maintained by the platform
// itself. These helpers write them directly for seeding and tests.

// CreateUser inserts a user and returns its id.
func (s *SQLiteDatabase) CreateUser(u *ilp.EnrolledUser) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO users (username, first_name, last_name, email, department, id_number) VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, u.FirstName, u.LastName, u.Email, u.Department, u.IDNumber)
	if err != nil {
		return 0, fmt.Errorf("inserting user: %w", err)
	}
	return res.LastInsertId()
}

// EnrolUser enrols a user in a course through its manual enrolment instance
// and assigns the role with the given short name.
func (s *SQLiteDatabase) EnrolUser(courseID, userID int64, roleShortName string) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var instanceID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM enrol_instances WHERE course_id = ? AND method = 'manual' ORDER BY id LIMIT 1`,
		courseID).Scan(&instanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("course %d has no manual enrolment instance", courseID)
	} else if err != nil {
		return fmt.Errorf("finding manual enrolment instance: %w", err)
	}

	var roleID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM roles WHERE short_name = ?`, roleShortName).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("unknown role: %s", roleShortName)
	} else if err != nil {
		return fmt.Errorf("finding role: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_enrolments (enrol_instance_id, user_id, time_created) VALUES (?, ?, ?)`,
		instanceID, userID, time.Now().Unix()); err != nil {
		return fmt.Errorf("inserting enrolment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO role_assignments (role_id, course_id, user_id) VALUES (?, ?, ?)`,
		roleID, courseID, userID); err != nil {
		return fmt.Errorf("inserting role assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// SetCourseGrade records a user's grade on the course aggregate item,
// creating the item on first use. nil grades are stored as NULL.
func (s *SQLiteDatabase) SetCourseGrade(courseID, userID int64, finalGrade, rawGrade *float64) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var itemID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM grade_items WHERE course_id = ? AND item_type = 'course' ORDER BY id LIMIT 1`,
		courseID).Scan(&itemID)
	if errors.Is(err, sql.ErrNoRows) {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO grade_items (course_id, item_type) VALUES (?, 'course')`, courseID)
		if err != nil {
			return fmt.Errorf("inserting course grade item: %w", err)
		}
		if itemID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("reading grade item id: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("finding course grade item: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO grade_grades (item_id, user_id, final_grade, raw_grade) VALUES (?, ?, ?, ?)
		 ON CONFLICT (item_id, user_id) DO UPDATE SET final_grade = excluded.final_grade, raw_grade = excluded.raw_grade`,
		itemID, userID, nullFloat(finalGrade), nullFloat(rawGrade)); err != nil {
		return fmt.Errorf("recording grade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
