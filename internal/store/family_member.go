package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/govgrant/internal/apperr"
	"github.com/dukerupert/govgrant/internal/model"
)

type FamilyMemberStore struct {
	db *sql.DB
}

func NewFamilyMemberStore(db *sql.DB) *FamilyMemberStore {
	return &FamilyMemberStore{db: db}
}

// memberSelect resolves reference ids and the spouse id to names.
const memberSelect = `SELECT m.id, m.name, m.dob, g.name, ms.name, o.name, m.annual_income,
	m.spouse_id, s.name, m.household_id, m.created_at, m.updated_at
	FROM family_members m
	JOIN reference_values g ON g.id = m.gender_id
	JOIN reference_values ms ON ms.id = m.marital_status_id
	JOIN reference_values o ON o.id = m.occupation_type_id
	LEFT JOIN family_members s ON s.id = m.spouse_id`

func scanFamilyMember(scanner interface{ Scan(...any) error }) (*model.FamilyMember, error) {
	var m model.FamilyMember
	var spouseID, householdID sql.NullInt64
	var spouseName sql.NullString
	err := scanner.Scan(&m.ID, &m.Name, &m.DOB, &m.Gender, &m.MaritalStatus, &m.OccupationType,
		&m.AnnualIncome, &spouseID, &spouseName, &householdID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if spouseID.Valid {
		m.SpouseID = &spouseID.Int64
		m.Spouse = &spouseName.String
	}
	if householdID.Valid {
		m.HouseholdID = &householdID.Int64
	}
	return &m, nil
}

// Create inserts a member and, when SpouseID is set, links the spouse in the
// same transaction.
func (s *FamilyMemberStore) Create(ctx context.Context, p model.MemberParams) (*model.FamilyMember, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	id, err := insertMember(ctx, tx, p)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, id)
}

func insertMember(ctx context.Context, tx *sql.Tx, p model.MemberParams) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO family_members
			(name, dob, gender_id, marital_status_id, occupation_type_id, annual_income, household_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.DOB, p.GenderID, p.MaritalStatusID, p.OccupationTypeID, p.AnnualIncome, p.HouseholdID,
	)
	if isUniqueViolation(err) {
		return 0, apperr.Conflict("family member %q already exists", p.Name)
	}
	if err != nil {
		return 0, fmt.Errorf("insert family member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	if p.SpouseID != nil {
		if _, err := linkSpouse(ctx, tx, id, p.SpouseID); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (s *FamilyMemberStore) GetByID(ctx context.Context, id int64) (*model.FamilyMember, error) {
	row := s.db.QueryRowContext(ctx, memberSelect+` WHERE m.id = ?`, id)
	m, err := scanFamilyMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family member: %w", err)
	}
	return m, nil
}

// GetByName looks the name up across every household.
func (s *FamilyMemberStore) GetByName(ctx context.Context, name string) (*model.FamilyMember, error) {
	row := s.db.QueryRowContext(ctx, memberSelect+` WHERE m.name = ?`, name)
	m, err := scanFamilyMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family member by name: %w", err)
	}
	return m, nil
}

func (s *FamilyMemberStore) List(ctx context.Context) ([]model.FamilyMember, error) {
	return s.query(ctx, memberSelect+` ORDER BY m.id`)
}

func (s *FamilyMemberStore) ListByHousehold(ctx context.Context, householdID int64) ([]model.FamilyMember, error) {
	return s.query(ctx, memberSelect+` WHERE m.household_id = ? ORDER BY m.id`, householdID)
}

func (s *FamilyMemberStore) query(ctx context.Context, query string, args ...any) ([]model.FamilyMember, error) {
	return queryMembers(ctx, s.db, query, args...)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryMembers(ctx context.Context, q querier, query string, args ...any) ([]model.FamilyMember, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query family members: %w", err)
	}
	defer rows.Close()

	members := []model.FamilyMember{}
	for rows.Next() {
		m, err := scanFamilyMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan family member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// Delete removes a member. Spouse links pointing at it are cleared.
func (s *FamilyMemberStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE family_members SET spouse_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE spouse_id = ?`, id,
	); err != nil {
		return fmt.Errorf("clear spouse links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM family_members WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete family member: %w", err)
	}
	return tx.Commit()
}

// SetSpouse sets or clears a member's spouse in one transaction. Setting also
// points the spouse back at the member when the spouse has no link yet. It
// returns apperr.ErrConflict when the member already has a different spouse,
// and reports whether the reverse link was written.
func (s *FamilyMemberStore) SetSpouse(ctx context.Context, memberID int64, spouseID *int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	reverse, err := linkSpouse(ctx, tx, memberID, spouseID)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return reverse, nil
}

func linkSpouse(ctx context.Context, tx *sql.Tx, memberID int64, spouseID *int64) (bool, error) {
	if spouseID == nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE family_members SET spouse_id = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, memberID,
		); err != nil {
			return false, fmt.Errorf("clear spouse: %w", err)
		}
		return false, nil
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE family_members SET spouse_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND (spouse_id IS NULL OR spouse_id = ?)`,
		*spouseID, memberID, *spouseID,
	)
	if err != nil {
		return false, fmt.Errorf("set spouse: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return false, apperr.Conflict("member %d already has a different spouse", memberID)
	}

	// The reverse write only fires while the target's link is empty, and
	// being a plain update it cannot propagate further.
	result, err = tx.ExecContext(ctx,
		`UPDATE family_members SET spouse_id = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND spouse_id IS NULL`,
		memberID, *spouseID,
	)
	if err != nil {
		return false, fmt.Errorf("set reverse spouse: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (s *FamilyMemberStore) NameExists(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM family_members WHERE name = ? AND id != ?`,
		name, excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check name exists: %w", err)
	}
	return count > 0, nil
}
