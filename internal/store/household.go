package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/govgrant/internal/model"
)

type HouseholdStore struct {
	db *sql.DB
}

func NewHouseholdStore(db *sql.DB) *HouseholdStore {
	return &HouseholdStore{db: db}
}

const householdSelect = `SELECT h.id, ht.name, h.created_at, h.updated_at
	FROM households h
	JOIN reference_values ht ON ht.id = h.housing_type_id`

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	err := scanner.Scan(&h.ID, &h.HousingType, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.Members = []model.FamilyMember{}
	return &h, nil
}

func (s *HouseholdStore) Create(ctx context.Context, housingTypeID int64) (*model.Household, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO households (housing_type_id) VALUES (?)`, housingTypeID)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the household with its members, or nil if it does not exist.
func (s *HouseholdStore) GetByID(ctx context.Context, id int64) (*model.Household, error) {
	row := s.db.QueryRowContext(ctx, householdSelect+` WHERE h.id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}

	members, err := NewFamilyMemberStore(s.db).ListByHousehold(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get household members: %w", err)
	}
	h.Members = members
	return h, nil
}

// List returns every household in id order with members attached. Both
// queries run in one read transaction so they see the same snapshot.
func (s *HouseholdStore) List(ctx context.Context) ([]model.Household, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, householdSelect+` ORDER BY h.id`)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}

	households := []model.Household{}
	index := make(map[int64]int)
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan household: %w", err)
		}
		index[h.ID] = len(households)
		households = append(households, *h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list households: %w", err)
	}
	rows.Close()

	members, err := queryMembers(ctx, tx,
		memberSelect+` WHERE m.household_id IS NOT NULL ORDER BY m.id`)
	if err != nil {
		return nil, fmt.Errorf("list household members: %w", err)
	}
	for _, m := range members {
		if i, ok := index[*m.HouseholdID]; ok {
			households[i].Members = append(households[i].Members, m)
		}
	}
	return households, tx.Commit()
}

// Update applies u in one transaction: the housing type when set, then each
// new member with its spouse link. Nothing is written if any insert fails.
func (s *HouseholdStore) Update(ctx context.Context, id int64, u model.HouseholdUpdate) (*model.Household, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if u.HousingTypeID != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE households SET housing_type_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			*u.HousingTypeID, id,
		); err != nil {
			return nil, fmt.Errorf("update household: %w", err)
		}
	}
	for _, p := range u.Members {
		p.HouseholdID = &id
		if _, err := insertMember(ctx, tx, p); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Delete removes the household and its members, clearing spouse links that
// pointed at any of them.
func (s *HouseholdStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE family_members SET spouse_id = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE spouse_id IN (SELECT id FROM family_members WHERE household_id = ?)`, id,
	); err != nil {
		return fmt.Errorf("clear spouse links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM family_members WHERE household_id = ?`, id); err != nil {
		return fmt.Errorf("delete household members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM households WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	return tx.Commit()
}
