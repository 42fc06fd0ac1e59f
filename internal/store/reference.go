package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/govgrant/internal/apperr"
	"github.com/dukerupert/govgrant/internal/model"
)

// ReferenceStore manages the named values every reference category shares.
type ReferenceStore struct {
	db *sql.DB
}

func NewReferenceStore(db *sql.DB) *ReferenceStore {
	return &ReferenceStore{db: db}
}

const referenceCols = `id, category, name`

func scanReference(scanner interface{ Scan(...any) error }) (*model.Reference, error) {
	var r model.Reference
	if err := scanner.Scan(&r.ID, &r.Category, &r.Name); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *ReferenceStore) Create(ctx context.Context, category model.Category, name string) (*model.Reference, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO reference_values (category, name) VALUES (?, ?)`,
		string(category), name,
	)
	if isUniqueViolation(err) {
		return nil, apperr.Conflict("%s %q already exists", category, name)
	}
	if err != nil {
		return nil, fmt.Errorf("insert reference value: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ReferenceStore) GetByID(ctx context.Context, id int64) (*model.Reference, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+referenceCols+` FROM reference_values WHERE id = ?`, id)
	r, err := scanReference(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reference value: %w", err)
	}
	return r, nil
}

// GetByName matches the name exactly within category.
func (s *ReferenceStore) GetByName(ctx context.Context, category model.Category, name string) (*model.Reference, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+referenceCols+` FROM reference_values WHERE category = ? AND name = ?`,
		string(category), name,
	)
	r, err := scanReference(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reference value by name: %w", err)
	}
	return r, nil
}

func (s *ReferenceStore) List(ctx context.Context, category model.Category) ([]model.Reference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+referenceCols+` FROM reference_values WHERE category = ? ORDER BY id`,
		string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("list reference values: %w", err)
	}
	defer rows.Close()

	refs := []model.Reference{}
	for rows.Next() {
		r, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference value: %w", err)
		}
		refs = append(refs, *r)
	}
	return refs, rows.Err()
}
