package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukerupert/govgrant/internal/database"
	"github.com/dukerupert/govgrant/internal/model"
)

type testStores struct {
	db         *sql.DB
	households *HouseholdStore
	members    *FamilyMemberStore
	refs       *ReferenceStore
}

func setupTestDB(t *testing.T) testStores {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return testStores{
		db:         db,
		households: NewHouseholdStore(db),
		members:    NewFamilyMemberStore(db),
		refs:       NewReferenceStore(db),
	}
}

// setupFileDB opens a WAL database on disk so readers and writers use
// separate connections.
func setupFileDB(t *testing.T) testStores {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "govgrant.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return testStores{
		db:         db,
		households: NewHouseholdStore(db),
		members:    NewFamilyMemberStore(db),
		refs:       NewReferenceStore(db),
	}
}

func (ts testStores) refID(t *testing.T, c model.Category, name string) int64 {
	t.Helper()
	r, err := ts.refs.GetByName(context.Background(), c, name)
	if err != nil {
		t.Fatalf("get reference %s/%s: %v", c, name, err)
	}
	if r == nil {
		t.Fatalf("reference %s/%s not seeded", c, name)
	}
	return r.ID
}

func (ts testStores) createHousehold(t *testing.T, housingType string) *model.Household {
	t.Helper()
	h, err := ts.households.Create(context.Background(), ts.refID(t, model.CategoryHousingType, housingType))
	if err != nil {
		t.Fatalf("create household: %v", err)
	}
	return h
}

func paramsFor(t *testing.T, ts testStores, name string) model.MemberParams {
	t.Helper()
	return model.MemberParams{
		Name:             name,
		DOB:              model.NewDate(1970, time.January, 1),
		GenderID:         ts.refID(t, model.CategoryGender, "Male"),
		MaritalStatusID:  ts.refID(t, model.CategoryMaritalStatus, "Single"),
		OccupationTypeID: ts.refID(t, model.CategoryOccupationType, "Employed"),
		AnnualIncome:     1,
	}
}

func (ts testStores) createMember(t *testing.T, householdID *int64, name string, income int64, spouseID *int64) *model.FamilyMember {
	t.Helper()
	p := paramsFor(t, ts, name)
	p.AnnualIncome = income
	p.SpouseID = spouseID
	p.HouseholdID = householdID
	m, err := ts.members.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("create member %s: %v", name, err)
	}
	return m
}
