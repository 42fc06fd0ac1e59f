package household_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/dukerupert/govgrant/internal/apperr"
	"github.com/dukerupert/govgrant/internal/database"
	"github.com/dukerupert/govgrant/internal/eligibility"
	"github.com/dukerupert/govgrant/internal/household"
	"github.com/dukerupert/govgrant/internal/metrics"
	"github.com/dukerupert/govgrant/internal/store"
)

var refDate = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

type ServiceSuite struct {
	suite.Suite
	ctx     context.Context
	svc     *household.Service
	members *store.FamilyMemberStore
	metrics *metrics.Metrics
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	db, err := database.Open(database.MemoryPath)
	s.Require().NoError(err)
	s.T().Cleanup(func() { db.Close() })

	s.ctx = context.Background()
	s.members = store.NewFamilyMemberStore(db)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.svc = household.NewService(
		store.NewHouseholdStore(db),
		s.members,
		store.NewReferenceStore(db),
		household.WithClock(func() time.Time { return refDate }),
		household.WithMetrics(s.metrics),
	)
}

func income(n int64) *int64 { return &n }

func ptr(s string) *string { return &s }

func member(name, dob string, annual int64) household.MemberInput {
	return household.MemberInput{
		Name:           name,
		DOB:            dob,
		Gender:         "Male",
		MaritalStatus:  "Single",
		OccupationType: "Employed",
		AnnualIncome:   income(annual),
	}
}

func (s *ServiceSuite) newHousehold(housingType string) int64 {
	h, err := s.svc.CreateHousehold(s.ctx, housingType)
	s.Require().NoError(err)
	return h.ID
}

func (s *ServiceSuite) TestCreateHouseholdUnknownHousingType() {
	_, err := s.svc.CreateHousehold(s.ctx, "Bungalow")

	var verr *apperr.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Contains(verr.Fields, "housing_type")
}

func (s *ServiceSuite) TestCreateHouseholdStartsEmpty() {
	h, err := s.svc.CreateHousehold(s.ctx, "HDB")
	s.Require().NoError(err)
	s.Equal("HDB", h.HousingType)
	s.NotNil(h.Members)
	s.Empty(h.Members)
}

func (s *ServiceSuite) TestGetHouseholdNotFound() {
	_, err := s.svc.GetHousehold(s.ctx, 42)
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *ServiceSuite) TestAddMember() {
	hid := s.newHousehold("Landed")

	m, err := s.svc.AddMember(s.ctx, hid, member("Paul Tan", "2010-01-01", 10000))
	s.Require().NoError(err)
	s.Equal("Paul Tan", m.Name)
	s.Equal("2010-01-01", m.DOB.String())
	s.Require().NotNil(m.HouseholdID)
	s.Equal(hid, *m.HouseholdID)
	s.Nil(m.Spouse)

	h, err := s.svc.GetHousehold(s.ctx, hid)
	s.Require().NoError(err)
	s.Len(h.Members, 1)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Mutations.WithLabelValues("add_member")))
}

func (s *ServiceSuite) TestAddMemberReportsEveryField() {
	hid := s.newHousehold("HDB")

	_, err := s.svc.AddMember(s.ctx, hid, household.MemberInput{
		DOB:            "01/01/2010",
		Gender:         "Robot",
		OccupationType: "Employed",
		AnnualIncome:   income(-5),
		Spouse:         ptr("Nobody"),
	})

	var verr *apperr.ValidationError
	s.Require().ErrorAs(err, &verr)
	for _, field := range []string{"name", "dob", "gender", "marital_status", "annual_income", "spouse"} {
		s.Contains(verr.Fields, field)
	}
	s.NotContains(verr.Fields, "occupation_type")
	s.Equal("field is required", verr.Fields["name"])
}

func (s *ServiceSuite) TestAddMemberMissingIncome() {
	hid := s.newHousehold("HDB")
	in := member("Ah Hock", "1980-02-02", 0)
	in.AnnualIncome = nil

	_, err := s.svc.AddMember(s.ctx, hid, in)

	var verr *apperr.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal("field is required", verr.Fields["annual_income"])
}

func (s *ServiceSuite) TestAddMemberDuplicateName() {
	hid := s.newHousehold("HDB")
	_, err := s.svc.AddMember(s.ctx, hid, member("Ah Hock", "1980-02-02", 0))
	s.Require().NoError(err)

	_, err = s.svc.AddMember(s.ctx, hid, member("Ah Hock", "1981-03-03", 0))
	var verr *apperr.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Contains(verr.Fields, "name")
}

func (s *ServiceSuite) TestAddMemberUnknownHousehold() {
	_, err := s.svc.AddMember(s.ctx, 99, member("Ah Hock", "1980-02-02", 0))
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *ServiceSuite) TestAddMemberWithSpouseLinksBothWays() {
	hid := s.newHousehold("HDB")
	husband, err := s.svc.AddMember(s.ctx, hid, member("Tan Ah Kow", "1975-05-05", 40000))
	s.Require().NoError(err)

	in := member("Mavis Lim", "1977-07-07", 30000)
	in.Spouse = ptr("Tan Ah Kow")
	wife, err := s.svc.AddMember(s.ctx, hid, in)
	s.Require().NoError(err)
	s.Require().NotNil(wife.Spouse)
	s.Equal("Tan Ah Kow", *wife.Spouse)

	husband, err = s.svc.GetMember(s.ctx, husband.ID)
	s.Require().NoError(err)
	s.Require().NotNil(husband.Spouse)
	s.Equal("Mavis Lim", *husband.Spouse)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SpouseLinks.WithLabelValues("true")))
}

func (s *ServiceSuite) TestRemoveMember() {
	hid := s.newHousehold("HDB")
	_, err := s.svc.AddMember(s.ctx, hid, member("Keep", "1980-01-01", 1))
	s.Require().NoError(err)
	_, err = s.svc.AddMember(s.ctx, hid, member("Drop", "1980-01-01", 1))
	s.Require().NoError(err)

	h, err := s.svc.RemoveMember(s.ctx, hid, "Drop")
	s.Require().NoError(err)
	s.Require().Len(h.Members, 1)
	s.Equal("Keep", h.Members[0].Name)
}

func (s *ServiceSuite) TestRemoveMemberErrors() {
	hid := s.newHousehold("HDB")

	_, err := s.svc.RemoveMember(s.ctx, hid, "  ")
	var verr *apperr.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Equal(map[string]string{"name": "field is required"}, verr.Fields)

	_, err = s.svc.RemoveMember(s.ctx, hid, "Ghost")
	s.Require().ErrorIs(err, apperr.ErrNotFound)
	s.Equal("could not find 'Ghost' in current household", err.Error())

	_, err = s.svc.RemoveMember(s.ctx, 77, "Ghost")
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *ServiceSuite) TestRemoveMemberResolvesNameGlobally() {
	h1 := s.newHousehold("HDB")
	h2 := s.newHousehold("Landed")
	_, err := s.svc.AddMember(s.ctx, h2, member("Elsewhere", "1980-01-01", 1))
	s.Require().NoError(err)

	_, err = s.svc.RemoveMember(s.ctx, h1, "Elsewhere")
	s.Require().NoError(err)

	other, err := s.svc.GetHousehold(s.ctx, h2)
	s.Require().NoError(err)
	s.Empty(other.Members)
}

func (s *ServiceSuite) TestUpdateHouseholdAppendsMembers() {
	hid := s.newHousehold("HDB")
	_, err := s.svc.AddMember(s.ctx, hid, member("First", "1980-01-01", 1))
	s.Require().NoError(err)

	h, err := s.svc.UpdateHousehold(s.ctx, hid, household.Patch{
		HousingType: ptr("Condominium"),
		Members:     []household.MemberInput{member("Second", "1990-01-01", 2)},
	})
	s.Require().NoError(err)
	s.Equal("Condominium", h.HousingType)
	s.Require().Len(h.Members, 2)
	s.Equal("First", h.Members[0].Name)
	s.Equal("Second", h.Members[1].Name)
}

func (s *ServiceSuite) TestUpdateHouseholdLinksSpouse() {
	other := s.newHousehold("Landed")
	_, err := s.svc.AddMember(s.ctx, other, member("Mavis Lim", "1977-07-07", 30000))
	s.Require().NoError(err)

	hid := s.newHousehold("HDB")
	in := member("Tan Ah Kow", "1975-05-05", 40000)
	in.Spouse = ptr("Mavis Lim")
	h, err := s.svc.UpdateHousehold(s.ctx, hid, household.Patch{Members: []household.MemberInput{in}})
	s.Require().NoError(err)

	husband := h.Member("Tan Ah Kow")
	s.Require().NotNil(husband)
	s.Require().NotNil(husband.Spouse)
	s.Equal("Mavis Lim", *husband.Spouse)

	members, err := s.svc.ListMembers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(members, 2)
	s.Equal("Mavis Lim", members[0].Name)
	s.Require().NotNil(members[0].Spouse)
	s.Equal("Tan Ah Kow", *members[0].Spouse)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SpouseLinks.WithLabelValues("true")))
}

func (s *ServiceSuite) TestUpdateHouseholdValidatesBeforeWriting() {
	hid := s.newHousehold("HDB")

	_, err := s.svc.UpdateHousehold(s.ctx, hid, household.Patch{
		HousingType: ptr("Landed"),
		Members: []household.MemberInput{
			member("Good", "1990-01-01", 2),
			member("Good", "1990-01-01", 2),
		},
	})
	var verr *apperr.ValidationError
	s.Require().ErrorAs(err, &verr)
	s.Contains(verr.Fields, "members[1].name")

	h, err := s.svc.GetHousehold(s.ctx, hid)
	s.Require().NoError(err)
	s.Equal("HDB", h.HousingType)
	s.Empty(h.Members)
}

func (s *ServiceSuite) TestDeleteHousehold() {
	hid := s.newHousehold("HDB")
	m, err := s.svc.AddMember(s.ctx, hid, member("Gone", "1980-01-01", 1))
	s.Require().NoError(err)

	s.Require().NoError(s.svc.DeleteHousehold(s.ctx, hid))

	_, err = s.svc.GetHousehold(s.ctx, hid)
	s.ErrorIs(err, apperr.ErrNotFound)
	_, err = s.svc.GetMember(s.ctx, m.ID)
	s.ErrorIs(err, apperr.ErrNotFound)
	s.ErrorIs(s.svc.DeleteHousehold(s.ctx, hid), apperr.ErrNotFound)
}

func (s *ServiceSuite) TestSetSpouse() {
	hid := s.newHousehold("HDB")
	a, err := s.svc.AddMember(s.ctx, hid, member("A", "1980-01-01", 1))
	s.Require().NoError(err)
	b, err := s.svc.AddMember(s.ctx, hid, member("B", "1980-01-01", 1))
	s.Require().NoError(err)

	a, err = s.svc.SetSpouse(s.ctx, a.ID, ptr("B"))
	s.Require().NoError(err)
	s.Equal("B", *a.Spouse)
	b, err = s.svc.GetMember(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal("A", *b.Spouse)

	// Clearing only touches the member itself.
	a, err = s.svc.SetSpouse(s.ctx, a.ID, nil)
	s.Require().NoError(err)
	s.Nil(a.Spouse)
	b, err = s.svc.GetMember(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal("A", *b.Spouse)
}

func (s *ServiceSuite) TestSetSpouseDoesNotOverrideReverse() {
	hid := s.newHousehold("HDB")
	a, _ := s.svc.AddMember(s.ctx, hid, member("A", "1980-01-01", 1))
	b, _ := s.svc.AddMember(s.ctx, hid, member("B", "1980-01-01", 1))
	_, _ = s.svc.AddMember(s.ctx, hid, member("C", "1980-01-01", 1))

	_, err := s.svc.SetSpouse(s.ctx, b.ID, ptr("C"))
	s.Require().NoError(err)
	_, err = s.svc.SetSpouse(s.ctx, a.ID, ptr("B"))
	s.Require().NoError(err)

	b, err = s.svc.GetMember(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal("C", *b.Spouse)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SpouseLinks.WithLabelValues("false")))
}

func (s *ServiceSuite) TestSetSpouseErrors() {
	hid := s.newHousehold("HDB")
	a, _ := s.svc.AddMember(s.ctx, hid, member("A", "1980-01-01", 1))
	_, _ = s.svc.AddMember(s.ctx, hid, member("B", "1980-01-01", 1))
	_, _ = s.svc.AddMember(s.ctx, hid, member("C", "1980-01-01", 1))

	var verr *apperr.ValidationError
	_, err := s.svc.SetSpouse(s.ctx, a.ID, ptr("A"))
	s.ErrorAs(err, &verr)

	_, err = s.svc.SetSpouse(s.ctx, a.ID, ptr("Nobody"))
	s.ErrorAs(err, &verr)

	_, err = s.svc.SetSpouse(s.ctx, 999, ptr("B"))
	s.ErrorIs(err, apperr.ErrNotFound)

	_, err = s.svc.SetSpouse(s.ctx, a.ID, ptr("B"))
	s.Require().NoError(err)
	_, err = s.svc.SetSpouse(s.ctx, a.ID, ptr("C"))
	s.ErrorIs(err, apperr.ErrConflict)
}

func (s *ServiceSuite) TestConcurrentSetSpouseOneReverseLink() {
	hid := s.newHousehold("HDB")
	target, err := s.svc.AddMember(s.ctx, hid, member("Target", "1980-01-01", 1))
	s.Require().NoError(err)

	names := []string{"P1", "P2", "P3", "P4", "P5", "P6", "P7", "P8"}
	ids := make([]int64, len(names))
	for i, n := range names {
		m, err := s.svc.AddMember(s.ctx, hid, member(n, "1980-01-01", 1))
		s.Require().NoError(err)
		ids[i] = m.ID
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.svc.SetSpouse(s.ctx, id, ptr("Target"))
		}()
	}
	wg.Wait()
	s.NoError(errors.Join(errs...))

	target, err = s.svc.GetMember(s.ctx, target.ID)
	s.Require().NoError(err)
	s.Require().NotNil(target.SpouseID)
	s.Contains(ids, *target.SpouseID)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SpouseLinks.WithLabelValues("true")))
	s.Equal(float64(len(ids)-1), testutil.ToFloat64(s.metrics.SpouseLinks.WithLabelValues("false")))
}

func (s *ServiceSuite) TestReferences() {
	refs, err := s.svc.ListReferences(s.ctx, "occupation_type")
	s.Require().NoError(err)
	s.Len(refs, 3)

	ref, err := s.svc.CreateReference(s.ctx, "occupation_type", "Retired")
	s.Require().NoError(err)
	s.Equal("Retired", ref.Name)

	_, err = s.svc.CreateReference(s.ctx, "occupation_type", "Retired")
	s.ErrorIs(err, apperr.ErrConflict)

	_, err = s.svc.CreateReference(s.ctx, "occupation_type", " ")
	var verr *apperr.ValidationError
	s.ErrorAs(err, &verr)
}

func TestPaulTanEndToEnd(t *testing.T) {
	db, err := database.Open(database.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	svc := household.NewService(
		store.NewHouseholdStore(db),
		store.NewFamilyMemberStore(db),
		store.NewReferenceStore(db),
		household.WithClock(func() time.Time { return refDate }),
	)

	h, err := svc.CreateHousehold(ctx, "Landed")
	require.NoError(t, err)
	_, err = svc.AddMember(ctx, h.ID, member("Paul Tan", "2010-01-01", 10000))
	require.NoError(t, err)

	maxAge16, maxAge5 := 16, 5
	got, err := svc.ListHouseholds(ctx, eligibility.Criteria{MaxAge: &maxAge16, MaxIncome: income(150000)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, h.ID, got[0].ID)
	assert.Equal(t, "Paul Tan", got[0].Members[0].Name)

	got, err = svc.ListHouseholds(ctx, eligibility.Criteria{MaxAge: &maxAge5})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}
