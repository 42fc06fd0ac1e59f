// Package household implements the membership operations on households:
// creating and updating households, adding and removing members, and
// linking spouses. Every write re-establishes the spouse invariants before
// it returns.
package household

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukerupert/govgrant/internal/apperr"
	"github.com/dukerupert/govgrant/internal/eligibility"
	"github.com/dukerupert/govgrant/internal/metrics"
	"github.com/dukerupert/govgrant/internal/model"
)

// HouseholdRepository persists households. Lookups return nil, nil on a miss.
type HouseholdRepository interface {
	Create(ctx context.Context, housingTypeID int64) (*model.Household, error)
	GetByID(ctx context.Context, id int64) (*model.Household, error)
	List(ctx context.Context) ([]model.Household, error)
	Update(ctx context.Context, id int64, u model.HouseholdUpdate) (*model.Household, error)
	Delete(ctx context.Context, id int64) error
}

// MemberRepository persists family members. SetSpouse must apply the
// forward and reverse writes atomically.
type MemberRepository interface {
	Create(ctx context.Context, p model.MemberParams) (*model.FamilyMember, error)
	GetByID(ctx context.Context, id int64) (*model.FamilyMember, error)
	GetByName(ctx context.Context, name string) (*model.FamilyMember, error)
	List(ctx context.Context) ([]model.FamilyMember, error)
	NameExists(ctx context.Context, name string, excludeID int64) (bool, error)
	SetSpouse(ctx context.Context, memberID int64, spouseID *int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type ReferenceRepository interface {
	Create(ctx context.Context, category model.Category, name string) (*model.Reference, error)
	GetByName(ctx context.Context, category model.Category, name string) (*model.Reference, error)
	List(ctx context.Context, category model.Category) ([]model.Reference, error)
}

// MemberInput is a family member as submitted by a client. Reference fields
// and the spouse are given by name.
type MemberInput struct {
	Name           string  `json:"name" yaml:"name"`
	DOB            string  `json:"dob" yaml:"dob"`
	Gender         string  `json:"gender" yaml:"gender"`
	MaritalStatus  string  `json:"marital_status" yaml:"marital_status"`
	OccupationType string  `json:"occupation_type" yaml:"occupation_type"`
	AnnualIncome   *int64  `json:"annual_income" yaml:"annual_income"`
	Spouse         *string `json:"spouse,omitempty" yaml:"spouse,omitempty"`
}

// Patch is a partial household update. Members are appended, never replaced.
type Patch struct {
	HousingType *string       `json:"housing_type,omitempty"`
	Members     []MemberInput `json:"members,omitempty"`
}

type Service struct {
	households HouseholdRepository
	members    MemberRepository
	references ReferenceRepository
	engine     *eligibility.Engine

	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock sets the clock the eligibility engine uses for age cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(households HouseholdRepository, members MemberRepository, references ReferenceRepository, opts ...Option) *Service {
	s := &Service{
		households: households,
		members:    members,
		references: references,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = eligibility.New(households,
		eligibility.WithClock(s.now),
		eligibility.WithLogger(s.logger),
		eligibility.WithMetrics(s.metrics),
	)
	return s
}

// Engine returns the eligibility engine reading from this service's
// household repository.
func (s *Service) Engine() *eligibility.Engine {
	return s.engine
}

func (s *Service) CreateHousehold(ctx context.Context, housingType string) (*model.Household, error) {
	ref, err := s.resolveReference(ctx, model.CategoryHousingType, housingType)
	if err != nil {
		return nil, err
	}
	h, err := s.households.Create(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("create household: %w", err)
	}
	s.metrics.IncMutation("create_household")
	s.logger.InfoContext(ctx, "household created", "household_id", h.ID, "housing_type", h.HousingType)
	return h, nil
}

func (s *Service) GetHousehold(ctx context.Context, id int64) (*model.Household, error) {
	h, err := s.households.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	if h == nil {
		return nil, apperr.NotFound("household %d not found", id)
	}
	return h, nil
}

// ListHouseholds returns the households matching c in id order. A zero
// Criteria returns every household.
func (s *Service) ListHouseholds(ctx context.Context, c eligibility.Criteria) ([]model.Household, error) {
	return s.engine.Query(ctx, c)
}

// UpdateHousehold applies p to the household. Every appended member is
// validated before anything is written, and the writes commit together.
func (s *Service) UpdateHousehold(ctx context.Context, id int64, p Patch) (*model.Household, error) {
	if _, err := s.GetHousehold(ctx, id); err != nil {
		return nil, err
	}

	verr := &apperr.ValidationError{}
	var u model.HouseholdUpdate
	if p.HousingType != nil {
		ref, err := s.lookupReference(ctx, model.CategoryHousingType, "housing_type", *p.HousingType, verr)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			u.HousingTypeID = &ref.ID
		}
	}

	params := make([]model.MemberParams, len(p.Members))
	seen := make(map[string]bool)
	for i, in := range p.Members {
		prefix := fmt.Sprintf("members[%d].", i)
		mp, err := s.resolveMember(ctx, in, prefix, verr)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSpace(in.Name)
		if name != "" && seen[name] {
			verr.Add(prefix+"name", "duplicate name in request")
		}
		seen[name] = true
		mp.HouseholdID = &id
		params[i] = mp
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	u.Members = params

	h, err := s.households.Update(ctx, id, u)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("update household: %w", err)
	}
	if h == nil {
		return nil, apperr.NotFound("household %d not found", id)
	}
	for _, mp := range params {
		if mp.SpouseID == nil {
			continue
		}
		if m := h.Member(mp.Name); m != nil {
			if err := s.recordSpouseLink(ctx, m.ID, *mp.SpouseID); err != nil {
				return nil, err
			}
		}
	}

	s.metrics.IncMutation("update_household")
	s.logger.InfoContext(ctx, "household updated", "household_id", id, "members_added", len(params))
	return h, nil
}

// DeleteHousehold removes the household and every member in it.
func (s *Service) DeleteHousehold(ctx context.Context, id int64) error {
	if _, err := s.GetHousehold(ctx, id); err != nil {
		return err
	}
	if err := s.households.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	s.metrics.IncMutation("delete_household")
	s.logger.InfoContext(ctx, "household deleted", "household_id", id)
	return nil
}

// AddMember validates in and creates the member inside the household. All
// field problems are reported together.
func (s *Service) AddMember(ctx context.Context, householdID int64, in MemberInput) (*model.FamilyMember, error) {
	if _, err := s.GetHousehold(ctx, householdID); err != nil {
		return nil, err
	}

	verr := &apperr.ValidationError{}
	p, err := s.resolveMember(ctx, in, "", verr)
	if err != nil {
		return nil, err
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	p.HouseholdID = &householdID

	m, err := s.createMember(ctx, p)
	if err != nil {
		return nil, err
	}
	s.metrics.IncMutation("add_member")
	s.logger.InfoContext(ctx, "member added", "household_id", householdID, "member_id", m.ID, "name", m.Name)
	return m, nil
}

// RemoveMember deletes the member called name and returns the refreshed
// household. The name is resolved across all members, not only the ones in
// this household.
func (s *Service) RemoveMember(ctx context.Context, householdID int64, name string) (*model.Household, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name", "field is required")
	}
	if _, err := s.GetHousehold(ctx, householdID); err != nil {
		return nil, err
	}

	m, err := s.members.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFound("could not find '%s' in current household", name)
	}
	if err := s.members.Delete(ctx, m.ID); err != nil {
		return nil, fmt.Errorf("delete member: %w", err)
	}

	s.metrics.IncMutation("remove_member")
	s.logger.InfoContext(ctx, "member removed", "household_id", householdID, "member_id", m.ID, "name", m.Name)
	return s.GetHousehold(ctx, householdID)
}

// SetSpouse links the member to the spouse named spouse, or clears the
// member's link when spouse is nil. Clearing leaves the former spouse's link
// untouched.
func (s *Service) SetSpouse(ctx context.Context, memberID int64, spouse *string) (*model.FamilyMember, error) {
	m, err := s.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}

	var spouseID *int64
	if spouse != nil {
		name := strings.TrimSpace(*spouse)
		if name == "" {
			return nil, apperr.Validation("spouse", "must not be blank")
		}
		target, err := s.members.GetByName(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("find spouse: %w", err)
		}
		if target == nil {
			return nil, apperr.Validation("spouse", fmt.Sprintf("unknown member '%s'", name))
		}
		if target.ID == m.ID {
			return nil, apperr.Validation("spouse", "member cannot be their own spouse")
		}
		spouseID = &target.ID
	}

	reverse, err := s.members.SetSpouse(ctx, m.ID, spouseID)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("set spouse: %w", err)
	}
	if spouseID != nil {
		s.metrics.IncSpouseLink(reverse)
	}
	s.metrics.IncMutation("set_spouse")
	s.logger.InfoContext(ctx, "spouse updated", "member_id", m.ID, "spouse_id", spouseID, "reverse", reverse)
	return s.GetMember(ctx, m.ID)
}

func (s *Service) ListMembers(ctx context.Context) ([]model.FamilyMember, error) {
	members, err := s.members.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *Service) GetMember(ctx context.Context, id int64) (*model.FamilyMember, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFound("family member %d not found", id)
	}
	return m, nil
}

func (s *Service) createMember(ctx context.Context, p model.MemberParams) (*model.FamilyMember, error) {
	m, err := s.members.Create(ctx, p)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create member: %w", err)
	}
	if p.SpouseID != nil {
		if err := s.recordSpouseLink(ctx, m.ID, *p.SpouseID); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// recordSpouseLink counts a new member's spouse link. The new member's own
// link always succeeds; the back-link may not.
func (s *Service) recordSpouseLink(ctx context.Context, memberID, spouseID int64) error {
	spouse, err := s.members.GetByID(ctx, spouseID)
	if err != nil {
		return fmt.Errorf("get spouse: %w", err)
	}
	s.metrics.IncSpouseLink(spouse != nil && spouse.SpouseID != nil && *spouse.SpouseID == memberID)
	return nil
}

// resolveMember checks in and resolves its names to ids. Field problems go
// into verr; only repository failures are returned.
func (s *Service) resolveMember(ctx context.Context, in MemberInput, prefix string, verr *apperr.ValidationError) (model.MemberParams, error) {
	var p model.MemberParams

	p.Name = strings.TrimSpace(in.Name)
	if p.Name == "" {
		verr.Add(prefix+"name", "field is required")
	} else {
		exists, err := s.members.NameExists(ctx, p.Name, 0)
		if err != nil {
			return p, fmt.Errorf("check name: %w", err)
		}
		if exists {
			verr.Add(prefix+"name", "a family member with that name already exists")
		}
	}

	if strings.TrimSpace(in.DOB) == "" {
		verr.Add(prefix+"dob", "field is required")
	} else if dob, err := model.ParseDate(strings.TrimSpace(in.DOB)); err != nil {
		verr.Add(prefix+"dob", "must be a date in YYYY-MM-DD format")
	} else {
		p.DOB = dob
	}

	for _, f := range []struct {
		field    string
		category model.Category
		value    string
		dst      *int64
	}{
		{"gender", model.CategoryGender, in.Gender, &p.GenderID},
		{"marital_status", model.CategoryMaritalStatus, in.MaritalStatus, &p.MaritalStatusID},
		{"occupation_type", model.CategoryOccupationType, in.OccupationType, &p.OccupationTypeID},
	} {
		ref, err := s.lookupReference(ctx, f.category, prefix+f.field, f.value, verr)
		if err != nil {
			return p, err
		}
		if ref != nil {
			*f.dst = ref.ID
		}
	}

	switch {
	case in.AnnualIncome == nil:
		verr.Add(prefix+"annual_income", "field is required")
	case *in.AnnualIncome < 0:
		verr.Add(prefix+"annual_income", "must not be negative")
	default:
		p.AnnualIncome = *in.AnnualIncome
	}

	if in.Spouse != nil && strings.TrimSpace(*in.Spouse) != "" {
		name := strings.TrimSpace(*in.Spouse)
		spouse, err := s.members.GetByName(ctx, name)
		if err != nil {
			return p, fmt.Errorf("find spouse: %w", err)
		}
		switch {
		case name == p.Name:
			verr.Add(prefix+"spouse", "member cannot be their own spouse")
		case spouse == nil:
			verr.Add(prefix+"spouse", fmt.Sprintf("unknown member '%s'", name))
		default:
			p.SpouseID = &spouse.ID
		}
	}
	return p, nil
}

// lookupReference finds a reference value by exact name. A blank or unknown
// name is recorded in verr under field and returns nil.
func (s *Service) lookupReference(ctx context.Context, category model.Category, field, name string, verr *apperr.ValidationError) (*model.Reference, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		verr.Add(field, "field is required")
		return nil, nil
	}
	ref, err := s.references.GetByName(ctx, category, name)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", category, err)
	}
	if ref == nil {
		verr.Add(field, fmt.Sprintf("unknown %s '%s'", strings.ReplaceAll(string(category), "_", " "), name))
		return nil, nil
	}
	return ref, nil
}

func (s *Service) resolveReference(ctx context.Context, category model.Category, name string) (*model.Reference, error) {
	verr := &apperr.ValidationError{}
	ref, err := s.lookupReference(ctx, category, string(category), name, verr)
	if err != nil {
		return nil, err
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return ref, nil
}

func (s *Service) ListReferences(ctx context.Context, category model.Category) ([]model.Reference, error) {
	refs, err := s.references.List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", category, err)
	}
	return refs, nil
}

// CreateReference adds a new named value to category. Names are unique per
// category; a duplicate returns apperr.ErrConflict.
func (s *Service) CreateReference(ctx context.Context, category model.Category, name string) (*model.Reference, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name", "field is required")
	}
	ref, err := s.references.Create(ctx, category, name)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("create %s: %w", category, err)
	}
	s.metrics.IncMutation("create_reference")
	s.logger.InfoContext(ctx, "reference value created", "category", category, "name", name)
	return ref, nil
}
