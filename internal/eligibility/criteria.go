// Package eligibility selects the households that qualify for a grant.
//
// Criteria are independently optional and combine with AND. Aggregates are
// computed per household from its current members: total annual income and
// the number of members with a spouse set.
package eligibility

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Query parameter names accepted by ParseCriteria.
const (
	ParamMinIncome   = "min_income"
	ParamMaxIncome   = "max_income"
	ParamMinAge      = "min_age"
	ParamMaxAge      = "max_age"
	ParamWithSpouse  = "with_spouse"
	ParamHousingType = "housing_type"
)

// AgeLimit is the largest age accepted in min_age and max_age.
const AgeLimit = 200

// Criteria is a set of optional household predicates. Nil fields and an
// empty HousingType impose no constraint.
type Criteria struct {
	MinIncome   *int64 `json:"min_income,omitempty"`
	MaxIncome   *int64 `json:"max_income,omitempty"`
	MinAge      *int   `json:"min_age,omitempty"`
	MaxAge      *int   `json:"max_age,omitempty"`
	WithSpouse  *bool  `json:"with_spouse,omitempty"`
	HousingType string `json:"housing_type,omitempty"`
}

// IsZero reports whether no constraint is set.
func (c Criteria) IsZero() bool {
	return c.MinIncome == nil && c.MaxIncome == nil &&
		c.MinAge == nil && c.MaxAge == nil &&
		c.WithSpouse == nil && c.HousingType == ""
}

// CriteriaError is an unparseable filter parameter.
type CriteriaError struct {
	Field string
	Value string
	Err   error
}

func (e *CriteriaError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *CriteriaError) Unwrap() error {
	return e.Err
}

// ParseCriteria reads criteria from query parameters. Blank values are
// treated as absent.
func ParseCriteria(q url.Values) (Criteria, error) {
	var c Criteria
	var err error

	if c.MinIncome, err = parseIncome(q, ParamMinIncome); err != nil {
		return Criteria{}, err
	}
	if c.MaxIncome, err = parseIncome(q, ParamMaxIncome); err != nil {
		return Criteria{}, err
	}
	if c.MinAge, err = parseAge(q, ParamMinAge); err != nil {
		return Criteria{}, err
	}
	if c.MaxAge, err = parseAge(q, ParamMaxAge); err != nil {
		return Criteria{}, err
	}

	if raw := strings.TrimSpace(q.Get(ParamWithSpouse)); raw != "" {
		b, perr := strconv.ParseBool(raw)
		if perr != nil {
			return Criteria{}, &CriteriaError{Field: ParamWithSpouse, Value: raw, Err: fmt.Errorf("must be a boolean")}
		}
		c.WithSpouse = &b
	}

	c.HousingType = strings.TrimSpace(q.Get(ParamHousingType))
	return c, nil
}

func parseIncome(q url.Values, field string) (*int64, error) {
	raw := strings.TrimSpace(q.Get(field))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &CriteriaError{Field: field, Value: raw, Err: fmt.Errorf("must be an integer")}
	}
	if n < 0 {
		return nil, &CriteriaError{Field: field, Value: raw, Err: fmt.Errorf("must not be negative")}
	}
	return &n, nil
}

func parseAge(q url.Values, field string) (*int, error) {
	raw := strings.TrimSpace(q.Get(field))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &CriteriaError{Field: field, Value: raw, Err: fmt.Errorf("must be an integer")}
	}
	if n < 0 {
		return nil, &CriteriaError{Field: field, Value: raw, Err: fmt.Errorf("must not be negative")}
	}
	if n > AgeLimit {
		return nil, &CriteriaError{Field: field, Value: raw, Err: fmt.Errorf("must not exceed %d", AgeLimit)}
	}
	return &n, nil
}

// Values renders c back into query parameters.
func (c Criteria) Values() url.Values {
	q := url.Values{}
	if c.MinIncome != nil {
		q.Set(ParamMinIncome, strconv.FormatInt(*c.MinIncome, 10))
	}
	if c.MaxIncome != nil {
		q.Set(ParamMaxIncome, strconv.FormatInt(*c.MaxIncome, 10))
	}
	if c.MinAge != nil {
		q.Set(ParamMinAge, strconv.Itoa(*c.MinAge))
	}
	if c.MaxAge != nil {
		q.Set(ParamMaxAge, strconv.Itoa(*c.MaxAge))
	}
	if c.WithSpouse != nil {
		q.Set(ParamWithSpouse, strconv.FormatBool(*c.WithSpouse))
	}
	if c.HousingType != "" {
		q.Set(ParamHousingType, c.HousingType)
	}
	return q
}
