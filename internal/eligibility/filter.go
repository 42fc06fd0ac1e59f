package eligibility

import (
	"strings"
	"time"

	"github.com/dukerupert/govgrant/internal/model"
)

// Years are a fixed 365 days when computing age cutoffs, so leap days drift
// the boundary by a day or so.
const daysPerYear = 365

// Aggregate holds the per-household values predicates are evaluated on.
type Aggregate struct {
	Members     int
	Income      int64
	SpouseCount int
}

// Summarize computes a household's aggregate from its current members.
// SpouseCount counts individual members with a spouse set, whether or not
// the spouse lives in the same household.
func Summarize(h model.Household) Aggregate {
	a := Aggregate{Members: len(h.Members)}
	for _, m := range h.Members {
		a.Income += m.AnnualIncome
		if m.HasSpouse() {
			a.SpouseCount++
		}
	}
	return a
}

// AgeCutoff returns the birth date boundary for an age of the given years,
// counted back from now's calendar day. years is clamped to [0, AgeLimit].
func AgeCutoff(now time.Time, years int) time.Time {
	years = max(0, min(years, AgeLimit))
	return model.DateOf(now).AddDate(0, 0, -years*daysPerYear)
}

// Match reports whether h satisfies every constraint in c as of now.
func Match(h model.Household, c Criteria, now time.Time) bool {
	return match(h, Summarize(h), c, now)
}

func match(h model.Household, agg Aggregate, c Criteria, now time.Time) bool {
	// A household without members has no income total at all, so neither
	// income bound can hold.
	if c.MinIncome != nil && (agg.Members == 0 || agg.Income <= *c.MinIncome) {
		return false
	}
	if c.MaxIncome != nil && (agg.Members == 0 || agg.Income >= *c.MaxIncome) {
		return false
	}

	if c.MinAge != nil {
		cutoff := AgeCutoff(now, *c.MinAge)
		if !anyMember(h, func(m model.FamilyMember) bool { return m.DOB.Before(cutoff) }) {
			return false
		}
	}
	if c.MaxAge != nil {
		cutoff := AgeCutoff(now, *c.MaxAge)
		if !anyMember(h, func(m model.FamilyMember) bool { return m.DOB.After(cutoff) }) {
			return false
		}
	}

	if c.WithSpouse != nil {
		hasPair := agg.SpouseCount >= 2
		if hasPair != *c.WithSpouse {
			return false
		}
	}

	if c.HousingType != "" && !strings.EqualFold(h.HousingType, c.HousingType) {
		return false
	}
	return true
}

func anyMember(h model.Household, pred func(model.FamilyMember) bool) bool {
	for _, m := range h.Members {
		if pred(m) {
			return true
		}
	}
	return false
}

// Filter returns the households matching c, preserving input order.
func Filter(households []model.Household, c Criteria, now time.Time) []model.Household {
	matched := make([]model.Household, 0, len(households))
	for _, h := range households {
		if Match(h, c, now) {
			matched = append(matched, h)
		}
	}
	return matched
}
