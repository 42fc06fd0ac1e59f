package model

import "time"

type FamilyMember struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	DOB            Date      `json:"dob"`
	Gender         string    `json:"gender"`
	MaritalStatus  string    `json:"marital_status"`
	OccupationType string    `json:"occupation_type"`
	AnnualIncome   int64     `json:"annual_income"`
	SpouseID       *int64    `json:"-"`
	Spouse         *string   `json:"spouse"`
	HouseholdID    *int64    `json:"household"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (m FamilyMember) String() string {
	return m.Name
}

func (m FamilyMember) HasSpouse() bool {
	return m.SpouseID != nil
}

// MemberParams carries the resolved column values for inserting a family member.
type MemberParams struct {
	Name             string
	DOB              Date
	GenderID         int64
	MaritalStatusID  int64
	OccupationTypeID int64
	AnnualIncome     int64
	SpouseID         *int64
	HouseholdID      *int64
}

// LinkSpouse points member at candidate. If candidate has no spouse yet it is
// pointed back at member; an existing link on candidate is never replaced and
// the back-link does not propagate any further. A nil candidate clears
// member's link only. It reports whether the reverse link was written.
func LinkSpouse(member, candidate *FamilyMember) bool {
	if candidate == nil {
		member.SpouseID = nil
		member.Spouse = nil
		return false
	}

	id, name := candidate.ID, candidate.Name
	member.SpouseID = &id
	member.Spouse = &name

	if candidate.SpouseID != nil {
		return false
	}
	mid, mname := member.ID, member.Name
	candidate.SpouseID = &mid
	candidate.Spouse = &mname
	return true
}
