package model

import (
	"fmt"
	"time"
)

// Household is a single physical housing unit and the members living in it.
type Household struct {
	ID          int64          `json:"id"`
	HousingType string         `json:"housing_type"`
	Members     []FamilyMember `json:"members"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (h Household) String() string {
	return fmt.Sprintf("Household %d", h.ID)
}

// HouseholdUpdate is a resolved partial update. Members are appended.
type HouseholdUpdate struct {
	HousingTypeID *int64
	Members       []MemberParams
}

// Member returns the member with the given name, or nil.
func (h *Household) Member(name string) *FamilyMember {
	for i := range h.Members {
		if h.Members[i].Name == name {
			return &h.Members[i]
		}
	}
	return nil
}
