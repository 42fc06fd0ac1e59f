package model

// Category names one of the reference tables that households and members
// point into. All categories share the reference_values table.
type Category string

const (
	CategoryHousingType    Category = "housing_type"
	CategoryGender         Category = "gender"
	CategoryMaritalStatus  Category = "marital_status"
	CategoryOccupationType Category = "occupation_type"
)

// Categories lists every known category in display order.
var Categories = []Category{
	CategoryHousingType,
	CategoryGender,
	CategoryMaritalStatus,
	CategoryOccupationType,
}

// ParseCategory accepts the category name with either underscores or dashes.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s || c.Slug() == s {
			return c, true
		}
	}
	return "", false
}

// Slug returns the URL form of the category, e.g. "housing-type".
func (c Category) Slug() string {
	b := []byte(c)
	for i := range b {
		if b[i] == '_' {
			b[i] = '-'
		}
	}
	return string(b)
}

// Reference is a named value in one category, unique by name within it.
type Reference struct {
	ID       int64    `json:"id"`
	Category Category `json:"category"`
	Name     string   `json:"name"`
}

func (r Reference) String() string {
	return r.Name
}
