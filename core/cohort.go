package core

import "strings"

// Cohort is a user interest category drawn from a closed enumeration.
type Cohort string

const (
	CohortSports        Cohort = "Sports"
	CohortTechnology    Cohort = "Technology"
	CohortFinance       Cohort = "Finance"
	CohortEntertainment Cohort = "Entertainment"
	CohortFashion       Cohort = "Fashion"
	CohortPolitics      Cohort = "Politics"
	CohortFood          Cohort = "Food"
	CohortHealth        Cohort = "Health"
	CohortEducation     Cohort = "Education"

	// CohortUnknown is assigned when an interest cannot be classified.
	CohortUnknown Cohort = "unknown"
)

// Cohorts lists the valid cohort labels, excluding CohortUnknown.
var Cohorts = []Cohort{
	CohortSports,
	CohortTechnology,
	CohortFinance,
	CohortEntertainment,
	CohortFashion,
	CohortPolitics,
	CohortFood,
	CohortHealth,
	CohortEducation,
}

// ParseCohort maps free text onto the enumeration, ignoring case and
// surrounding whitespace or punctuation. Anything unrecognized is CohortUnknown.
func ParseCohort(s string) Cohort {
	s = strings.Trim(strings.TrimSpace(s), ".,!?;:\"'`*")
	for _, c := range Cohorts {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CohortUnknown
}

// ParseCohortFilter maps a query filter onto the enumeration like ParseCohort,
// except that an unrecognized label is returned trimmed but otherwise as given
// so it matches no profile.
func ParseCohortFilter(s string) Cohort {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, string(CohortUnknown)) {
		return CohortUnknown
	}
	if c := ParseCohort(s); c != CohortUnknown {
		return c
	}
	return Cohort(s)
}

// IsValid reports whether c is an enumeration member or CohortUnknown.
func (c Cohort) IsValid() bool {
	if c == CohortUnknown {
		return true
	}
	for _, known := range Cohorts {
		if c == known {
			return true
		}
	}
	return false
}

func (c Cohort) String() string {
	return string(c)
}
