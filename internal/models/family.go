package models

// Family identifies one of the record families the engine tracks.
// Each family has its own record table, session table and breadcrumb slot.
type Family string

const (
	FamilyPregnancy Family = "pregnancy"
	FamilyWeight    Family = "weight"
	FamilyHeat      Family = "heat"
)

// Families lists every known family in a stable order.
func Families() []Family {
	return []Family{FamilyPregnancy, FamilyWeight, FamilyHeat}
}

// Valid reports whether f names a known record family.
func (f Family) Valid() bool {
	switch f {
	case FamilyPregnancy, FamilyWeight, FamilyHeat:
		return true
	}
	return false
}

func (f Family) String() string {
	return string(f)
}
