package model

// Resource identifies a commodity balanced by the dispatch model.
type Resource string

const (
	Electricity Resource = "electricity"
	Hydrogen    Resource = "hydrogen"
	Heat        Resource = "heat"
	Diesel      Resource = "diesel"
	Naphtha     Resource = "naphtha"
	JetFuel     Resource = "jet_fuel"
	CO2         Resource = "co2"
)

// String returns the resource key.
func (r Resource) String() string { return string(r) }

// Tracker distinguishes the role of an activity vector for a component and
// resource pair.
type Tracker string

const (
	TrackerProduction Tracker = "production"
	TrackerCharge     Tracker = "charge"
	TrackerDischarge  Tracker = "discharge"
	TrackerLevel      Tracker = "level"
)

// IsFlow reports whether the tracker records a rate that participates in
// resource conservation. Levels are state and do not.
func (t Tracker) IsFlow() bool {
	return t != TrackerLevel
}
