package searchcredit

// Dimension is one premium search refinement. Each costs one credit the first
// time it is applied within a search session.
type Dimension string

const (
	DimensionPlatforms       Dimension = "platforms"
	DimensionABCRequired     Dimension = "abc_required"
	DimensionHUDKeyRequired  Dimension = "hud_key_required"
	DimensionInspectionTypes Dimension = "inspection_types"
)

// Dimensions lists every premium dimension in charge order.
var Dimensions = []Dimension{
	DimensionPlatforms,
	DimensionABCRequired,
	DimensionHUDKeyRequired,
	DimensionInspectionTypes,
}

// CreditsPerDimension is the price of unlocking one premium dimension.
const CreditsPerDimension = 1

// Filters is a vendor's field-rep search request. State and Counties are free;
// the remaining fields are premium.
type Filters struct {
	State    string   `json:"state,omitempty" validate:"us_state"`
	Counties []string `json:"counties,omitempty" validate:"max=50,dive,min=1,max=80"`
	Keyword  string   `json:"keyword,omitempty" validate:"max=100"`

	Platforms       []string `json:"platforms,omitempty" validate:"max=20,dive,filter_code"`
	ABCRequired     *bool    `json:"abc_required,omitempty"`
	HUDKeyRequired  *bool    `json:"hud_key_required,omitempty"`
	InspectionTypes []string `json:"inspection_types,omitempty" validate:"max=20,dive,filter_code"`
}

// Classify returns the premium dimensions f activates, in charge order.
// A list dimension is active when non-empty, a flag only when strictly true.
func Classify(f Filters) []Dimension {
	active := make([]Dimension, 0, len(Dimensions))
	if len(f.Platforms) > 0 {
		active = append(active, DimensionPlatforms)
	}
	if f.ABCRequired != nil && *f.ABCRequired {
		active = append(active, DimensionABCRequired)
	}
	if f.HUDKeyRequired != nil && *f.HUDKeyRequired {
		active = append(active, DimensionHUDKeyRequired)
	}
	if len(f.InspectionTypes) > 0 {
		active = append(active, DimensionInspectionTypes)
	}
	return active
}

// Valid reports whether d is a known premium dimension.
func (d Dimension) Valid() bool {
	for _, known := range Dimensions {
		if d == known {
			return true
		}
	}
	return false
}
