package model

import (
	"fmt"
	"time"
)

// Building types of the closed set accepted in ParameterResult.BuildingType
const (
	BuildingResidential = "RESIDENTIAL"
	BuildingApartment   = "APARTMENT"
	BuildingHouse       = "HOUSE"
	BuildingOffice      = "OFFICE"
	BuildingCommercial  = "COMMERCIAL"
	BuildingRetail      = "RETAIL"
	BuildingIndustrial  = "INDUSTRIAL"
	BuildingEducational = "EDUCATIONAL"
	BuildingMedical     = "MEDICAL"
	BuildingCultural    = "CULTURAL"
	BuildingMixedUse    = "MIXED_USE"
)

// BuildingTypes lists the closed set of building types
var BuildingTypes = []string{
	BuildingResidential,
	BuildingApartment,
	BuildingHouse,
	BuildingOffice,
	BuildingCommercial,
	BuildingRetail,
	BuildingIndustrial,
	BuildingEducational,
	BuildingMedical,
	BuildingCultural,
	BuildingMixedUse,
}

// ParameterResult is the canonical design-parameter object
type ParameterResult struct {
	BuildingType      string            `json:"buildingType"`
	TotalArea         Area              `json:"totalArea"`
	Rooms             []Room            `json:"rooms"`
	Style             Style             `json:"style"`
	Location          Location          `json:"location"`
	Constraints       Constraints       `json:"constraints"`
	ExtractedFeatures ExtractedFeatures `json:"extractedFeatures"`
	Confidence        float64           `json:"confidence"`
	SuggestedName     string            `json:"suggestedName"`
	Description       string            `json:"description"`
	ProcessedAt       time.Time         `json:"processedAt"`
}

// Area is a measured floor area
type Area struct {
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
}

// Room describes one room group of the program
type Room struct {
	Type         string   `json:"type"`
	Count        int      `json:"count"`
	Area         float64  `json:"area"`
	Orientation  string   `json:"orientation,omitempty"`
	Requirements []string `json:"requirements"`
}

// Style holds stylistic preferences
type Style struct {
	Architectural string   `json:"architectural"`
	Interior      string   `json:"interior"`
	Keywords      []string `json:"keywords"`
	Colors        []string `json:"colors"`
	Materials     []string `json:"materials"`
}

// Location describes the site
type Location struct {
	Address      string   `json:"address"`
	Region       string   `json:"region"`
	Climate      string   `json:"climate"`
	Orientation  string   `json:"orientation"`
	Surroundings []string `json:"surroundings"`
}

// Constraints holds budget and regulatory limits
type Constraints struct {
	Budget       float64  `json:"budget"`
	Currency     string   `json:"currency"`
	MaxFloors    int      `json:"maxFloors"`
	Regulations  []string `json:"regulations"`
	Requirements []string `json:"requirements"`
}

// ExtractedFeatures lists raw signals recognized in the input
type ExtractedFeatures struct {
	Keywords       []string `json:"keywords"`
	Orientations   []string `json:"orientations"`
	Spaces         []string `json:"spaces"`
	Amenities      []string `json:"amenities"`
	Sustainability []string `json:"sustainability"`
}

// Validate checks the schema-completeness invariant: every array is non-nil and
// every confidence value lies in [0,1].
func (p *ParameterResult) Validate() error {
	if p == nil {
		return fmt.Errorf("parameter result is nil")
	}
	if p.BuildingType == "" {
		return fmt.Errorf("buildingType is empty")
	}
	if !inUnitRange(p.Confidence) {
		return fmt.Errorf("confidence %v out of range", p.Confidence)
	}
	if !inUnitRange(p.TotalArea.Confidence) {
		return fmt.Errorf("totalArea.confidence %v out of range", p.TotalArea.Confidence)
	}
	if p.TotalArea.Value < 0 {
		return fmt.Errorf("totalArea.value %v is negative", p.TotalArea.Value)
	}
	if p.Rooms == nil {
		return fmt.Errorf("rooms is nil")
	}
	for i, r := range p.Rooms {
		if r.Count < 1 {
			return fmt.Errorf("rooms[%d].count %d below 1", i, r.Count)
		}
		if r.Area < 0 {
			return fmt.Errorf("rooms[%d].area %v is negative", i, r.Area)
		}
		if r.Requirements == nil {
			return fmt.Errorf("rooms[%d].requirements is nil", i)
		}
	}
	lists := map[string][]string{
		"style.keywords":                   p.Style.Keywords,
		"style.colors":                     p.Style.Colors,
		"style.materials":                  p.Style.Materials,
		"location.surroundings":            p.Location.Surroundings,
		"constraints.regulations":          p.Constraints.Regulations,
		"constraints.requirements":         p.Constraints.Requirements,
		"extractedFeatures.keywords":       p.ExtractedFeatures.Keywords,
		"extractedFeatures.orientations":   p.ExtractedFeatures.Orientations,
		"extractedFeatures.spaces":         p.ExtractedFeatures.Spaces,
		"extractedFeatures.amenities":      p.ExtractedFeatures.Amenities,
		"extractedFeatures.sustainability": p.ExtractedFeatures.Sustainability,
	}
	for name, list := range lists {
		if list == nil {
			return fmt.Errorf("%s is nil", name)
		}
	}
	if p.ProcessedAt.IsZero() {
		return fmt.Errorf("processedAt is not set")
	}
	return nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
