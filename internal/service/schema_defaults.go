package service

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed schema_defaults.yaml
var builtinSchemaDefaults []byte

// Field types of specialist schemas
const (
	FieldString     = "string"
	FieldNumber     = "number"
	FieldInteger    = "integer"
	FieldBoolean    = "boolean"
	FieldStringList = "stringList"
	FieldNumberMap  = "numberMap"
	FieldEnum       = "enum"
)

// FieldSpec describes one finding of a specialist schema
type FieldSpec struct {
	Type    string   `yaml:"type"`
	Default any      `yaml:"default"`
	Min     *float64 `yaml:"min"`
	Max     *float64 `yaml:"max"`
	Enum    []string `yaml:"enum"`
}

// ParameterDefaults holds defaults and ranges of the parameters schema
type ParameterDefaults struct {
	BuildingType          string             `yaml:"buildingType"`
	Confidence            float64            `yaml:"confidence"`
	AreaUnit              string             `yaml:"areaUnit"`
	AreaConfidence        float64            `yaml:"areaConfidence"`
	MaxTotalArea          float64            `yaml:"maxTotalArea"`
	Currency              string             `yaml:"currency"`
	MaxFloors             int                `yaml:"maxFloors"`
	MaxRoomCount          int                `yaml:"maxRoomCount"`
	MaxRoomArea           float64            `yaml:"maxRoomArea"`
	SuggestedNameMaxRunes int                `yaml:"suggestedNameMaxRunes"`
	DescriptionMaxRunes   int                `yaml:"descriptionMaxRunes"`
	ListItemMaxRunes      int                `yaml:"listItemMaxRunes"`
	ArchitecturalStyle    string             `yaml:"architecturalStyle"`
	InteriorStyle         string             `yaml:"interiorStyle"`
	Climate               string             `yaml:"climate"`
	RoomAreas             map[string]float64 `yaml:"roomAreas"`
}

// CommonDefaults holds defaults shared by every schema
type CommonDefaults struct {
	Confidence             float64 `yaml:"confidence"`
	SummaryMaxRunes        int     `yaml:"summaryMaxRunes"`
	RecommendationMaxRunes int     `yaml:"recommendationMaxRunes"`
	MaxRecommendations     int     `yaml:"maxRecommendations"`
}

// SchemaTable is the per-field default table consulted by the normalizer
type SchemaTable struct {
	Parameters ParameterDefaults               `yaml:"parameters"`
	Common     CommonDefaults                  `yaml:"common"`
	Schemas    map[string]map[string]FieldSpec `yaml:"schemas"`
}

// DefaultSchemaTable returns the built-in table
func DefaultSchemaTable() *SchemaTable {
	var t SchemaTable
	if err := yaml.Unmarshal(builtinSchemaDefaults, &t); err != nil {
		// the embedded file is part of the build
		panic(fmt.Sprintf("invalid embedded schema defaults: %v", err))
	}
	return &t
}

// LoadSchemaTable returns the built-in table overlaid with the YAML file at path.
// An empty path returns the built-in table.
func LoadSchemaTable(path string) (*SchemaTable, error) {
	t := DefaultSchemaTable()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema defaults %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to parse schema defaults %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema defaults %s: %w", path, err)
	}
	return t, nil
}

// Validate rejects tables the normalizer could not honor
func (t *SchemaTable) Validate() error {
	if t.Parameters.Confidence < 0 || t.Parameters.Confidence > 1 {
		return fmt.Errorf("parameters.confidence %v out of [0,1]", t.Parameters.Confidence)
	}
	if t.Common.Confidence < 0 || t.Common.Confidence > 1 {
		return fmt.Errorf("common.confidence %v out of [0,1]", t.Common.Confidence)
	}
	for schema, fields := range t.Schemas {
		for name, f := range fields {
			switch f.Type {
			case FieldString, FieldNumber, FieldInteger, FieldBoolean, FieldStringList, FieldNumberMap:
			case FieldEnum:
				if len(f.Enum) == 0 {
					return fmt.Errorf("%s.%s: enum without values", schema, name)
				}
			default:
				return fmt.Errorf("%s.%s: unknown field type %q", schema, name, f.Type)
			}
			if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
				return fmt.Errorf("%s.%s: min above max", schema, name)
			}
		}
	}
	return nil
}

// SchemaNames lists every schema kind the table knows, sorted
func (t *SchemaTable) SchemaNames() []string {
	names := []string{"parameters"}
	for name := range t.Schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
