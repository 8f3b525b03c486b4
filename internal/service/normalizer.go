package service

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"archpipe/internal/model"
	"archpipe/internal/utils"
)

const titleMaxRunes = 200

var leadingNumberRegex = regexp.MustCompile(`^\s*([-+]?\d[\d,]*(?:\.\d+)?)\s*(.*)$`)

// Normalizer maps parsed but untrusted payloads onto the canonical schemas.
// It never fails: any input, including nil, yields a schema-complete result.
type Normalizer struct {
	table *SchemaTable
	now   func() time.Time
}

// NewNormalizer creates a normalizer backed by the given default table
func NewNormalizer(table *SchemaTable) *Normalizer {
	if table == nil {
		table = DefaultSchemaTable()
	}
	return &Normalizer{table: table, now: time.Now}
}

// Table returns the default table in use
func (n *Normalizer) Table() *SchemaTable { return n.table }

// Normalize converts a payload into the canonical result of the schema kind
func (n *Normalizer) Normalize(payload any, schema string) model.CanonicalResult {
	return n.NormalizeWithBase(payload, schema, nil)
}

// NormalizeWithBase is Normalize where specialist payloads that carry no
// "parameters" object inherit base instead of the default parameters
func (n *Normalizer) NormalizeWithBase(payload any, schema string, base *model.ParameterResult) (out model.CanonicalResult) {
	defer func() {
		if r := recover(); r != nil {
			out = n.emptyResult(schema)
		}
	}()

	obj := asObject(payload)
	common := n.table.Common
	out.Schema = schema

	if schema == model.SchemaParameters {
		out.Parameters = n.normalizeParameters(obj)
		out.Confidence = out.Parameters.Confidence
		out.Findings = map[string]any{}
	} else {
		switch {
		case obj["parameters"] != nil:
			out.Parameters = n.normalizeParameters(asObject(obj["parameters"]))
		case base != nil:
			out.Parameters = n.normalizeParameters(toObject(base))
		default:
			out.Parameters = n.normalizeParameters(nil)
		}
		out.Findings = n.normalizeFindings(obj, schema)
		out.Confidence = clamp(toNumber(obj["confidence"], common.Confidence), 0, 1)
	}

	out.Title = utils.TruncateRunes(toString(obj["title"], ""), titleMaxRunes)
	out.Summary = utils.TruncateRunes(toString(obj["summary"], ""), common.SummaryMaxRunes)
	out.Recommendations = limitList(
		toStringList(obj["recommendations"], common.RecommendationMaxRunes),
		common.MaxRecommendations,
	)
	return out
}

// NormalizeParameters re-applies the parameter rules to an existing result,
// used for fallback output and caller-supplied parameters
func (n *Normalizer) NormalizeParameters(p *model.ParameterResult) model.ParameterResult {
	if p == nil {
		return n.normalizeParameters(nil)
	}
	return n.normalizeParameters(toObject(p))
}

// DefaultParameters returns the fully populated default parameter object
func (n *Normalizer) DefaultParameters() model.ParameterResult {
	p := n.defaultParameters()
	p.ProcessedAt = n.now().UTC()
	return p
}

// Skeleton returns the JSON shape a provider must fill for the schema, with
// every key present and set to its default
func (n *Normalizer) Skeleton(schema string) map[string]any {
	if schema == model.SchemaParameters {
		skel := toObject(n.defaultParameters())
		delete(skel, "processedAt")
		skel["rooms"] = []any{map[string]any{
			"type": "", "count": 1, "area": 0, "orientation": "", "requirements": []any{},
		}}
		return skel
	}
	findings := map[string]any{}
	for name, f := range n.table.Schemas[schema] {
		findings[name] = n.coerceField(nil, f)
	}
	return map[string]any{
		"title":           "",
		"summary":         "",
		"recommendations": []any{},
		"confidence":      n.table.Common.Confidence,
		"findings":        findings,
	}
}

func (n *Normalizer) emptyResult(schema string) model.CanonicalResult {
	findings := map[string]any{}
	for name, f := range n.table.Schemas[schema] {
		findings[name] = defaultFieldValue(f)
	}
	return model.CanonicalResult{
		Schema:          schema,
		Parameters:      n.DefaultParameters(),
		Recommendations: []string{},
		Findings:        findings,
		Confidence:      0,
	}
}

func (n *Normalizer) defaultParameters() model.ParameterResult {
	d := n.table.Parameters
	return model.ParameterResult{
		BuildingType: d.BuildingType,
		TotalArea:    model.Area{Value: 0, Unit: d.AreaUnit, Confidence: 0},
		Rooms:        []model.Room{},
		Style: model.Style{
			Architectural: d.ArchitecturalStyle,
			Interior:      d.InteriorStyle,
			Keywords:      []string{},
			Colors:        []string{},
			Materials:     []string{},
		},
		Location: model.Location{
			Climate:      d.Climate,
			Surroundings: []string{},
		},
		Constraints: model.Constraints{
			Currency:     d.Currency,
			Regulations:  []string{},
			Requirements: []string{},
		},
		ExtractedFeatures: model.ExtractedFeatures{
			Keywords:       []string{},
			Orientations:   []string{},
			Spaces:         []string{},
			Amenities:      []string{},
			Sustainability: []string{},
		},
		Confidence: d.Confidence,
	}
}

func (n *Normalizer) normalizeParameters(obj map[string]any) model.ParameterResult {
	d := n.table.Parameters
	p := n.defaultParameters()
	p.ProcessedAt = n.now().UTC()
	if obj == nil {
		return p
	}
	item := d.ListItemMaxRunes

	p.BuildingType = n.buildingType(obj["buildingType"])
	p.TotalArea = n.area(obj["totalArea"])
	p.Rooms = n.rooms(obj["rooms"])

	if m, ok := obj["style"].(map[string]any); ok {
		p.Style = model.Style{
			Architectural: utils.TruncateRunes(toString(m["architectural"], d.ArchitecturalStyle), item),
			Interior:      utils.TruncateRunes(toString(m["interior"], d.InteriorStyle), item),
			Keywords:      toStringList(m["keywords"], item),
			Colors:        toStringList(m["colors"], item),
			Materials:     toStringList(m["materials"], item),
		}
	}
	if m, ok := obj["location"].(map[string]any); ok {
		p.Location = model.Location{
			Address:      utils.TruncateRunes(toString(m["address"], ""), item),
			Region:       utils.TruncateRunes(toString(m["region"], ""), item),
			Climate:      utils.TruncateRunes(toString(m["climate"], d.Climate), item),
			Orientation:  utils.TruncateRunes(toString(m["orientation"], ""), item),
			Surroundings: toStringList(m["surroundings"], item),
		}
	}
	if m, ok := obj["constraints"].(map[string]any); ok {
		p.Constraints = model.Constraints{
			Budget:       clamp(toNumber(m["budget"], 0), 0, math.MaxFloat64),
			Currency:     toString(m["currency"], d.Currency),
			MaxFloors:    int(clamp(math.Round(toNumber(m["maxFloors"], 0)), 0, float64(d.MaxFloors))),
			Regulations:  toStringList(m["regulations"], item),
			Requirements: toStringList(m["requirements"], item),
		}
	}
	if m, ok := obj["extractedFeatures"].(map[string]any); ok {
		p.ExtractedFeatures = model.ExtractedFeatures{
			Keywords:       toStringList(m["keywords"], item),
			Orientations:   toStringList(m["orientations"], item),
			Spaces:         toStringList(m["spaces"], item),
			Amenities:      toStringList(m["amenities"], item),
			Sustainability: toStringList(m["sustainability"], item),
		}
	}

	p.Confidence = clamp(toNumber(obj["confidence"], d.Confidence), 0, 1)
	p.SuggestedName = utils.TruncateRunes(toString(obj["suggestedName"], ""), d.SuggestedNameMaxRunes)
	p.Description = utils.TruncateRunes(toString(obj["description"], ""), d.DescriptionMaxRunes)
	return p
}

func (n *Normalizer) buildingType(v any) string {
	raw := toString(v, "")
	if raw == "" {
		return n.table.Parameters.BuildingType
	}
	upper := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(raw))
	if isBuildingType(upper) {
		return upper
	}
	if mapped := utils.NormalizeTerm(raw, utils.BuildingTypeTerms); isBuildingType(mapped) {
		return mapped
	}
	return n.table.Parameters.BuildingType
}

func isBuildingType(s string) bool {
	for _, t := range model.BuildingTypes {
		if s == t {
			return true
		}
	}
	return false
}

func (n *Normalizer) area(v any) model.Area {
	d := n.table.Parameters
	a := model.Area{Unit: d.AreaUnit}
	switch x := v.(type) {
	case map[string]any:
		a.Value = clamp(toNumber(x["value"], 0), 0, d.MaxTotalArea)
		a.Unit = normalizeAreaUnit(toString(x["unit"], ""), d.AreaUnit)
		a.Confidence = clamp(toNumber(x["confidence"], d.AreaConfidence), 0, 1)
	case nil:
	default:
		value, unit, ok := splitNumber(x)
		if ok {
			a.Value = clamp(value, 0, d.MaxTotalArea)
			a.Unit = normalizeAreaUnit(unit, d.AreaUnit)
			a.Confidence = d.AreaConfidence
		}
	}
	return a
}

func (n *Normalizer) rooms(v any) []model.Room {
	items, ok := v.([]any)
	if !ok {
		return []model.Room{}
	}
	d := n.table.Parameters
	rooms := make([]model.Room, 0, len(items))
	for _, it := range items {
		var r model.Room
		switch x := it.(type) {
		case map[string]any:
			name := toString(x["type"], toString(x["name"], ""))
			r.Type = utils.NormalizeTerm(name, utils.RoomTerms)
			if r.Type == "" {
				r.Type = "room"
			}
			r.Count = int(clamp(math.Round(toNumber(x["count"], 1)), 1, float64(d.MaxRoomCount)))
			r.Area = clamp(toNumber(x["area"], d.RoomAreas[r.Type]), 0, d.MaxRoomArea)
			r.Orientation = utils.TruncateRunes(toString(x["orientation"], ""), d.ListItemMaxRunes)
			r.Requirements = toStringList(x["requirements"], d.ListItemMaxRunes)
		case string:
			r.Type = utils.NormalizeTerm(x, utils.RoomTerms)
			if r.Type == "" {
				continue
			}
			r.Count = 1
			r.Area = d.RoomAreas[r.Type]
			r.Requirements = []string{}
		default:
			continue
		}
		rooms = append(rooms, r)
	}
	return rooms
}

func (n *Normalizer) normalizeFindings(obj map[string]any, schema string) map[string]any {
	spec := n.table.Schemas[schema]
	out := make(map[string]any, len(spec))
	nested, _ := obj["findings"].(map[string]any)
	for name, f := range spec {
		raw, ok := nested[name]
		if !ok {
			raw = obj[name]
		}
		out[name] = n.coerceField(raw, f)
	}
	return out
}

func (n *Normalizer) coerceField(raw any, f FieldSpec) any {
	item := n.table.Parameters.ListItemMaxRunes
	switch f.Type {
	case FieldString:
		return utils.TruncateRunes(toString(raw, toString(f.Default, "")), n.table.Common.SummaryMaxRunes)
	case FieldNumber:
		return clampSpec(toNumber(raw, toNumber(f.Default, 0)), f)
	case FieldInteger:
		return int(math.Round(clampSpec(math.Round(toNumber(raw, toNumber(f.Default, 0))), f)))
	case FieldBoolean:
		return toBool(raw, toBool(f.Default, false))
	case FieldStringList:
		return toStringList(raw, item)
	case FieldNumberMap:
		return toNumberMap(raw)
	case FieldEnum:
		s := strings.ToLower(strings.Join(strings.Fields(toString(raw, "")), "_"))
		for _, e := range f.Enum {
			if s == e {
				return s
			}
		}
		return toString(f.Default, f.Enum[0])
	default:
		return nil
	}
}

func defaultFieldValue(f FieldSpec) any {
	switch f.Type {
	case FieldStringList:
		return []string{}
	case FieldNumberMap:
		return map[string]float64{}
	default:
		return f.Default
	}
}

func clampSpec(v float64, f FieldSpec) float64 {
	lo, hi := math.Inf(-1), math.Inf(1)
	if f.Min != nil {
		lo = *f.Min
	}
	if f.Max != nil {
		hi = *f.Max
	}
	return clamp(v, lo, hi)
}

// clamp bounds v to [lo,hi]; NaN becomes lo
func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

func asObject(v any) map[string]any {
	switch x := v.(type) {
	case map[string]any:
		return x
	case *utils.ParsedPayload:
		if m, ok := x.Object(); ok {
			return m
		}
	case []any:
		for _, it := range x {
			if m, ok := it.(map[string]any); ok {
				return m
			}
		}
	}
	return map[string]any{}
}

// toObject converts a typed value into its generic JSON object form
func toObject(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

func toString(v any, def string) string {
	switch x := v.(type) {
	case nil:
		return def
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return def
		}
		return s
	case float64, int, int64, bool, json.Number:
		return fmt.Sprint(x)
	default:
		return def
	}
}

func toNumber(v any, def float64) float64 {
	switch x := v.(type) {
	case nil:
		return def
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return def
		}
		return x
	case string:
		if value, _, ok := splitNumber(x); ok {
			return value
		}
		return def
	case map[string]any, []any:
		return def
	}
	var out float64
	if err := mapstructure.WeakDecode(v, &out); err != nil || math.IsNaN(out) || math.IsInf(out, 0) {
		return def
	}
	return out
}

func toBool(v any, def bool) bool {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y", "예", "네":
			return true
		case "no", "n", "아니오", "아니요":
			return false
		}
	}
	var out bool
	if err := mapstructure.WeakDecode(v, &out); err != nil {
		return def
	}
	return out
}

// toStringList returns the non-empty string items of an array. Anything that is
// not an array yields an empty, non-nil list.
func toStringList(v any, maxRunes int) []string {
	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case []string:
		items = make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
	default:
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := toString(it, ""); s != "" {
			out = append(out, utils.TruncateRunes(s, maxRunes))
		}
	}
	return out
}

func toNumberMap(v any) map[string]float64 {
	out := map[string]float64{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, raw := range m {
		f := toNumber(raw, math.NaN())
		if !math.IsNaN(f) {
			out[k] = f
		}
	}
	return out
}

func limitList(list []string, limit int) []string {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

// splitNumber parses a leading number such as "30", "1,200.5" or "30평" and
// returns the remaining text as unit
func splitNumber(v any) (float64, string, bool) {
	switch x := v.(type) {
	case float64:
		return x, "", !math.IsNaN(x) && !math.IsInf(x, 0)
	case string:
		m := leadingNumberRegex.FindStringSubmatch(utils.FoldWidth(x))
		if m == nil {
			return 0, "", false
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			return 0, "", false
		}
		return f, strings.TrimSpace(m[2]), true
	}
	return 0, "", false
}

func normalizeAreaUnit(unit, def string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch u {
	case "":
		return def
	case "m2", "m²", "㎡", "sqm", "sq m", "sq.m", "제곱미터", "square meters", "square metres", "m^2":
		return "m2"
	case "평", "pyeong", "py":
		return "평"
	case "sqft", "sq ft", "sq.ft", "ft2", "ft²", "square feet":
		return "sqft"
	}
	return u
}
