package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"archpipe/internal/model"
	"archpipe/internal/utils"
)

var (
	thousandsRegex = regexp.MustCompile(`(\d),(\d{3})\b`)
	areaRegex      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(평|㎡|m²|m2|sqm|sq\.?\s?m\b|제곱미터|square met(?:er|re)s?|sq\.?\s?ft|sqft|square feet|ft²)`)
	floorsRegex    = regexp.MustCompile(`(\d+)\s*(?:층|[- ]?(?:stor(?:e)?ys?|stories|floors?)\b)`)

	eokRegex    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*억(?:\s*(\d+)\s*천(?:만)?)?\s*원?`)
	cheonRegex  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*천만\s*원?`)
	manRegex    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*만\s*원`)
	dollarRegex = regexp.MustCompile(`\$\s*(\d+(?:\.\d+)?)\s*(k|m|million|thousand)?\b|(\d+(?:\.\d+)?)\s*(million|thousand)?\s*(?:dollars|usd)\b`)
	wonRegex    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(million|billion)?\s*(?:won\b|krw\b|원)`)

	countAfterRegex  = regexp.MustCompile(`^[a-z]*\s*(?:[:x×]\s*)?(\d+|하나|한|둘|두|셋|세|넷|네|다섯|여섯)\s*(개|실|칸|rooms?\b)?`)
	countBeforeRegex = regexp.MustCompile(`\b(\d+|one|two|three|four|five|six|seven|eight|nine|ten)[\s-]*$`)
	koreanCountRegex = regexp.MustCompile(`(\d+|한|두|세|네|다섯|여섯)\s*개의\s*$`)
	roomAreaGapRegex = regexp.MustCompile(`^s?(?:\s|[:=]|은|는|이|가|약|of|is|about|around|approx\.?|approximately)*$`)
	areaRoomGapRegex = regexp.MustCompile(`^\s*(?:의)?\s*$`)
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"하나": 1, "한": 1, "둘": 2, "두": 2, "셋": 3, "세": 3,
	"넷": 4, "네": 4, "다섯": 5, "여섯": 6,
}

var buildingTypeLabels = map[string][2]string{
	model.BuildingResidential: {"주거 시설", "Residence"},
	model.BuildingApartment:   {"아파트", "Apartment"},
	model.BuildingHouse:       {"단독주택", "House"},
	model.BuildingOffice:      {"오피스", "Office"},
	model.BuildingCommercial:  {"상업 시설", "Commercial building"},
	model.BuildingRetail:      {"판매 시설", "Retail building"},
	model.BuildingIndustrial:  {"산업 시설", "Industrial building"},
	model.BuildingEducational: {"교육 시설", "Educational building"},
	model.BuildingMedical:     {"의료 시설", "Medical building"},
	model.BuildingCultural:    {"문화 시설", "Cultural building"},
	model.BuildingMixedUse:    {"주상복합", "Mixed-use building"},
}

// FallbackAnalyzer extracts design parameters with local keyword and pattern
// rules only. It performs no I/O.
type FallbackAnalyzer struct {
	table   *SchemaTable
	ceiling float64
	now     func() time.Time
}

// NewFallbackAnalyzer creates an analyzer whose confidence stays below ceiling
func NewFallbackAnalyzer(table *SchemaTable, ceiling float64) *FallbackAnalyzer {
	if table == nil {
		table = DefaultSchemaTable()
	}
	if ceiling <= 0 || ceiling > 1 {
		ceiling = 0.9
	}
	return &FallbackAnalyzer{table: table, ceiling: ceiling, now: time.Now}
}

// Ceiling returns the confidence ceiling
func (f *FallbackAnalyzer) Ceiling() float64 { return f.ceiling }

type span struct{ start, end int }

type areaHit struct {
	span
	value float64
	unit  string
}

// Analyze extracts parameters from the request text
func (f *FallbackAnalyzer) Analyze(req model.DesignRequest) model.ParameterResult {
	d := f.table.Parameters
	p := NewNormalizer(f.table).defaultParameters()
	p.ProcessedAt = f.now().UTC()
	p.Confidence = 0

	text := strings.TrimSpace(req.Text)
	if text == "" {
		if hint := strings.ToUpper(req.BuildingTypeHint); isBuildingType(hint) {
			p.BuildingType = hint
		}
		return p
	}

	s := strings.ToLower(utils.FoldWidth(text))
	for prev := ""; prev != s; {
		prev, s = s, thousandsRegex.ReplaceAllString(s, "$1$2")
	}
	masked := []byte(s)
	categories := 0

	// building type: most alias hits wins, ties by table order
	typeHits := map[string]int{}
	typeMatches := utils.FindTerms(s, utils.BuildingTypeTerms)
	for _, m := range typeMatches {
		typeHits[m.Canonical]++
	}
	best := 0
	for _, term := range utils.BuildingTypeTerms {
		if typeHits[term.Canonical] > best {
			best = typeHits[term.Canonical]
			p.BuildingType = term.Canonical
		}
	}
	if best > 0 {
		categories++
	} else if hint := strings.ToUpper(req.BuildingTypeHint); isBuildingType(hint) {
		p.BuildingType = hint
	}

	// budget
	if budget, currency, sp, ok := findBudget(s); ok {
		p.Constraints.Budget = budget
		p.Constraints.Currency = currency
		blank(masked, sp)
		categories++
	} else if req.Context.Budget != nil && *req.Context.Budget > 0 {
		p.Constraints.Budget = *req.Context.Budget
		if req.Context.Currency != "" {
			p.Constraints.Currency = req.Context.Currency
		}
	}

	// floors
	for _, m := range floorsRegex.FindAllStringSubmatchIndex(s, -1) {
		n, err := strconv.Atoi(s[m[2]:m[3]])
		if err == nil && n > p.Constraints.MaxFloors && n <= d.MaxFloors {
			p.Constraints.MaxFloors = n
		}
		blank(masked, span{m[0], m[1]})
	}

	// areas
	var areas []areaHit
	for _, m := range areaRegex.FindAllStringSubmatchIndex(s, -1) {
		v, err := strconv.ParseFloat(s[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		areas = append(areas, areaHit{
			span:  span{m[0], m[1]},
			value: v,
			unit:  normalizeAreaUnit(s[m[4]:m[5]], d.AreaUnit),
		})
		blank(masked, span{m[0], m[1]})
	}
	maskedText := string(masked)

	clauses := splitClauses(s)
	roomMatches := utils.FindTerms(s, utils.RoomTerms)
	orientMatches := utils.FindTerms(s, utils.OrientationTerms)

	rooms := map[string]*model.Room{}
	var order []string
	roomFor := func(m utils.Match) *model.Room {
		r, ok := rooms[m.Canonical]
		if !ok {
			r = &model.Room{Type: m.Canonical, Count: 1, Requirements: []string{}}
			rooms[m.Canonical] = r
			order = append(order, m.Canonical)
		}
		return r
	}
	for _, m := range roomMatches {
		r := roomFor(m)
		if n, ok := roomCount(maskedText, m); ok && n > r.Count {
			r.Count = min(n, d.MaxRoomCount)
		}
	}

	// an area adjacent to a room name belongs to the room, the first other one is the total
	total := -1
	for i, a := range areas {
		if m, ok := adjacentRoom(s, a.span, roomMatches); ok {
			r := rooms[m.Canonical]
			if r.Area == 0 {
				r.Area = clamp(toSquareMeters(a.value, a.unit), 0, d.MaxRoomArea)
			}
			continue
		}
		if total < 0 {
			total = i
		}
	}
	if total >= 0 {
		p.TotalArea = model.Area{
			Value:      clamp(areas[total].value, 0, d.MaxTotalArea),
			Unit:       areas[total].unit,
			Confidence: 0.6,
		}
		categories++
	} else if req.Context.SiteArea != nil && *req.Context.SiteArea > 0 {
		p.TotalArea = model.Area{Value: clamp(*req.Context.SiteArea, 0, d.MaxTotalArea), Unit: d.AreaUnit, Confidence: 0.3}
	}

	// orientation: nearest room in the same clause, else the building
	for _, o := range orientMatches {
		if m, ok := nearestInClause(o, roomMatches, clauses); ok {
			if r := rooms[m.Canonical]; r.Orientation == "" {
				r.Orientation = o.Surface
			}
			continue
		}
		if p.Location.Orientation == "" {
			p.Location.Orientation = o.Surface
		}
	}
	if len(orientMatches) > 0 {
		p.ExtractedFeatures.Orientations = utils.Canonicals(orientMatches)
		if p.Location.Orientation == "" {
			p.Location.Orientation = orientMatches[0].Surface
		}
		categories++
	}

	if len(order) > 0 {
		p.Rooms = make([]model.Room, 0, len(order))
		for _, name := range order {
			r := rooms[name]
			if r.Area == 0 {
				r.Area = d.RoomAreas[r.Type]
			}
			p.Rooms = append(p.Rooms, *r)
		}
		p.ExtractedFeatures.Spaces = append([]string{}, order...)
		categories++
	}

	if styles := utils.FindTerms(s, utils.StyleTerms); len(styles) > 0 {
		p.Style.Keywords = utils.Canonicals(styles)
		p.Style.Architectural = p.Style.Keywords[0]
		categories++
	}
	if materials := utils.FindTerms(s, utils.MaterialTerms); len(materials) > 0 {
		p.Style.Materials = utils.Canonicals(materials)
		categories++
	}
	p.Style.Colors = utils.Canonicals(utils.FindTerms(s, utils.ColorTerms))

	if regions := utils.FindTerms(s, utils.RegionTerms); len(regions) > 0 {
		p.Location.Region = regions[0].Canonical
		categories++
	} else if req.Context.Location != "" {
		p.Location.Region = utils.TruncateRunes(req.Context.Location, d.ListItemMaxRunes)
	}

	amenities := utils.FindTerms(s, utils.AmenityTerms)
	sustainability := utils.FindTerms(s, utils.SustainabilityTerms)
	p.ExtractedFeatures.Amenities = utils.Canonicals(amenities)
	p.ExtractedFeatures.Sustainability = utils.Canonicals(sustainability)
	if len(amenities)+len(sustainability) > 0 {
		categories++
	}

	p.ExtractedFeatures.Keywords = surfaceKeywords(typeMatches, roomMatches, orientMatches)
	p.Confidence = f.confidence(categories)
	p.SuggestedName = f.suggestName(p, req.Locale)
	p.Description = utils.TruncateRunes(text, d.DescriptionMaxRunes)
	return p
}

// Payload builds the raw payload for schema from local rules. base, when set,
// replaces the parameters extracted from the request text.
func (f *FallbackAnalyzer) Payload(req model.DesignRequest, schema string, base *model.ParameterResult) map[string]any {
	var params model.ParameterResult
	if base != nil {
		params = *base
	} else {
		params = f.Analyze(req)
	}
	ko := model.NormalizeLocale(req.Locale) == model.LocaleKorean
	conf := min(params.Confidence, f.ceiling-0.05)

	out := map[string]any{
		"parameters": toObject(params),
		"confidence": conf,
	}
	switch schema {
	case model.SchemaParameters:
		out = toObject(params)
		out["confidence"] = params.Confidence
	case model.SchemaMaterials:
		out["title"] = pick(ko, "자재 기본 분석", "Baseline material analysis")
		out["findings"] = map[string]any{
			"primaryMaterials": params.Style.Materials,
			"alternatives":     []string{},
		}
		out["recommendations"] = materialAdvice(params, ko)
	case model.SchemaStructural:
		out["title"] = pick(ko, "구조 기본 분석", "Baseline structural analysis")
		floors := params.Constraints.MaxFloors
		if floors == 0 {
			floors = 1
		}
		out["findings"] = map[string]any{
			"structuralSystem": structuralSystemFor(params),
			"floors":           floors,
			"seismicDesign":    true,
		}
		out["recommendations"] = []string{pick(ko,
			"내진 설계 기준 적용 여부를 구조 기술사와 확인하세요.",
			"Confirm the seismic design criteria with a structural engineer.")}
	case model.SchemaCost:
		out["title"] = pick(ko, "비용 기본 분석", "Baseline cost analysis")
		out["findings"] = map[string]any{
			"totalEstimate": params.Constraints.Budget,
			"currency":      params.Constraints.Currency,
		}
		out["recommendations"] = []string{pick(ko,
			"상세 견적을 위해 마감 수준과 공사 범위를 구체화하세요.",
			"Specify the finish level and scope of work for a detailed estimate.")}
	case model.SchemaValidation:
		issues, warnings := localValidation(params, ko)
		score := 1.0 - 0.25*float64(len(issues)) - 0.1*float64(len(warnings))
		out["title"] = pick(ko, "기본 검증", "Baseline validation")
		out["findings"] = map[string]any{
			"valid":    len(issues) == 0,
			"score":    clamp(score, 0, f.ceiling-0.05),
			"issues":   issues,
			"warnings": warnings,
		}
	case model.SchemaChat:
		out["findings"] = map[string]any{
			"answer": pick(ko,
				"지금은 AI 응답을 받을 수 없어 입력 내용에서 확인된 기본 정보만 안내드립니다. "+describe(params, true),
				"An AI answer is not available right now, so here is what could be read from your input. "+describe(params, false)),
			"suggestions": []string{},
		}
	}
	return out
}

func (f *FallbackAnalyzer) confidence(categories int) float64 {
	c := 0.1 + 0.15*float64(categories)
	return clamp(c, 0, f.ceiling-0.05)
}

func (f *FallbackAnalyzer) suggestName(p model.ParameterResult, locale string) string {
	labels := buildingTypeLabels[p.BuildingType]
	ko := model.NormalizeLocale(locale) == model.LocaleKorean
	var parts []string
	if p.Location.Region != "" {
		parts = append(parts, p.Location.Region)
	}
	if p.TotalArea.Value > 0 {
		parts = append(parts, strconv.FormatFloat(p.TotalArea.Value, 'f', -1, 64)+p.TotalArea.Unit)
	}
	parts = append(parts, pick(ko, labels[0], labels[1]))
	return utils.TruncateRunes(strings.Join(parts, " "), f.table.Parameters.SuggestedNameMaxRunes)
}

// splitClauses returns clause ranges separated by punctuation and newlines.
// A '.' between digits is a decimal point, not a separator.
func splitClauses(s string) []span {
	var out []span
	start := 0
	for i, r := range s {
		sep := false
		switch r {
		case ',', ';', '\n', '!', '?', '。', '，', '·':
			sep = true
		case '.':
			prev, _ := utf8.DecodeLastRuneInString(s[:i])
			next, _ := utf8.DecodeRuneInString(s[i+1:])
			sep = !(unicode.IsDigit(prev) && unicode.IsDigit(next))
		}
		if sep {
			out = append(out, span{start, i})
			start = i + utf8.RuneLen(r)
		}
	}
	return append(out, span{start, len(s)})
}

func clauseOf(pos int, clauses []span) int {
	for i, c := range clauses {
		if pos >= c.start && pos <= c.end {
			return i
		}
	}
	return -1
}

func nearestInClause(o utils.Match, rooms []utils.Match, clauses []span) (utils.Match, bool) {
	ci := clauseOf(o.Start, clauses)
	var best utils.Match
	bestDist := -1
	for _, r := range rooms {
		if clauseOf(r.Start, clauses) != ci {
			continue
		}
		dist := r.Start - o.End
		if dist < 0 {
			dist = o.Start - r.End
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = r, dist
		}
	}
	return best, bestDist >= 0
}

func adjacentRoom(s string, a span, rooms []utils.Match) (utils.Match, bool) {
	for _, r := range rooms {
		if r.End <= a.start && a.start-r.End <= 24 && roomAreaGapRegex.MatchString(s[r.End:a.start]) {
			return r, true
		}
		if r.Start >= a.end && r.Start-a.end <= 6 && areaRoomGapRegex.MatchString(s[a.end:r.Start]) {
			return r, true
		}
	}
	return utils.Match{}, false
}

// roomCount reads a count adjacent to the room name: after it for Korean
// ("침실 2개"), before it for English ("2 bedrooms")
func roomCount(masked string, m utils.Match) (int, bool) {
	after := func() (int, bool) {
		sub := countAfterRegex.FindStringSubmatch(masked[m.End:])
		if sub == nil {
			return 0, false
		}
		if n, err := strconv.Atoi(sub[1]); err == nil {
			return n, n > 0
		}
		if sub[2] == "" {
			return 0, false
		}
		n, ok := numberWords[sub[1]]
		return n, ok
	}
	before := func() (int, bool) {
		re := countBeforeRegex
		if !isASCII(m.Surface) {
			re = koreanCountRegex
		}
		sub := re.FindStringSubmatch(masked[:m.Start])
		if sub == nil {
			return 0, false
		}
		if n, err := strconv.Atoi(sub[1]); err == nil {
			return n, n > 0
		}
		n, ok := numberWords[sub[1]]
		return n, ok
	}
	if isASCII(m.Surface) {
		if n, ok := before(); ok {
			return n, true
		}
		return after()
	}
	if n, ok := after(); ok {
		return n, true
	}
	return before()
}

func findBudget(s string) (float64, string, span, bool) {
	if m := eokRegex.FindStringSubmatchIndex(s); m != nil {
		v, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
		v *= 1e8
		if m[4] >= 0 {
			k, _ := strconv.ParseFloat(s[m[4]:m[5]], 64)
			v += k * 1e7
		}
		return v, "KRW", span{m[0], m[1]}, true
	}
	if m := cheonRegex.FindStringSubmatchIndex(s); m != nil {
		v, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
		return v * 1e7, "KRW", span{m[0], m[1]}, true
	}
	if m := manRegex.FindStringSubmatchIndex(s); m != nil {
		v, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
		return v * 1e4, "KRW", span{m[0], m[1]}, true
	}
	if m := dollarRegex.FindStringSubmatchIndex(s); m != nil {
		num, mult := m[2:4], m[4:6]
		if num[0] < 0 {
			num, mult = m[6:8], m[8:10]
		}
		v, _ := strconv.ParseFloat(s[num[0]:num[1]], 64)
		if mult[0] >= 0 {
			v *= multiplier(s[mult[0]:mult[1]])
		}
		return v, "USD", span{m[0], m[1]}, true
	}
	if m := wonRegex.FindStringSubmatchIndex(s); m != nil {
		v, _ := strconv.ParseFloat(s[m[2]:m[3]], 64)
		if m[4] >= 0 {
			v *= multiplier(s[m[4]:m[5]])
		}
		return v, "KRW", span{m[0], m[1]}, true
	}
	return 0, "", span{}, false
}

func multiplier(word string) float64 {
	switch word {
	case "k", "thousand":
		return 1e3
	case "m", "million":
		return 1e6
	case "billion":
		return 1e9
	}
	return 1
}

func toSquareMeters(v float64, unit string) float64 {
	switch unit {
	case "평":
		return v * 3.305785
	case "sqft":
		return v * 0.092903
	}
	return v
}

func structuralSystemFor(p model.ParameterResult) string {
	for _, m := range p.Style.Materials {
		switch m {
		case "steel":
			return "steel_frame"
		case "wood":
			return "timber_frame"
		case "brick", "stone":
			return "masonry"
		}
	}
	return "reinforced_concrete"
}

func materialAdvice(p model.ParameterResult, ko bool) []string {
	if len(p.Style.Materials) == 0 {
		return []string{pick(ko,
			"선호하는 외장 및 내장 자재를 알려주시면 더 구체적인 제안이 가능합니다.",
			"Share your preferred exterior and interior materials for specific suggestions.")}
	}
	return []string{pick(ko,
		"언급된 자재("+strings.Join(p.Style.Materials, ", ")+")의 단열 및 유지관리 성능을 비교하세요.",
		"Compare insulation and maintenance performance of "+strings.Join(p.Style.Materials, ", ")+".")}
}

func localValidation(p model.ParameterResult, ko bool) (issues, warnings []string) {
	issues, warnings = []string{}, []string{}
	if p.TotalArea.Value <= 0 {
		issues = append(issues, pick(ko, "전체 면적이 지정되지 않았습니다.", "Total area is missing."))
	}
	if len(p.Rooms) == 0 {
		warnings = append(warnings, pick(ko, "실 구성이 비어 있습니다.", "No rooms are defined."))
	}
	var roomSum float64
	for _, r := range p.Rooms {
		roomSum += r.Area * float64(r.Count)
	}
	if total := toSquareMeters(p.TotalArea.Value, p.TotalArea.Unit); total > 0 && roomSum > total {
		issues = append(issues, pick(ko,
			fmt.Sprintf("실 면적 합계(%.1f㎡)가 전체 면적(%.1f㎡)을 초과합니다.", roomSum, total),
			fmt.Sprintf("Room areas (%.1f m2) exceed the total area (%.1f m2).", roomSum, total)))
	}
	if p.Constraints.Budget <= 0 {
		warnings = append(warnings, pick(ko, "예산이 지정되지 않았습니다.", "Budget is not specified."))
	}
	return issues, warnings
}

func describe(p model.ParameterResult, ko bool) string {
	labels := buildingTypeLabels[p.BuildingType]
	var b strings.Builder
	b.WriteString(pick(ko, "건물 유형: "+labels[0], "Building type: "+labels[1]))
	if p.TotalArea.Value > 0 {
		fmt.Fprintf(&b, pick(ko, ", 면적: %g%s", ", area: %g %s"), p.TotalArea.Value, p.TotalArea.Unit)
	}
	if len(p.Rooms) > 0 {
		names := make([]string, 0, len(p.Rooms))
		for _, r := range p.Rooms {
			names = append(names, fmt.Sprintf("%s x%d", r.Type, r.Count))
		}
		b.WriteString(pick(ko, ", 실 구성: ", ", rooms: ") + strings.Join(names, ", "))
	}
	b.WriteString(".")
	return b.String()
}

func surfaceKeywords(groups ...[]utils.Match) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, g := range groups {
		for _, m := range g {
			if !seen[m.Surface] {
				seen[m.Surface] = true
				out = append(out, m.Surface)
			}
		}
	}
	return limitList(out, 20)
}

func blank(b []byte, sp span) {
	for i := sp.start; i < sp.end && i < len(b); i++ {
		b[i] = ' '
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func pick(ko bool, korean, english string) string {
	if ko {
		return korean
	}
	return english
}
