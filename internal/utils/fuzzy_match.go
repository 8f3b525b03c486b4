package utils

import (
	"sort"
	"strings"
)

// Term is a canonical vocabulary entry with its Korean and English surface forms.
// Aliases are matched against case-folded text.
type Term struct {
	Canonical string
	Aliases   []string
}

// Match is one occurrence of a Term alias in a text (byte offsets)
type Match struct {
	Canonical string
	Surface   string
	Start     int
	End       int
}

// BuildingTypeTerms maps building-type keywords to the closed set of building types.
// Order matters for ties: the first type with the most hits wins.
var BuildingTypeTerms = []Term{
	{"MIXED_USE", []string{"주상복합", "복합건물", "mixed-use", "mixed use"}},
	{"APARTMENT", []string{"아파트", "apartment", "flat", "condo", "오피스텔"}},
	{"HOUSE", []string{"단독주택", "전원주택", "타운하우스", "주택", "house", "cottage", "townhouse"}},
	{"OFFICE", []string{"오피스", "사무실", "사무소", "업무시설", "office", "workspace"}},
	{"RETAIL", []string{"매장", "판매시설", "쇼핑", "retail", "shop", "mall", "boutique"}},
	{"COMMERCIAL", []string{"상가", "상업시설", "근린생활", "commercial", "restaurant", "cafe", "카페", "식당"}},
	{"INDUSTRIAL", []string{"공장", "물류", "factory", "warehouse", "plant", "industrial building"}},
	{"EDUCATIONAL", []string{"학교", "유치원", "학원", "교육시설", "school", "kindergarten", "university", "academy"}},
	{"MEDICAL", []string{"병원", "의원", "클리닉", "요양", "hospital", "clinic", "medical"}},
	{"CULTURAL", []string{"미술관", "박물관", "도서관", "공연장", "갤러리", "museum", "gallery", "library", "theater", "theatre"}},
	{"RESIDENTIAL", []string{"주거", "빌라", "다세대", "연립", "residential", "villa", "dwelling", "residence"}},
}

// RoomTerms are the recognized room types
var RoomTerms = []Term{
	{"bedroom", []string{"안방", "침실", "bedroom", "master room"}},
	{"living_room", []string{"거실", "living room", "lounge"}},
	{"kitchen", []string{"주방", "부엌", "키친", "kitchen"}},
	{"dining_room", []string{"식당", "다이닝", "dining room", "dining area"}},
	{"bathroom", []string{"욕실", "화장실", "bathroom", "restroom", "toilet", "washroom"}},
	{"study", []string{"서재", "공부방", "작업실", "study", "home office"}},
	{"dress_room", []string{"드레스룸", "dressing room", "walk-in closet"}},
	{"storage", []string{"창고", "수납공간", "storage"}},
	{"utility", []string{"다용도실", "세탁실", "utility room", "laundry"}},
	{"balcony", []string{"발코니", "베란다", "balcony", "terrace"}},
	{"entrance", []string{"현관", "entrance", "foyer"}},
	{"garage", []string{"차고", "garage"}},
	{"meeting_room", []string{"회의실", "meeting room", "conference room"}},
	{"lobby", []string{"로비", "lobby"}},
	{"classroom", []string{"교실", "강의실", "classroom", "lecture room"}},
}

// OrientationTerms are direction tokens; compound directions are listed first
var OrientationTerms = []Term{
	{"southeast", []string{"남동향", "south-east facing", "southeast-facing", "south-east", "southeast"}},
	{"southwest", []string{"남서향", "south-west facing", "southwest-facing", "south-west", "southwest"}},
	{"northeast", []string{"북동향", "north-east", "northeast"}},
	{"northwest", []string{"북서향", "north-west", "northwest"}},
	{"south", []string{"남향", "남쪽", "south-facing", "south facing", "southern exposure"}},
	{"east", []string{"동향", "동쪽", "east-facing", "east facing"}},
	{"west", []string{"서향", "서쪽", "west-facing", "west facing"}},
	{"north", []string{"북향", "북쪽", "north-facing", "north facing"}},
}

// StyleTerms are architectural/interior style keywords
var StyleTerms = []Term{
	{"modern", []string{"모던", "현대적", "modern", "contemporary"}},
	{"minimal", []string{"미니멀", "심플", "minimal", "minimalist"}},
	{"traditional", []string{"한옥", "전통", "traditional"}},
	{"scandinavian", []string{"북유럽", "scandinavian", "nordic"}},
	{"industrial", []string{"인더스트리얼", "industrial style", "loft"}},
	{"classic", []string{"클래식", "classic", "classical"}},
	{"natural", []string{"내추럴", "자연친화", "natural"}},
}

// MaterialTerms are building material keywords
var MaterialTerms = []Term{
	{"wood", []string{"목재", "원목", "나무", "wood", "timber"}},
	{"concrete", []string{"노출콘크리트", "콘크리트", "concrete"}},
	{"brick", []string{"벽돌", "brick"}},
	{"glass", []string{"유리", "통창", "glass", "curtain wall"}},
	{"steel", []string{"철골", "스틸", "steel"}},
	{"stone", []string{"석재", "대리석", "stone", "marble"}},
}

// ColorTerms are color keywords
var ColorTerms = []Term{
	{"white", []string{"화이트", "흰색", "white"}},
	{"gray", []string{"그레이", "회색", "gray", "grey"}},
	{"beige", []string{"베이지", "beige"}},
	{"black", []string{"블랙", "검정", "black"}},
	{"wood_tone", []string{"우드톤", "wood tone"}},
}

// AmenityTerms are building amenity keywords
var AmenityTerms = []Term{
	{"parking", []string{"주차", "parking", "car park"}},
	{"elevator", []string{"엘리베이터", "승강기", "elevator", "lift"}},
	{"garden", []string{"정원", "마당", "garden", "yard"}},
	{"rooftop", []string{"옥상", "루프탑", "rooftop", "roof deck"}},
	{"gym", []string{"피트니스", "헬스장", "gym", "fitness"}},
	{"pool", []string{"수영장", "swimming pool", "pool"}},
	{"security", []string{"보안", "경비실", "security"}},
}

// SustainabilityTerms are energy and environmental keywords
var SustainabilityTerms = []Term{
	{"green_roof", []string{"옥상녹화", "green roof"}},
	{"solar", []string{"태양광", "태양열", "solar"}},
	{"insulation", []string{"고단열", "단열", "insulation"}},
	{"passive_house", []string{"패시브하우스", "패시브", "passive house"}},
	{"geothermal", []string{"지열", "geothermal"}},
	{"rainwater", []string{"빗물", "rainwater"}},
	{"zero_energy", []string{"제로에너지", "zero energy", "net zero", "net-zero"}},
	{"energy_efficiency", []string{"에너지 효율", "에너지절약", "energy efficient", "energy efficiency"}},
}

// RegionTerms are Korean administrative regions and a few common English names
var RegionTerms = []Term{
	{"서울", []string{"서울", "seoul"}},
	{"부산", []string{"부산", "busan"}},
	{"인천", []string{"인천", "incheon"}},
	{"대구", []string{"대구", "daegu"}},
	{"대전", []string{"대전", "daejeon"}},
	{"광주", []string{"광주", "gwangju"}},
	{"울산", []string{"울산", "ulsan"}},
	{"세종", []string{"세종", "sejong"}},
	{"경기", []string{"경기", "gyeonggi"}},
	{"강원", []string{"강원", "gangwon"}},
	{"충청", []string{"충북", "충남", "충청", "chungcheong"}},
	{"전라", []string{"전북", "전남", "전라", "jeolla"}},
	{"경상", []string{"경북", "경남", "경상", "gyeongsang"}},
	{"제주", []string{"제주", "jeju"}},
}

// FindTerms returns the non-overlapping alias occurrences of terms in text,
// ordered by position. Where aliases overlap, the earlier and then the longer wins.
// text is expected to be case-folded already.
func FindTerms(text string, terms []Term) []Match {
	var all []Match
	for _, term := range terms {
		for _, alias := range term.Aliases {
			a := strings.ToLower(alias)
			for off := 0; off < len(text); {
				idx := strings.Index(text[off:], a)
				if idx < 0 {
					break
				}
				start := off + idx
				all = append(all, Match{
					Canonical: term.Canonical,
					Surface:   text[start : start+len(a)],
					Start:     start,
					End:       start + len(a),
				})
				off = start + len(a)
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End-all[i].Start > all[j].End-all[j].Start
	})

	out := make([]Match, 0, len(all))
	end := -1
	for _, m := range all {
		if m.Start < end {
			continue
		}
		out = append(out, m)
		end = m.End
	}
	return out
}

// FuzzyMatchTerm reports whether the token equals the term's canonical name or
// contains one of its aliases. Latin aliases must match whole words (an "s"
// plural is allowed), so "warehouse" does not contain "house". Hangul aliases
// match anywhere because particles attach directly to the noun.
func FuzzyMatchTerm(token string, term Term) bool {
	return matchLength(strings.ToLower(strings.TrimSpace(token)), term) > 0
}

// NormalizeTerm maps a free-form token to the canonical name of the term with
// the longest matching alias; ties go to the earlier term. Unknown tokens are
// returned trimmed and lower-cased with spaces replaced by underscores.
func NormalizeTerm(token string, terms []Term) string {
	t := strings.ToLower(strings.TrimSpace(token))
	if t == "" {
		return ""
	}
	best, bestLen := "", 0
	for _, term := range terms {
		if n := matchLength(t, term); n > bestLen {
			best, bestLen = term.Canonical, n
		}
	}
	if best != "" {
		return best
	}
	return strings.Join(strings.Fields(t), "_")
}

// matchLength returns the length of the longest alias of term found in the
// lower-cased token t, len(t)+1 for a canonical-name match, or 0.
func matchLength(t string, term Term) int {
	if t == "" {
		return 0
	}
	if t == strings.ToLower(term.Canonical) {
		return len(t) + 1
	}
	longest := 0
	for _, alias := range term.Aliases {
		a := strings.ToLower(alias)
		if len(a) > longest && containsAlias(t, a) {
			longest = len(a)
		}
	}
	return longest
}

func containsAlias(s, alias string) bool {
	if !isASCII(alias) {
		return strings.Contains(s, alias)
	}
	for off := 0; off < len(s); {
		idx := strings.Index(s[off:], alias)
		if idx < 0 {
			return false
		}
		start := off + idx
		end := start + len(alias)
		if end < len(s) && s[end] == 's' && (end+1 == len(s) || !isWordByte(s[end+1])) {
			end++
		}
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		off = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// Canonicals returns the distinct canonical names of matches in first-seen order
func Canonicals(matches []Match) []string {
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m.Canonical] {
			continue
		}
		seen[m.Canonical] = true
		out = append(out, m.Canonical)
	}
	return out
}
