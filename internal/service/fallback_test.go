package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archpipe/internal/model"
)

func newTestFallback() *FallbackAnalyzer {
	f := NewFallbackAnalyzer(DefaultSchemaTable(), 0.9)
	f.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return f
}

func roomByType(rooms []model.Room, typ string) (model.Room, bool) {
	for _, r := range rooms {
		if r.Type == typ {
			return r, true
		}
	}
	return model.Room{}, false
}

func TestFallbackKoreanApartment(t *testing.T) {
	f := newTestFallback()
	p := f.Analyze(model.NewDesignRequest("30평 아파트, 침실 2개, 남향 거실", "ko", "", model.DesignContext{}))

	require.NoError(t, p.Validate())
	assert.Equal(t, model.BuildingApartment, p.BuildingType)
	assert.Equal(t, 30.0, p.TotalArea.Value)
	assert.Equal(t, "평", p.TotalArea.Unit)
	require.NotEmpty(t, p.Rooms)

	bedroom, ok := roomByType(p.Rooms, "bedroom")
	require.True(t, ok)
	assert.Equal(t, 2, bedroom.Count)

	living, ok := roomByType(p.Rooms, "living_room")
	require.True(t, ok)
	assert.Contains(t, living.Orientation, "남향")
	assert.Equal(t, 1, living.Count)

	assert.Less(t, p.Confidence, 0.9)
	assert.Greater(t, p.Confidence, 0.0)
	assert.Equal(t, []string{"south"}, p.ExtractedFeatures.Orientations)
	assert.Equal(t, "30평 아파트", p.SuggestedName)
}

func TestFallbackEnglish(t *testing.T) {
	f := newTestFallback()
	p := f.Analyze(model.NewDesignRequest(
		"A modern two-storey house in Seoul, 3 bedrooms and 2 bathrooms. Living room of 35 sqm facing south-east. Budget $1.2 million, solar panels and a garden.",
		"en", "", model.DesignContext{}))

	require.NoError(t, p.Validate())
	assert.Equal(t, model.BuildingHouse, p.BuildingType)
	assert.Equal(t, "서울", p.Location.Region)
	assert.Equal(t, "modern", p.Style.Architectural)
	assert.InDelta(t, 1200000.0, p.Constraints.Budget, 1e-6)
	assert.Equal(t, "USD", p.Constraints.Currency)
	assert.Equal(t, []string{"garden"}, p.ExtractedFeatures.Amenities)
	assert.Equal(t, []string{"solar"}, p.ExtractedFeatures.Sustainability)

	bedroom, ok := roomByType(p.Rooms, "bedroom")
	require.True(t, ok)
	assert.Equal(t, 3, bedroom.Count)
	bathroom, ok := roomByType(p.Rooms, "bathroom")
	require.True(t, ok)
	assert.Equal(t, 2, bathroom.Count)

	living, ok := roomByType(p.Rooms, "living_room")
	require.True(t, ok)
	assert.Equal(t, 35.0, living.Area, "an area next to a room name belongs to that room")
	assert.Equal(t, "south-east", living.Orientation)
	assert.Equal(t, 0.0, p.TotalArea.Value)

	assert.Less(t, p.Confidence, 0.9)
}

func TestFallbackKoreanDetails(t *testing.T) {
	f := newTestFallback()
	p := f.Analyze(model.NewDesignRequest(
		"제주에 지상 3층 단독주택, 연면적 165㎡. 예산 5억 5천만원, 주방은 동향, 거실 40㎡",
		"ko", "", model.DesignContext{}))

	assert.Equal(t, model.BuildingHouse, p.BuildingType)
	assert.Equal(t, "제주", p.Location.Region)
	assert.Equal(t, 3, p.Constraints.MaxFloors)
	assert.Equal(t, 550000000.0, p.Constraints.Budget)
	assert.Equal(t, 165.0, p.TotalArea.Value)
	assert.Equal(t, "m2", p.TotalArea.Unit)

	kitchen, ok := roomByType(p.Rooms, "kitchen")
	require.True(t, ok)
	assert.Equal(t, "동향", kitchen.Orientation)
	living, ok := roomByType(p.Rooms, "living_room")
	require.True(t, ok)
	assert.Equal(t, 40.0, living.Area)
}

func TestFallbackEmptyInput(t *testing.T) {
	f := newTestFallback()
	for _, text := range []string{"", "   \n\t "} {
		p := f.Analyze(model.NewDesignRequest(text, "ko", "", model.DesignContext{}))
		require.NoError(t, p.Validate())
		assert.Equal(t, []model.Room{}, p.Rooms)
		assert.Equal(t, 0.0, p.Confidence)
	}
}

func TestFallbackUsesHintAndContext(t *testing.T) {
	f := newTestFallback()
	budget, site := 3e8, 200.0
	p := f.Analyze(model.NewDesignRequest("밝은 공간이면 좋겠어요", "ko", "office",
		model.DesignContext{Budget: &budget, Currency: "KRW", SiteArea: &site, Location: "판교"}))

	assert.Equal(t, model.BuildingOffice, p.BuildingType)
	assert.Equal(t, 3e8, p.Constraints.Budget)
	assert.Equal(t, 200.0, p.TotalArea.Value)
	assert.Equal(t, "판교", p.Location.Region)
}

func TestFallbackConfidenceCeiling(t *testing.T) {
	f := NewFallbackAnalyzer(nil, 0.6)
	text := "서울 모던 단독주택 50평, 침실 3개, 남향 거실, 목재 마감, 예산 10억, 정원과 태양광, 2층"
	p := f.Analyze(model.NewDesignRequest(text, "ko", "", model.DesignContext{}))
	assert.InDelta(t, 0.55, p.Confidence, 1e-9)
}

func TestFallbackDeterministic(t *testing.T) {
	f := newTestFallback()
	req := model.NewDesignRequest("30평 아파트, 침실 2개, 남향 거실", "ko", "", model.DesignContext{})
	first := f.Analyze(req)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, f.Analyze(req))
	}
}

func TestFallbackPayloadPerSchema(t *testing.T) {
	f := newTestFallback()
	n := newTestNormalizer()
	req := model.NewDesignRequest("철골 구조 5층 오피스 1,200㎡, 예산 30억", "ko", "", model.DesignContext{})

	tests := []struct {
		schema string
		check  func(t *testing.T, out model.CanonicalResult)
	}{
		{model.SchemaParameters, func(t *testing.T, out model.CanonicalResult) {
			assert.Equal(t, model.BuildingOffice, out.Parameters.BuildingType)
			assert.Equal(t, 1200.0, out.Parameters.TotalArea.Value)
		}},
		{model.SchemaStructural, func(t *testing.T, out model.CanonicalResult) {
			assert.Equal(t, "steel_frame", out.Findings["structuralSystem"])
			assert.Equal(t, 5, out.Findings["floors"])
		}},
		{model.SchemaCost, func(t *testing.T, out model.CanonicalResult) {
			assert.Equal(t, 3e9, out.Findings["totalEstimate"])
			assert.Equal(t, "KRW", out.Findings["currency"])
		}},
		{model.SchemaMaterials, func(t *testing.T, out model.CanonicalResult) {
			assert.Equal(t, []string{"steel"}, out.Findings["primaryMaterials"])
		}},
		{model.SchemaChat, func(t *testing.T, out model.CanonicalResult) {
			answer, _ := out.Findings["answer"].(string)
			assert.True(t, strings.Contains(answer, "오피스"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.schema, func(t *testing.T) {
			out := n.Normalize(f.Payload(req, tt.schema, nil), tt.schema)
			require.NoError(t, out.Parameters.Validate())
			assert.Less(t, out.Confidence, 0.9)
			assert.NotNil(t, out.Recommendations)
			tt.check(t, out)
		})
	}
}

func TestFallbackValidationPayload(t *testing.T) {
	f := newTestFallback()
	n := newTestNormalizer()
	params := n.NormalizeParameters(&model.ParameterResult{
		TotalArea: model.Area{Value: 20, Unit: "m2"},
		Rooms:     []model.Room{{Type: "living_room", Count: 1, Area: 30}},
	})

	out := n.Normalize(f.Payload(model.DesignRequest{Locale: "en"}, model.SchemaValidation, &params), model.SchemaValidation)
	assert.Equal(t, false, out.Findings["valid"])
	issues, _ := out.Findings["issues"].([]string)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "exceed")
}
