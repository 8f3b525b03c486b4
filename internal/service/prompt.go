package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"unicode/utf8"

	"archpipe/internal/model"
	"archpipe/internal/utils"
)

// TaskKind selects the prompt template
type TaskKind string

const (
	TaskExtract  TaskKind = "extract"
	TaskValidate TaskKind = "validate"
	TaskOptimize TaskKind = "optimize"
	TaskChat     TaskKind = "chat"
	TaskAnalyze  TaskKind = "analyze"
)

// PromptInput carries everything a template may embed
type PromptInput struct {
	Text             string
	Context          model.DesignContext
	Locale           string
	BuildingTypeHint string

	// analyze only
	AgentTitle string
	Focus      string
	Schema     string

	// validate and optimize
	Parameters *model.ParameterResult
	Goals      []string
}

const systemPrompt = `You are an architectural design analysis engine for building projects in Korea and abroad.
You convert natural-language building descriptions into structured design data.
Output rules:
- Respond with exactly one JSON object and nothing else.
- Do not write explanations, markdown or any text before or after the JSON object.
- Every field listed in the task must be present. Use empty strings, 0 or [] when unknown.
- Confidence values are numbers between 0 and 1.`

var promptTemplates = map[TaskKind]string{
	TaskExtract: `Task: extract building design parameters from the description below.
{{.Language}}
Allowed buildingType values: {{.BuildingTypes}}.
{{- if .Hint}}
The caller suggests buildingType {{.Hint}}; use it unless the description clearly contradicts it.
{{- end}}
Area units: use "m2" for square meters, "평" for pyeong and "sqft" for square feet. Keep the unit the user wrote.
Rooms: one entry per room type with count, area in m2 and orientation (for example "남향") when stated.

Required fields:
{{.Fields}}

Project context (JSON):
{{.Context}}

Description:
<<<
{{.Text}}
>>>

Return JSON in exactly this shape:
{{.Skeleton}}`,

	TaskAnalyze: `Task: act as the {{.Title}} specialist and analyze the building project below.
{{.Language}}
Focus: {{.Focus}}
Base every finding on the description and the extracted parameters. Put concrete, actionable advice in "recommendations".

Required fields:
{{.Fields}}

Extracted parameters (JSON):
{{.Parameters}}

Project context (JSON):
{{.Context}}

Description:
<<<
{{.Text}}
>>>

Return JSON in exactly this shape:
{{.Skeleton}}`,

	TaskValidate: `Task: review the design parameters below for consistency, feasibility and regulatory plausibility.
{{.Language}}
Set "valid" to false when any issue would block construction. List blocking problems in "issues",
non-blocking concerns in "warnings" and improvements in "suggestions". "score" rates overall quality from 0 to 1.

Required fields:
{{.Fields}}

Parameters to validate (JSON):
{{.Parameters}}

Project context (JSON):
{{.Context}}

Return JSON in exactly this shape:
{{.Skeleton}}`,

	TaskOptimize: `Task: improve the design parameters below toward the stated goals while keeping the client's explicit requirements.
{{.Language}}
Goals:
{{- range .Goals}}
- {{.}}
{{- else}}
- balanced space efficiency, cost and comfort
{{- end}}
Allowed buildingType values: {{.BuildingTypes}}.
Return the complete optimized parameter object, not a diff.

Required fields:
{{.Fields}}

Current parameters (JSON):
{{.Parameters}}

Project context (JSON):
{{.Context}}

Return JSON in exactly this shape:
{{.Skeleton}}`,

	TaskChat: `Task: answer the user's question about their building project as a helpful architect.
{{.Language}}
Put the full answer in "answer" and up to five short follow-up ideas in "suggestions".

Required fields:
{{.Fields}}

Project context (JSON):
{{.Context}}
{{- if .Parameters}}

Current parameters (JSON):
{{.Parameters}}
{{- end}}

Question:
<<<
{{.Text}}
>>>

Return JSON in exactly this shape:
{{.Skeleton}}`,
}

// taskSchemas fixes the schema kind of every task except analyze
var taskSchemas = map[TaskKind]string{
	TaskExtract:  model.SchemaParameters,
	TaskValidate: model.SchemaValidation,
	TaskOptimize: model.SchemaParameters,
	TaskChat:     model.SchemaChat,
}

type promptData struct {
	Language      string
	BuildingTypes string
	Hint          string
	Title         string
	Focus         string
	Fields        string
	Context       string
	Parameters    string
	Goals         []string
	Text          string
	Skeleton      string
}

// PromptBuilder renders task prompts. It is pure: no I/O, safe for concurrent use.
type PromptBuilder struct {
	normalizer *Normalizer
	minChars   int
	maxChars   int
	templates  map[TaskKind]*template.Template
}

// NewPromptBuilder parses all task templates. Input text is never cut below
// minChars runes; above maxChars it is truncated.
func NewPromptBuilder(normalizer *Normalizer, minChars, maxChars int) *PromptBuilder {
	if maxChars < minChars {
		maxChars = minChars
	}
	templates := make(map[TaskKind]*template.Template, len(promptTemplates))
	for task, text := range promptTemplates {
		templates[task] = template.Must(template.New(string(task)).Parse(text))
	}
	return &PromptBuilder{
		normalizer: normalizer,
		minChars:   minChars,
		maxChars:   maxChars,
		templates:  templates,
	}
}

// SchemaFor returns the schema kind the task's output is normalized into
func (b *PromptBuilder) SchemaFor(task TaskKind, schema string) string {
	if task == TaskAnalyze {
		return schema
	}
	return taskSchemas[task]
}

// Build renders the prompt for task. Unknown tasks and schemas are programming
// errors and reported as ErrUnknownTask / ErrUnknownSchema.
func (b *PromptBuilder) Build(task TaskKind, in PromptInput) (Prompt, error) {
	tmpl, ok := b.templates[task]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	schema := b.SchemaFor(task, in.Schema)
	if !b.knownSchema(schema) {
		return Prompt{}, fmt.Errorf("%w: %q", ErrUnknownSchema, schema)
	}

	skeleton := b.normalizer.Skeleton(schema)
	if task == TaskAnalyze && schema == model.SchemaParameters {
		// the analyze template asks every agent for advice, including the
		// one that answers with plain parameters
		skeleton["title"] = ""
		skeleton["summary"] = ""
		skeleton["recommendations"] = []any{}
	}
	data := promptData{
		Language:      languageLine(in.Locale),
		BuildingTypes: strings.Join(model.BuildingTypes, ", "),
		Hint:          strings.ToUpper(strings.TrimSpace(in.BuildingTypeHint)),
		Title:         in.AgentTitle,
		Focus:         in.Focus,
		Fields:        fieldList(skeleton),
		Context:       contextJSON(in.Context),
		Parameters:    parametersJSON(in.Parameters),
		Goals:         in.Goals,
		Text:          b.fitText(in.Text),
		Skeleton:      indentJSON(skeleton),
	}
	if data.Title == "" {
		data.Title = schema
	}
	if data.Focus == "" {
		data.Focus = schema + " analysis"
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return Prompt{}, fmt.Errorf("failed to render %s prompt: %w", task, err)
	}
	return Prompt{Task: task, System: systemPrompt, User: buf.String()}, nil
}

func (b *PromptBuilder) knownSchema(schema string) bool {
	if schema == model.SchemaParameters {
		return true
	}
	_, ok := b.normalizer.Table().Schemas[schema]
	return ok
}

func (b *PromptBuilder) fitText(text string) string {
	if utf8.RuneCountInString(text) <= b.maxChars {
		return text
	}
	return utils.TruncateRunes(text, b.maxChars)
}

func languageLine(locale string) string {
	if model.NormalizeLocale(locale) == model.LocaleEnglish {
		return "Write every free-text value in English."
	}
	return "Write every free-text value in Korean (한국어). Keep JSON keys and enum values in English."
}

func contextJSON(ctx model.DesignContext) string {
	if ctx.IsZero() {
		return "{}"
	}
	data, err := json.Marshal(ctx)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func parametersJSON(p *model.ParameterResult) string {
	if p == nil {
		return ""
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// fieldList names every leaf of the skeleton as a dotted path, one per line
func fieldList(skeleton map[string]any) string {
	var paths []string
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch x := v.(type) {
		case map[string]any:
			if len(x) == 0 {
				paths = append(paths, prefix)
				return
			}
			for k, child := range x {
				p := k
				if prefix != "" {
					p = prefix + "." + k
				}
				walk(p, child)
			}
		case []any:
			if len(x) > 0 {
				if _, ok := x[0].(map[string]any); ok {
					walk(prefix+"[]", x[0])
					return
				}
			}
			paths = append(paths, prefix)
		default:
			paths = append(paths, prefix)
		}
	}
	walk("", skeleton)
	sort.Strings(paths)
	return "- " + strings.Join(paths, "\n- ")
}
