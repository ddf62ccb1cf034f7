package pipeline

import (
	"encoding/json"

	"github.com/dshills/contentflow-go/graph/model"
)

// Structured-output variants decoded at the model boundary. Each stage that
// requests ShapeJSON decodes into exactly one of these and validates it
// before the result enters the workflow state.

// parsedBrief is the parser's structured reading of the free-text request.
type parsedBrief struct {
	Topic           string   `json:"topic"`
	TargetAudience  string   `json:"target_audience"`
	ContentType     string   `json:"content_type"`
	Tone            string   `json:"tone"`
	WordCountTarget int      `json:"word_count_target"`
	KeyPoints       []string `json:"key_points"`
	CallToAction    string   `json:"call_to_action"`
	Constraints     []string `json:"constraints"`
}

// briefVerdict is the validator's judgment of a parsed brief.
type briefVerdict struct {
	IsComplete          bool     `json:"is_complete"`
	MissingFields       []string `json:"missing_fields"`
	Suggestions         []string `json:"suggestions"`
	ClarifyingQuestions string   `json:"clarifying_questions"`
}

// headlineVariation is one candidate headline with its scores.
type headlineVariation struct {
	Headline     string   `json:"headline"`
	MainPoints   []string `json:"main_points"`
	HookStrength int      `json:"hook_strength"`
	AudienceFit  int      `json:"audience_fit"`
}

// headlineSet is the headline generator's full output.
type headlineSet struct {
	Variations []headlineVariation `json:"variations"`
}

// planIdea is one ranked section in the planner's outline.
type planIdea struct {
	Title        string   `json:"title"`
	Background   string   `json:"background"`
	ResearchRefs []string `json:"research_refs"`
}

// planOutline is the planner's structured output.
type planOutline struct {
	Container       string     `json:"container"`
	Hook            string     `json:"hook"`
	KeyIdeas        []planIdea `json:"key_ideas"`
	Differentiation string     `json:"differentiation"`
}

// decodeOutput unmarshals a structured model output into v. Decode failures
// are schema errors, not transport errors, so they are never retried.
func decodeOutput(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &model.SchemaError{
			Shape:  model.ShapeJSON,
			Detail: "structured output does not match the expected schema",
			Cause:  err,
		}
	}
	return nil
}
