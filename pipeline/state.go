// Package pipeline implements the content-generation workflow: it parses a
// free-text brief, researches the topic, plans and drafts an article, and
// loops through bounded human-review revision cycles until the draft is
// accepted or the revision limit forces finalization.
package pipeline

import (
	"strings"
	"time"
)

// Stage identifies a phase of the content pipeline. Stage values double as
// node IDs in the workflow graph.
type Stage string

const (
	StageParseBrief       Stage = "parse_brief"
	StageValidateBrief    Stage = "validate_brief"
	StageGenerateHeadline Stage = "generate_headline"
	StageResearch         Stage = "research"
	StagePlanContent      Stage = "plan_content"
	StageWriteDraft       Stage = "write_draft"
	StageAwaitFeedback    Stage = "await_feedback"
	StageFinalize         Stage = "finalize"
)

var stageOrder = map[Stage]int{
	StageParseBrief:       0,
	StageValidateBrief:    1,
	StageGenerateHeadline: 2,
	StageResearch:         3,
	StagePlanContent:      4,
	StageWriteDraft:       5,
	StageAwaitFeedback:    6,
	StageFinalize:         7,
}

// Index returns the stage's position in the fixed topological order, or -1
// for an unknown stage.
func (s Stage) Index() int {
	i, ok := stageOrder[s]
	if !ok {
		return -1
	}
	return i
}

// Brief is the structured content request parsed from free text. It is
// immutable once validated.
type Brief struct {
	Topic           string   `json:"topic"`
	TargetAudience  string   `json:"target_audience"`
	ContentType     string   `json:"content_type"`
	Tone            string   `json:"tone"`
	WordCountTarget int      `json:"word_count_target,omitempty"`
	KeyPoints       []string `json:"key_points,omitempty"`
	CallToAction    string   `json:"call_to_action,omitempty"`
	Constraints     []string `json:"constraints,omitempty"`
}

// FindingCategory classifies a research finding.
type FindingCategory string

const (
	FindingSurprising FindingCategory = "surprising"
	FindingActionable FindingCategory = "actionable"
	FindingQuote      FindingCategory = "quote"
	FindingPattern    FindingCategory = "pattern"
)

// Finding is a single research result. The research stage produces an
// ordered list once per run; findings are read-only afterward.
type Finding struct {
	Source     string          `json:"source"`
	Claim      string          `json:"claim"`
	Category   FindingCategory `json:"category"`
	Confidence float64         `json:"confidence"`
}

// Headline is the selected headline with its supporting points and scores.
type Headline struct {
	Text         string   `json:"text"`
	MainPoints   []string `json:"main_points"`
	HookStrength int      `json:"hook_strength"`
	AudienceFit  int      `json:"audience_fit"`
}

// Content containers the planner may choose from.
const (
	ContainerRuleOfThree   = "rule_of_three"
	ContainerListicle      = "listicle"
	ContainerHowToGuide    = "how_to_guide"
	ContainerCaseStudy     = "case_study"
	ContainerFramework     = "framework"
	ContainerStoryBased    = "story_based"
	ContainerComparison    = "comparison"
	ContainerTrendAnalysis = "trend_analysis"
)

var validContainers = map[string]bool{
	ContainerRuleOfThree:   true,
	ContainerListicle:      true,
	ContainerHowToGuide:    true,
	ContainerCaseStudy:     true,
	ContainerFramework:     true,
	ContainerStoryBased:    true,
	ContainerComparison:    true,
	ContainerTrendAnalysis: true,
}

// ValidContainer reports whether name is a known content container.
func ValidContainer(name string) bool {
	return validContainers[name]
}

// KeyIdea is one ranked section of the content plan.
type KeyIdea struct {
	Title        string   `json:"title"`
	Background   string   `json:"background"`
	ResearchRefs []string `json:"research_refs,omitempty"`
}

// ContentPlan is the strategic outline the draft is written against. It is
// produced once by the planning stage; the revision loop never regenerates
// it, only a fresh run can.
type ContentPlan struct {
	Headline        string    `json:"headline"`
	Container       string    `json:"container"`
	Hook            string    `json:"hook,omitempty"`
	KeyIdeas        []KeyIdea `json:"key_ideas"`
	Differentiation string    `json:"differentiation,omitempty"`
}

// Draft is the article text at a given revision. Revision starts at 0 and
// increments once per revision cycle.
type Draft struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
	Revision  int    `json:"revision"`
}

// FeedbackRecord is one entry in the append-only reviewer feedback history.
type FeedbackRecord struct {
	Text      string    `json:"text"`
	Revision  int       `json:"revision"`
	Accept    bool      `json:"accept,omitempty"`
	CreatedAt time.Time `json:"ts"`
}

// State is the workflow state threaded through every stage. Stages receive
// it by value and return deltas; all merging happens in Reduce.
type State struct {
	Stage           Stage            `json:"stage"`
	RevisionCount   int              `json:"revision_count"`
	FreeText        string           `json:"free_text,omitempty"`
	Guidance        []string         `json:"guidance,omitempty"`
	RepairAttempts  int              `json:"repair_attempts,omitempty"`
	Brief           *Brief           `json:"brief"`
	Headline        *Headline        `json:"headline,omitempty"`
	Research        []Finding        `json:"research"`
	Plan            *ContentPlan     `json:"plan"`
	Draft           *Draft           `json:"draft"`
	FeedbackHistory []FeedbackRecord `json:"feedback_history"`
}

// Reduce merges a stage's delta into the previous state and returns the new
// state. Populated delta fields replace their predecessors; feedback records
// are appended, never replaced; counters only move forward.
func Reduce(prev, delta State) State {
	next := prev

	if delta.Stage != "" {
		next.Stage = delta.Stage
	}
	if delta.FreeText != "" {
		next.FreeText = delta.FreeText
	}
	if delta.Guidance != nil {
		next.Guidance = delta.Guidance
	}
	if delta.Brief != nil {
		next.Brief = delta.Brief
	}
	if delta.Headline != nil {
		next.Headline = delta.Headline
	}
	if delta.Research != nil {
		next.Research = delta.Research
	}
	if delta.Plan != nil {
		next.Plan = delta.Plan
	}
	if delta.Draft != nil {
		next.Draft = delta.Draft
	}
	if delta.RevisionCount > next.RevisionCount {
		next.RevisionCount = delta.RevisionCount
	}
	if delta.RepairAttempts > next.RepairAttempts {
		next.RepairAttempts = delta.RepairAttempts
	}
	if len(delta.FeedbackHistory) > 0 {
		history := make([]FeedbackRecord, 0, len(prev.FeedbackHistory)+len(delta.FeedbackHistory))
		history = append(history, prev.FeedbackHistory...)
		history = append(history, delta.FeedbackHistory...)
		next.FeedbackHistory = history
	}

	return next
}

// wordCount counts whitespace-separated words in text.
func wordCount(text string) int {
	return len(strings.Fields(text))
}
