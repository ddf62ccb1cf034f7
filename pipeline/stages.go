package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/contentflow-go/graph"
	"github.com/dshills/contentflow-go/graph/model"
	"github.com/dshills/contentflow-go/graph/tool"
)

// stageFailure wraps a collaborator error with the failing stage. The graph
// retry policy unwraps it to classify transient failures.
func stageFailure(stage Stage, err error) graph.NodeResult[State] {
	return graph.NodeResult[State]{Err: &StageError{Stage: stage, Err: err}}
}

// parseBriefNode turns the free-text request into a structured Brief. When
// the validator has sent the run back for repair, its guidance is appended
// to the prompt.
type parseBriefNode struct {
	caller model.Caller
}

func (n *parseBriefNode) Run(ctx context.Context, state State) graph.NodeResult[State] {
	var sb strings.Builder
	sb.WriteString("Extract a structured content brief from the following request.\n\n")
	sb.WriteString(state.FreeText)
	if len(state.Guidance) > 0 {
		sb.WriteString("\n\nA previous attempt was rejected. Address the following:\n")
		for _, g := range state.Guidance {
			sb.WriteString("- " + g + "\n")
		}
	}

	out, err := n.caller.Invoke(ctx, model.Prompt{
		System: "You parse content requests into structured briefs. Respond with JSON fields: topic, target_audience, content_type, tone, word_count_target, key_points, call_to_action, constraints.",
		User:   sb.String(),
		Shape:  model.ShapeJSON,
	})
	if err != nil {
		return stageFailure(StageParseBrief, err)
	}

	var parsed parsedBrief
	if err := decodeOutput(out.JSON, &parsed); err != nil {
		return stageFailure(StageParseBrief, err)
	}

	return graph.NodeResult[State]{
		Delta: State{
			Stage: StageParseBrief,
			Brief: &Brief{
				Topic:           parsed.Topic,
				TargetAudience:  parsed.TargetAudience,
				ContentType:     parsed.ContentType,
				Tone:            parsed.Tone,
				WordCountTarget: parsed.WordCountTarget,
				KeyPoints:       parsed.KeyPoints,
				CallToAction:    parsed.CallToAction,
				Constraints:     parsed.Constraints,
			},
		},
	}
}

// validateBriefNode checks the parsed brief for completeness. An incomplete
// brief loops back to parsing with the validator's complaint as guidance, up
// to maxRepairAttempts; with clarify enabled it instead suspends the run and
// asks the requester directly.
type validateBriefNode struct {
	caller            model.Caller
	maxRepairAttempts int
	clarify           bool
}

func (n *validateBriefNode) Run(ctx context.Context, state State) graph.NodeResult[State] {
	if state.Brief == nil {
		return stageFailure(StageValidateBrief, fmt.Errorf("no brief to validate"))
	}

	out, err := n.caller.Invoke(ctx, model.Prompt{
		System: "You validate content briefs. Respond with JSON fields: is_complete, missing_fields, suggestions, clarifying_questions. A brief needs at minimum a topic and a target audience.",
		User:   briefContext(state.Brief),
		Shape:  model.ShapeJSON,
	})
	if err != nil {
		return stageFailure(StageValidateBrief, err)
	}

	var verdict briefVerdict
	if err := decodeOutput(out.JSON, &verdict); err != nil {
		return stageFailure(StageValidateBrief, err)
	}

	if verdict.IsComplete {
		return graph.NodeResult[State]{Delta: State{Stage: StageValidateBrief}}
	}

	attempts := state.RepairAttempts + 1
	if attempts >= n.maxRepairAttempts {
		return graph.NodeResult[State]{Err: &ValidationError{
			Missing:  verdict.MissingFields,
			Attempts: attempts,
		}}
	}

	if n.clarify {
		prompt := verdict.ClarifyingQuestions
		if prompt == "" {
			prompt = "The brief is incomplete. Please provide more detail: " +
				strings.Join(verdict.MissingFields, ", ")
		}
		return graph.NodeResult[State]{
			Delta: State{Stage: StageValidateBrief, RepairAttempts: attempts},
			Interrupt: &graph.Interrupt{
				Reason: graph.ReasonNeedsClarification,
				Prompt: prompt,
			},
		}
	}

	guidance := make([]string, 0, len(verdict.MissingFields)+len(verdict.Suggestions))
	for _, f := range verdict.MissingFields {
		guidance = append(guidance, "missing field: "+f)
	}
	guidance = append(guidance, verdict.Suggestions...)

	return graph.NodeResult[State]{
		Delta: State{
			Stage:          StageValidateBrief,
			RepairAttempts: attempts,
			Guidance:       guidance,
		},
		Route: graph.Goto(string(StageParseBrief)),
	}
}

// Resume merges the requester's clarification into the original request and
// sends the run back through parsing.
func (n *validateBriefNode) Resume(ctx context.Context, state State, input any) graph.NodeResult[State] {
	clar, ok := input.(Clarification)
	if !ok {
		return graph.NodeResult[State]{Err: fmt.Errorf("expected Clarification input, got %T", input)}
	}

	return graph.NodeResult[State]{
		Delta: State{
			Stage:    StageValidateBrief,
			FreeText: state.FreeText + "\n\nAdditional context from the requester:\n" + clar.Text,
		},
		Route: graph.Goto(string(StageParseBrief)),
	}
}

// generateHeadlineNode produces candidate headlines and keeps the strongest
// one by combined hook and audience-fit score.
type generateHeadlineNode struct {
	caller model.Caller
}

func (n *generateHeadlineNode) Run(ctx context.Context, state State) graph.NodeResult[State] {
	out, err := n.caller.Invoke(ctx, model.Prompt{
		System: "You write headlines. Respond with JSON: {\"variations\": [{\"headline\", \"main_points\" (3-5), \"hook_strength\" (1-10), \"audience_fit\" (1-10)}]}. Produce 15 to 20 variations.",
		User:   briefContext(state.Brief),
		Shape:  model.ShapeJSON,
	})
	if err != nil {
		return stageFailure(StageGenerateHeadline, err)
	}

	var set headlineSet
	if err := decodeOutput(out.JSON, &set); err != nil {
		return stageFailure(StageGenerateHeadline, err)
	}
	if len(set.Variations) == 0 {
		return stageFailure(StageGenerateHeadline, &model.SchemaError{
			Shape:  model.ShapeJSON,
			Detail: "no headline variations returned",
		})
	}

	best := set.Variations[0]
	for _, v := range set.Variations[1:] {
		if v.HookStrength+v.AudienceFit > best.HookStrength+best.AudienceFit {
			best = v
		}
	}

	return graph.NodeResult[State]{
		Delta: State{
			Stage: StageGenerateHeadline,
			Headline: &Headline{
				Text:         best.Headline,
				MainPoints:   best.MainPoints,
				HookStrength: best.HookStrength,
				AudienceFit:  best.AudienceFit,
			},
		},
	}
}

// researchNode fans the topic out across all searchers and merges the
// findings deterministically.
type researchNode struct {
	searchers []tool.Searcher
}

func (n *researchNode) Run(ctx context.Context, state State) graph.NodeResult[State] {
	query := state.Brief.Topic
	if state.Brief.TargetAudience != "" {
		query += " for " + state.Brief.TargetAudience
	}

	findings, err := gatherFindings(ctx, n.searchers, query)
	if err != nil {
		return stageFailure(StageResearch, fmt.Errorf("%w: %w", tool.ErrUnavailable, err))
	}

	return graph.NodeResult[State]{
		Delta: State{Stage: StageResearch, Research: findings},
	}
}

// planContentNode builds the content plan from the headline, brief, and
// research findings.
type planContentNode struct {
	caller model.Caller
}

func (n *planContentNode) Run(ctx context.Context, state State) graph.NodeResult[State] {
	var sb strings.Builder
	sb.WriteString("Plan a piece of content.\n\nHeadline: ")
	sb.WriteString(state.Headline.Text)
	sb.WriteString("\n\n")
	sb.WriteString(briefContext(state.Brief))
	sb.WriteString("\n")
	sb.WriteString(researchContext(state.Research))

	out, err := n.caller.Invoke(ctx, model.Prompt{
		System: "You plan content. Respond with JSON fields: container (one of rule_of_three, listicle, how_to_guide, case_study, framework, story_based, comparison, trend_analysis), hook, key_ideas (ranked, each with title, background, research_refs), differentiation.",
		User:   sb.String(),
		Shape:  model.ShapeJSON,
	})
	if err != nil {
		return stageFailure(StagePlanContent, err)
	}

	var outline planOutline
	if err := decodeOutput(out.JSON, &outline); err != nil {
		return stageFailure(StagePlanContent, err)
	}
	if !ValidContainer(outline.Container) {
		return stageFailure(StagePlanContent, &model.SchemaError{
			Shape:  model.ShapeJSON,
			Detail: "unknown content container: " + outline.Container,
		})
	}
	if len(outline.KeyIdeas) == 0 {
		return stageFailure(StagePlanContent, &model.SchemaError{
			Shape:  model.ShapeJSON,
			Detail: "plan has no key ideas",
		})
	}

	ideas := make([]KeyIdea, 0, len(outline.KeyIdeas))
	for _, idea := range outline.KeyIdeas {
		ideas = append(ideas, KeyIdea{
			Title:        idea.Title,
			Background:   idea.Background,
			ResearchRefs: idea.ResearchRefs,
		})
	}

	return graph.NodeResult[State]{
		Delta: State{
			Stage: StagePlanContent,
			Plan: &ContentPlan{
				Headline:        state.Headline.Text,
				Container:       outline.Container,
				Hook:            outline.Hook,
				KeyIdeas:        ideas,
				Differentiation: outline.Differentiation,
			},
		},
	}
}

// writeDraftNode writes the article from the plan, or rewrites the current
// draft against the full feedback history on a revision pass. The plan is
// never regenerated here; revisions rework the prose, not the strategy.
type writeDraftNode struct {
	caller model.Caller
}

func (n *writeDraftNode) Run(ctx context.Context, state State) graph.NodeResult[State] {
	var sb strings.Builder
	if state.Draft != nil && len(state.FeedbackHistory) > 0 {
		sb.WriteString("Revise the following draft. Keep the plan intact and address all reviewer feedback, most recent first.\n\n")
		sb.WriteString(feedbackContext(state.FeedbackHistory))
		sb.WriteString("\nCurrent draft:\n")
		sb.WriteString(state.Draft.Text)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Write the article described by the following plan.\n\n")
	}
	sb.WriteString(planContext(state.Plan))
	sb.WriteString("\n")
	sb.WriteString(researchContext(state.Research))
	if state.Brief.WordCountTarget > 0 {
		fmt.Fprintf(&sb, "\nTarget length: about %d words.\n", state.Brief.WordCountTarget)
	}

	out, err := n.caller.Invoke(ctx, model.Prompt{
		System: "You write publication-ready articles in the requested tone.",
		User:   sb.String(),
		Shape:  model.ShapeText,
	})
	if err != nil {
		return stageFailure(StageWriteDraft, err)
	}

	return graph.NodeResult[State]{
		Delta: State{
			Stage: StageWriteDraft,
			Draft: &Draft{
				Text:      out.Text,
				WordCount: wordCount(out.Text),
				Revision:  state.RevisionCount,
			},
		},
	}
}

// awaitFeedbackNode suspends the run for human review. Resume either accepts
// the draft or sends it back for one more revision; once the revision limit
// is reached the draft is finalized regardless of further feedback.
type awaitFeedbackNode struct {
	maxRevisions int
}

func (n *awaitFeedbackNode) Run(ctx context.Context, state State) graph.NodeResult[State] {
	prompt := fmt.Sprintf(
		"Review draft revision %d (%d words). Reply with feedback to request changes, or accept to finalize.",
		state.Draft.Revision, state.Draft.WordCount)

	return graph.NodeResult[State]{
		Delta: State{Stage: StageAwaitFeedback},
		Interrupt: &graph.Interrupt{
			Reason: graph.ReasonNeedsFeedback,
			Prompt: prompt,
		},
	}
}

func (n *awaitFeedbackNode) Resume(ctx context.Context, state State, input any) graph.NodeResult[State] {
	fb, ok := input.(Feedback)
	if !ok {
		return graph.NodeResult[State]{Err: fmt.Errorf("expected Feedback input, got %T", input)}
	}

	accepted := fb.Accept || strings.TrimSpace(fb.Text) == ""
	record := FeedbackRecord{
		Text:      fb.Text,
		Revision:  state.Draft.Revision,
		Accept:    accepted,
		CreatedAt: time.Now().UTC(),
	}

	if accepted || state.RevisionCount >= n.maxRevisions {
		return graph.NodeResult[State]{
			Delta: State{Stage: StageAwaitFeedback, FeedbackHistory: []FeedbackRecord{record}},
			Route: graph.Goto(string(StageFinalize)),
		}
	}

	return graph.NodeResult[State]{
		Delta: State{
			Stage:           StageAwaitFeedback,
			RevisionCount:   state.RevisionCount + 1,
			FeedbackHistory: []FeedbackRecord{record},
		},
		Route: graph.Goto(string(StageWriteDraft)),
	}
}

// finalizeNode marks the run complete. The accepted draft is already in
// state; nothing external is called.
type finalizeNode struct{}

func (finalizeNode) Run(ctx context.Context, state State) graph.NodeResult[State] {
	return graph.NodeResult[State]{
		Delta: State{Stage: StageFinalize},
		Route: graph.Stop(),
	}
}

func briefContext(b *Brief) string {
	var sb strings.Builder
	sb.WriteString("Brief:\n")
	fmt.Fprintf(&sb, "  Topic: %s\n", b.Topic)
	fmt.Fprintf(&sb, "  Audience: %s\n", b.TargetAudience)
	if b.ContentType != "" {
		fmt.Fprintf(&sb, "  Content type: %s\n", b.ContentType)
	}
	if b.Tone != "" {
		fmt.Fprintf(&sb, "  Tone: %s\n", b.Tone)
	}
	for _, p := range b.KeyPoints {
		fmt.Fprintf(&sb, "  Key point: %s\n", p)
	}
	if b.CallToAction != "" {
		fmt.Fprintf(&sb, "  Call to action: %s\n", b.CallToAction)
	}
	for _, c := range b.Constraints {
		fmt.Fprintf(&sb, "  Constraint: %s\n", c)
	}
	return sb.String()
}

func researchContext(findings []Finding) string {
	if len(findings) == 0 {
		return "Research: none available.\n"
	}
	var sb strings.Builder
	sb.WriteString("Research findings:\n")
	for _, f := range findings {
		fmt.Fprintf(&sb, "  [%s] %s (source: %s)\n", f.Category, f.Claim, f.Source)
	}
	return sb.String()
}

func planContext(p *ContentPlan) string {
	var sb strings.Builder
	sb.WriteString("Plan:\n")
	fmt.Fprintf(&sb, "  Headline: %s\n", p.Headline)
	fmt.Fprintf(&sb, "  Container: %s\n", p.Container)
	if p.Hook != "" {
		fmt.Fprintf(&sb, "  Hook: %s\n", p.Hook)
	}
	for i, idea := range p.KeyIdeas {
		fmt.Fprintf(&sb, "  Idea %d: %s. %s\n", i+1, idea.Title, idea.Background)
	}
	if p.Differentiation != "" {
		fmt.Fprintf(&sb, "  Differentiation: %s\n", p.Differentiation)
	}
	return sb.String()
}

func feedbackContext(history []FeedbackRecord) string {
	var sb strings.Builder
	sb.WriteString("Reviewer feedback:\n")
	for i := len(history) - 1; i >= 0; i-- {
		fb := history[i]
		fmt.Fprintf(&sb, "  On revision %d: %s\n", fb.Revision, fb.Text)
	}
	return sb.String()
}
