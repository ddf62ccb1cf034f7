package pipeline

import (
	"context"
	"time"

	"github.com/dshills/contentflow-go/graph"
	"github.com/dshills/contentflow-go/graph/emit"
	"github.com/dshills/contentflow-go/graph/model"
	"github.com/dshills/contentflow-go/graph/store"
	"github.com/dshills/contentflow-go/graph/tool"
)

// Feedback is reviewer input delivered through Resume at the review stage.
// An empty Text or a set Accept flag accepts the draft as-is.
type Feedback struct {
	Text   string
	Accept bool
}

// Clarification is requester input delivered through Resume when brief
// validation asked a clarifying question.
type Clarification struct {
	Text string
}

// Config controls pipeline bounds and retry behavior.
type Config struct {
	// MaxRevisions bounds the draft-feedback-redraft loop. Once the
	// counter reaches this value the next review forces finalization.
	// Defaults to 3.
	MaxRevisions int

	// MaxRepairAttempts bounds the parse-validate repair loop. Defaults
	// to 3.
	MaxRepairAttempts int

	// Clarify makes an incomplete brief suspend the run with a clarifying
	// question instead of looping back through parsing automatically.
	Clarify bool

	// Retry overrides the per-stage retry policy. Defaults to 3 attempts
	// with exponential backoff, retrying only transient model and search
	// failures.
	Retry *graph.RetryPolicy

	// StageTimeout bounds each stage invocation. Zero means no timeout.
	StageTimeout time.Duration

	// Metrics, when set, records stage latency, retries, suspensions,
	// and resumes.
	Metrics *graph.Metrics
}

func (c Config) withDefaults() Config {
	if c.MaxRevisions <= 0 {
		c.MaxRevisions = 3
	}
	if c.MaxRepairAttempts <= 0 {
		c.MaxRepairAttempts = 3
	}
	if c.Retry == nil {
		c.Retry = &graph.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Retryable:   retryable,
		}
	}
	return c
}

// retryable reports whether a stage failure is worth retrying. Transient
// collaborator failures are; schema and validation failures are not.
func retryable(err error) bool {
	return model.IsTransient(err)
}

// maxSteps caps runaway execution well above the longest legal path through
// the pipeline (every repair loop plus every revision cycle).
const maxSteps = 64

// Pipeline is the assembled content-generation workflow.
//
// A Pipeline is safe for concurrent use; each run's state is private to its
// run ID.
type Pipeline struct {
	engine *graph.Engine[State]
	cfg    Config
}

// New assembles the workflow graph. caller handles all model invocations,
// searchers feed the research stage, and st persists step checkpoints and
// suspensions. emitter may be nil.
func New(caller model.Caller, searchers []tool.Searcher, st store.Store[State], emitter emit.Emitter, cfg Config) (*Pipeline, error) {
	cfg = cfg.withDefaults()

	opts := []graph.Option{
		graph.WithMaxSteps(maxSteps),
		graph.WithDefaultRetry(cfg.Retry),
	}
	if cfg.StageTimeout > 0 {
		opts = append(opts, graph.WithDefaultNodeTimeout(cfg.StageTimeout))
	}
	if cfg.Metrics != nil {
		opts = append(opts, graph.WithMetrics(cfg.Metrics))
	}

	eng := graph.New[State](Reduce, st, emitter, opts...)

	nodes := map[Stage]graph.Node[State]{
		StageParseBrief:       &parseBriefNode{caller: caller},
		StageValidateBrief:    &validateBriefNode{caller: caller, maxRepairAttempts: cfg.MaxRepairAttempts, clarify: cfg.Clarify},
		StageGenerateHeadline: &generateHeadlineNode{caller: caller},
		StageResearch:         &researchNode{searchers: searchers},
		StagePlanContent:      &planContentNode{caller: caller},
		StageWriteDraft:       &writeDraftNode{caller: caller},
		StageAwaitFeedback:    &awaitFeedbackNode{maxRevisions: cfg.MaxRevisions},
		StageFinalize:         finalizeNode{},
	}
	for stage, node := range nodes {
		if err := eng.Add(string(stage), node); err != nil {
			return nil, err
		}
	}

	// The linear spine. The two loops (validate back to parse, review back
	// to draft) are explicit routes from the branching nodes.
	spine := []Stage{
		StageParseBrief,
		StageValidateBrief,
		StageGenerateHeadline,
		StageResearch,
		StagePlanContent,
		StageWriteDraft,
		StageAwaitFeedback,
	}
	for i := 0; i < len(spine)-1; i++ {
		if err := eng.Connect(string(spine[i]), string(spine[i+1]), nil); err != nil {
			return nil, err
		}
	}
	if err := eng.Connect(string(StageAwaitFeedback), string(StageFinalize), nil); err != nil {
		return nil, err
	}
	if err := eng.StartAt(string(StageParseBrief)); err != nil {
		return nil, err
	}

	return &Pipeline{engine: eng, cfg: cfg}, nil
}

// Start runs a new pipeline from a free-text content request. It returns
// when the run suspends for human input, finishes, or fails.
func (p *Pipeline) Start(ctx context.Context, runID, freeText string) (graph.Outcome[State], error) {
	return p.engine.Run(ctx, runID, State{FreeText: freeText})
}

// Resume continues a suspended run with reviewer Feedback or a
// Clarification answer. Replaying a consumed token fails with
// graph.ErrStaleToken and leaves the run untouched.
func (p *Pipeline) Resume(ctx context.Context, token string, input any) (graph.Outcome[State], error) {
	return p.engine.Resume(ctx, token, input)
}
