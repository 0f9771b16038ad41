package stage_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"

	"github.com/cocoro-lab/cocoro/pkg/domain/interfaces"
	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	memrepo "github.com/cocoro-lab/cocoro/pkg/repository/memory"
	"github.com/cocoro-lab/cocoro/pkg/service/stage"
)

type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{Texts: []string{`{"should_switch":false,"confidence":0,"rationale":"stay","current_stage_complete":false}`}}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
	sessionCount int
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	c.sessionCount++
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

func classifierReturning(text string, err error) *mockLLMClient {
	return &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					if err != nil {
						return nil, err
					}
					return &gollem.Response{Texts: []string{text}}, nil
				},
			}, nil
		},
	}
}

type mockMemoryLister struct {
	memories []*model.Memory
	called   bool
	err      error
}

func (l *mockMemoryLister) List(ctx context.Context, ownerID string, limit int) ([]*model.Memory, error) {
	l.called = true
	if l.err != nil {
		return nil, l.err
	}
	return l.memories, nil
}

func newMachine(t *testing.T, llm *mockLLMClient, lister *mockMemoryLister) (*stage.Machine, interfaces.SessionRepository) {
	t.Helper()
	sessions := memrepo.New().Session()
	if lister == nil {
		lister = &mockMemoryLister{}
	}
	machine, err := stage.NewMachine(stage.DefaultCatalog(), llm, sessions, lister)
	gt.NoError(t, err).Required()
	return machine, sessions
}

func TestEvaluate(t *testing.T) {
	t.Run("parses classifier output", func(t *testing.T) {
		llm := classifierReturning(`{"should_switch":true,"confidence":90,"suggested_stage":"self-reflection","rationale":"personal feelings surfaced","current_stage_complete":true}`, nil)
		machine, _ := newMachine(t, llm, nil)

		eval := machine.Evaluate(context.Background(), types.StageOrientation, "I feel sad and alone", nil)
		gt.Bool(t, eval.ShouldSwitch).True()
		gt.Value(t, eval.Confidence).Equal(90)
		gt.Value(t, eval.SuggestedStage).Equal(types.StageSelfReflection)
		gt.Bool(t, eval.CurrentStageComplete).True()
	})

	t.Run("classifier failure degrades to no switch", func(t *testing.T) {
		llm := classifierReturning("", goerr.New("quota exceeded"))
		machine, _ := newMachine(t, llm, nil)

		eval := machine.Evaluate(context.Background(), types.StageOrientation, "anything", nil)
		gt.Bool(t, eval.ShouldSwitch).False()
		gt.String(t, eval.Rationale).NotEqual("")
	})

	t.Run("malformed classifier output degrades to no switch", func(t *testing.T) {
		llm := classifierReturning("not json at all", nil)
		machine, _ := newMachine(t, llm, nil)

		eval := machine.Evaluate(context.Background(), types.StageOrientation, "anything", nil)
		gt.Bool(t, eval.ShouldSwitch).False()
	})

	t.Run("closing-feedback skips evaluation without a cue", func(t *testing.T) {
		llm := classifierReturning(`{"should_switch":true,"confidence":95,"suggested_stage":"orientation","rationale":"x","current_stage_complete":false}`, nil)
		machine, _ := newMachine(t, llm, nil)

		eval := machine.Evaluate(context.Background(), types.StageClosingFeedback, "it was a good session", nil)
		gt.Bool(t, eval.ShouldSwitch).False()
		gt.Value(t, llm.sessionCount).Equal(0)
	})

	t.Run("closing-feedback evaluates when the message has a cue", func(t *testing.T) {
		llm := classifierReturning(`{"should_switch":true,"confidence":85,"suggested_stage":"self-reflection","rationale":"reopened the topic","current_stage_complete":false}`, nil)
		machine, _ := newMachine(t, llm, nil)

		eval := machine.Evaluate(context.Background(), types.StageClosingFeedback, "Wait, one more thing about my sister", nil)
		gt.Bool(t, eval.ShouldSwitch).True()
		gt.Value(t, llm.sessionCount).Equal(1)
	})
}

func TestDecide(t *testing.T) {
	machine, _ := newMachine(t, &mockLLMClient{}, nil)

	cases := []struct {
		name    string
		current types.StageID
		eval    stage.Evaluation
		want    types.StageID
		ok      bool
	}{
		{
			name:    "switch at high confidence",
			current: types.StageOrientation,
			eval:    stage.Evaluation{ShouldSwitch: true, Confidence: 90, SuggestedStage: types.StageSelfReflection},
			want:    types.StageSelfReflection,
			ok:      true,
		},
		{
			name:    "confidence below bar is a no-op even when switch is wanted",
			current: types.StageOrientation,
			eval:    stage.Evaluation{ShouldSwitch: true, Confidence: 69, SuggestedStage: types.StageSelfReflection},
			ok:      false,
		},
		{
			name:    "confidence exactly at bar switches",
			current: types.StageOrientation,
			eval:    stage.Evaluation{ShouldSwitch: true, Confidence: 70, SuggestedStage: types.StageSelfReflection},
			want:    types.StageSelfReflection,
			ok:      true,
		},
		{
			name:    "unknown suggested stage is a no-op",
			current: types.StageOrientation,
			eval:    stage.Evaluation{ShouldSwitch: true, Confidence: 95, SuggestedStage: "no-such-stage"},
			ok:      false,
		},
		{
			name:    "suggesting the current stage is a no-op",
			current: types.StageOrientation,
			eval:    stage.Evaluation{ShouldSwitch: true, Confidence: 95, SuggestedStage: types.StageOrientation},
			ok:      false,
		},
		{
			name:    "no switch requested",
			current: types.StageOrientation,
			eval:    stage.Evaluation{ShouldSwitch: false, Confidence: 100, SuggestedStage: types.StageSelfReflection},
			ok:      false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := machine.Decide(tc.current, &tc.eval)
			gt.Value(t, ok).Equal(tc.ok)
			if tc.ok {
				gt.Value(t, got).Equal(tc.want)
			}
		})
	}
}

func TestApply(t *testing.T) {
	t.Run("transition updates session and history", func(t *testing.T) {
		machine, sessions := newMachine(t, &mockLLMClient{}, nil)
		ctx := context.Background()

		sess, err := sessions.Create(ctx, model.NewSession("owner-1", types.StageOrientation))
		gt.NoError(t, err).Required()

		outcome, err := machine.Apply(ctx, sess, &stage.Evaluation{
			ShouldSwitch:   true,
			Confidence:     90,
			SuggestedStage: types.StageSelfReflection,
			Rationale:      "personal feelings surfaced",
		})
		gt.NoError(t, err).Required()

		gt.Bool(t, outcome.Transitioned).True()
		gt.Value(t, outcome.Session.CurrentStage).Equal(types.StageSelfReflection)
		gt.Array(t, outcome.Session.History).Length(1)
		gt.Value(t, outcome.Session.History[0].Confidence).Equal(90)

		stored, err := sessions.GetByOwner(ctx, "owner-1")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.CurrentStage).Equal(types.StageSelfReflection)
		gt.Array(t, stored.History).Length(1)
	})

	t.Run("rejected evaluation leaves the session untouched", func(t *testing.T) {
		machine, sessions := newMachine(t, &mockLLMClient{}, nil)
		ctx := context.Background()

		sess, err := sessions.Create(ctx, model.NewSession("owner-1", types.StageOrientation))
		gt.NoError(t, err).Required()

		outcome, err := machine.Apply(ctx, sess, &stage.Evaluation{
			ShouldSwitch:   true,
			Confidence:     50,
			SuggestedStage: types.StageSelfReflection,
			Rationale:      "weak signal",
		})
		gt.NoError(t, err).Required()

		gt.Bool(t, outcome.Transitioned).False()
		gt.Value(t, outcome.Rationale).Equal("weak signal")

		stored, err := sessions.GetByOwner(ctx, "owner-1")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.CurrentStage).Equal(types.StageOrientation)
		gt.Array(t, stored.History).Length(0)
	})

	t.Run("entering memory-recall prefetches memories", func(t *testing.T) {
		lister := &mockMemoryLister{memories: []*model.Memory{
			{Value: "I like hiking", Category: types.MemoryCategoryPreferences},
		}}
		machine, sessions := newMachine(t, &mockLLMClient{}, lister)
		ctx := context.Background()

		sess, err := sessions.Create(ctx, model.NewSession("owner-1", types.StageOrientation))
		gt.NoError(t, err).Required()

		outcome, err := machine.Apply(ctx, sess, &stage.Evaluation{
			ShouldSwitch:   true,
			Confidence:     88,
			SuggestedStage: types.StageMemoryRecall,
		})
		gt.NoError(t, err).Required()

		gt.Bool(t, lister.called).True()
		gt.Array(t, outcome.Prefetched).Length(1)
		gt.Value(t, outcome.Prefetched[0].Value).Equal("I like hiking")
	})

	t.Run("prefetch failure does not fail the transition", func(t *testing.T) {
		lister := &mockMemoryLister{err: goerr.New("store down")}
		machine, sessions := newMachine(t, &mockLLMClient{}, lister)
		ctx := context.Background()

		sess, err := sessions.Create(ctx, model.NewSession("owner-1", types.StageOrientation))
		gt.NoError(t, err).Required()

		outcome, err := machine.Apply(ctx, sess, &stage.Evaluation{
			ShouldSwitch:   true,
			Confidence:     88,
			SuggestedStage: types.StageMemoryRecall,
		})
		gt.NoError(t, err).Required()
		gt.Bool(t, outcome.Transitioned).True()
		gt.Array(t, outcome.Prefetched).Length(0)
	})

	t.Run("non-recall transitions never touch the memory store", func(t *testing.T) {
		lister := &mockMemoryLister{}
		machine, sessions := newMachine(t, &mockLLMClient{}, lister)
		ctx := context.Background()

		sess, err := sessions.Create(ctx, model.NewSession("owner-1", types.StageOrientation))
		gt.NoError(t, err).Required()

		_, err = machine.Apply(ctx, sess, &stage.Evaluation{
			ShouldSwitch:   true,
			Confidence:     88,
			SuggestedStage: types.StageActionPlanning,
		})
		gt.NoError(t, err).Required()
		gt.Bool(t, lister.called).False()
	})
}
