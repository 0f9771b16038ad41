package stage_test

import (
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
	"github.com/cocoro-lab/cocoro/pkg/service/stage"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := stage.DefaultCatalog()

	t.Run("contains the seven built-in stages", func(t *testing.T) {
		ids := catalog.IDs()
		gt.Array(t, ids).Length(7)

		for _, id := range []types.StageID{
			types.StageOrientation,
			types.StageSelfReflection,
			types.StageOtherPerspective,
			types.StageActionPlanning,
			types.StageConflictResolution,
			types.StageMemoryRecall,
			types.StageClosingFeedback,
		} {
			gt.Bool(t, catalog.Has(id)).True()
		}
	})

	t.Run("templates carry the shared placeholders", func(t *testing.T) {
		for _, id := range catalog.IDs() {
			def := catalog.Get(id)
			gt.Bool(t, strings.Contains(def.PromptTemplate, "{memories}")).True()
			gt.Bool(t, strings.Contains(def.PromptTemplate, "{tool_context}")).True()
		}
	})

	t.Run("only closing-feedback guards with switch cues", func(t *testing.T) {
		for _, id := range catalog.IDs() {
			def := catalog.Get(id)
			if id == types.StageClosingFeedback {
				gt.Bool(t, len(def.SwitchKeywords) > 0).True()
			} else {
				gt.Array(t, def.SwitchKeywords).Length(0)
			}
		}
	})

	t.Run("unknown stage yields nil", func(t *testing.T) {
		gt.Value(t, catalog.Get("no-such-stage")).Nil()
		gt.Bool(t, catalog.Has("no-such-stage")).False()
	})
}

func TestNewCatalog(t *testing.T) {
	t.Run("rejects empty catalog", func(t *testing.T) {
		_, err := stage.NewCatalog(nil)
		gt.Value(t, err).NotNil()
	})

	t.Run("rejects duplicate IDs", func(t *testing.T) {
		_, err := stage.NewCatalog([]*model.StageDefinition{
			{ID: "orientation", PromptTemplate: "a"},
			{ID: "orientation", PromptTemplate: "b"},
		})
		gt.Value(t, err).NotNil()
	})

	t.Run("rejects malformed IDs", func(t *testing.T) {
		_, err := stage.NewCatalog([]*model.StageDefinition{
			{ID: "Not A Stage", PromptTemplate: "a"},
		})
		gt.Value(t, err).NotNil()
	})

	t.Run("rejects dangling likely-next references", func(t *testing.T) {
		_, err := stage.NewCatalog([]*model.StageDefinition{
			{ID: "orientation", PromptTemplate: "a", LikelyNext: []types.StageID{"missing"}},
		})
		gt.Value(t, err).NotNil()
	})
}

func TestLoadCatalog(t *testing.T) {
	t.Run("parses a TOML catalog", func(t *testing.T) {
		src := `
[[stages]]
id = "orientation"
prompt_template = "Open the conversation. {memories} {tool_context}"
likely_next = ["wrap-up"]
entry = "start"
exit = "topic named"

[[stages]]
id = "wrap-up"
prompt_template = "Close the conversation. {memories} {tool_context}"
entry = "ending"
exit = "done"
switch_keywords = ["wait", "go back"]
`
		catalog, err := stage.LoadCatalog(strings.NewReader(src))
		gt.NoError(t, err).Required()

		gt.Array(t, catalog.IDs()).Length(2)
		def := catalog.Get("wrap-up")
		gt.Value(t, def).NotNil()
		gt.Array(t, def.SwitchKeywords).Equal([]string{"wait", "go back"})
		gt.Array(t, catalog.Get("orientation").LikelyNext).Equal([]types.StageID{"wrap-up"})
	})

	t.Run("rejects invalid TOML", func(t *testing.T) {
		_, err := stage.LoadCatalog(strings.NewReader("stages = ["))
		gt.Value(t, err).NotNil()
	})

	t.Run("rejects catalog violating invariants", func(t *testing.T) {
		src := `
[[stages]]
id = "orientation"
prompt_template = "a"
likely_next = ["missing"]
`
		_, err := stage.LoadCatalog(strings.NewReader(src))
		gt.Value(t, err).NotNil()
	})
}
