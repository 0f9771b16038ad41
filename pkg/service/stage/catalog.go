package stage

import (
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/cocoro-lab/cocoro/pkg/domain/model"
	"github.com/cocoro-lab/cocoro/pkg/domain/types"
)

// Catalog is the static set of conversation stages. It is immutable
// after construction.
type Catalog struct {
	stages map[types.StageID]*model.StageDefinition
	order  []types.StageID
}

func NewCatalog(defs []*model.StageDefinition) (*Catalog, error) {
	if len(defs) == 0 {
		return nil, goerr.New("stage catalog cannot be empty")
	}

	c := &Catalog{
		stages: make(map[types.StageID]*model.StageDefinition, len(defs)),
		order:  make([]types.StageID, 0, len(defs)),
	}
	for _, def := range defs {
		if err := def.ID.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid stage ID")
		}
		if _, exists := c.stages[def.ID]; exists {
			return nil, goerr.New("duplicate stage ID", goerr.V("id", def.ID))
		}
		c.stages[def.ID] = def
		c.order = append(c.order, def.ID)
	}

	for _, def := range defs {
		for _, next := range def.LikelyNext {
			if _, exists := c.stages[next]; !exists {
				return nil, goerr.New("likely-next references unknown stage",
					goerr.V("stage", def.ID), goerr.V("next", next))
			}
		}
	}

	return c, nil
}

// Get returns the stage definition, or nil when the ID is unknown.
func (c *Catalog) Get(id types.StageID) *model.StageDefinition {
	return c.stages[id]
}

func (c *Catalog) Has(id types.StageID) bool {
	_, exists := c.stages[id]
	return exists
}

// IDs returns stage IDs in catalog order.
func (c *Catalog) IDs() []types.StageID {
	ids := make([]types.StageID, len(c.order))
	copy(ids, c.order)
	return ids
}

type catalogFile struct {
	Stages []stageEntry `toml:"stages"`
}

type stageEntry struct {
	ID             string   `toml:"id"`
	PromptTemplate string   `toml:"prompt_template"`
	LikelyNext     []string `toml:"likely_next"`
	Entry          string   `toml:"entry"`
	Exit           string   `toml:"exit"`
	SwitchKeywords []string `toml:"switch_keywords"`
}

// LoadCatalog parses a TOML stage catalog, letting deployments override
// the built-in stages without a rebuild.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse stage catalog")
	}

	defs := make([]*model.StageDefinition, 0, len(file.Stages))
	for _, e := range file.Stages {
		def := &model.StageDefinition{
			ID:             types.StageID(e.ID),
			PromptTemplate: e.PromptTemplate,
			Entry:          e.Entry,
			Exit:           e.Exit,
			SwitchKeywords: e.SwitchKeywords,
		}
		for _, next := range e.LikelyNext {
			def.LikelyNext = append(def.LikelyNext, types.StageID(next))
		}
		defs = append(defs, def)
	}

	return NewCatalog(defs)
}

// DefaultCatalog returns the built-in stages of the guided conversation.
func DefaultCatalog() *Catalog {
	defs := []*model.StageDefinition{
		{
			ID: types.StageOrientation,
			PromptTemplate: "You are opening a coaching conversation. Greet warmly in a {tone} tone, " +
				"invite the person to share what is on their mind, and listen without steering.\n\n" +
				"What you remember about this person:\n{memories}\n\nContext gathered for this turn:\n{tool_context}",
			LikelyNext: []types.StageID{types.StageSelfReflection, types.StageMemoryRecall},
			Entry:      "A new conversation begins or the topic is still unclear.",
			Exit:       "The person has named a concrete situation or feeling to work on.",
		},
		{
			ID: types.StageSelfReflection,
			PromptTemplate: "Help the person explore their own feelings and needs behind the situation. " +
				"Ask open questions in a {tone} tone, reflect feelings back, and avoid advice.\n\n" +
				"What you remember about this person:\n{memories}\n\nContext gathered for this turn:\n{tool_context}",
			LikelyNext: []types.StageID{types.StageOtherPerspective, types.StageActionPlanning},
			Entry:      "A concrete situation is on the table and the person's own side is unexplored.",
			Exit:       "The person has named their feelings and the needs behind them.",
		},
		{
			ID: types.StageOtherPerspective,
			PromptTemplate: "Guide the person to imagine the other party's feelings and needs in the " +
				"situation, without judging either side. Keep the {tone} tone.\n\n" +
				"What you remember about this person:\n{memories}\n\nContext gathered for this turn:\n{tool_context}",
			LikelyNext: []types.StageID{types.StageActionPlanning, types.StageConflictResolution},
			Entry:      "The person's own side is clear and another person is involved.",
			Exit:       "The person can articulate a plausible view of the other side.",
		},
		{
			ID: types.StageActionPlanning,
			PromptTemplate: "Help the person turn their insight into one small, concrete, doable next " +
				"step. Offer at most {knowledge_level}-appropriate suggestions and let them choose.\n\n" +
				"What you remember about this person:\n{memories}\n\nContext gathered for this turn:\n{tool_context}",
			LikelyNext: []types.StageID{types.StageClosingFeedback},
			Entry:      "Feelings and needs are clear enough to act on.",
			Exit:       "A specific next step is chosen.",
		},
		{
			ID: types.StageConflictResolution,
			PromptTemplate: "Both sides of a conflict are now visible. Help the person draft what they " +
				"could actually say to the other party, as a request rather than a demand.\n\n" +
				"What you remember about this person:\n{memories}\n\nContext gathered for this turn:\n{tool_context}",
			LikelyNext: []types.StageID{types.StageActionPlanning, types.StageClosingFeedback},
			Entry:      "An active conflict with another person needs a concrete resolution attempt.",
			Exit:       "A request to the other party is drafted.",
		},
		{
			ID: types.StageMemoryRecall,
			PromptTemplate: "The person wants to revisit earlier conversations. Summarize the most " +
				"relevant things you remember, grouped by theme, in a {tone} tone.\n\n" +
				"What you remember about this person:\n{memories}\n\nContext gathered for this turn:\n{tool_context}",
			LikelyNext: []types.StageID{types.StageOrientation, types.StageSelfReflection},
			Entry:      "The person asks what was discussed before or wants continuity.",
			Exit:       "The recalled context is acknowledged and a current topic emerges.",
		},
		{
			ID: types.StageClosingFeedback,
			PromptTemplate: "The session is wrapping up. Work through the closing questions one at a " +
				"time: what felt useful, what felt off, and what to focus on next time.\n\n" +
				"What you remember about this person:\n{memories}\n\nContext gathered for this turn:\n{tool_context}",
			LikelyNext: []types.StageID{types.StageOrientation},
			Entry:      "The person signals the session is ending.",
			Exit:       "All closing questions are answered.",
			SwitchKeywords: []string{
				"actually", "wait", "one more thing", "before we finish",
				"go back", "not done", "hold on",
			},
		},
	}

	catalog, err := NewCatalog(defs)
	if err != nil {
		// The built-in catalog is validated by tests; this cannot fail
		// at runtime.
		panic(err)
	}
	return catalog
}
