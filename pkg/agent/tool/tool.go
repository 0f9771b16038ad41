package tool

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// Spec declares one callable capability in the tool catalog.
type Spec struct {
	Name        string
	Description string
	Parameters  map[string]*gollem.Parameter
	// Independent tools have no input dependency on sibling results and
	// may run concurrently. Dependent tools run sequentially after the
	// independent phase, with prior results available via the context.
	Independent bool
}

// Tool is a named capability the orchestrator may invoke zero or more
// times per turn.
type Tool interface {
	Spec() Spec
	Run(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry is the static tool catalog. It is immutable after
// construction.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools: make(map[string]Tool, len(tools)),
		order: make([]string, 0, len(tools)),
	}
	for _, t := range tools {
		spec := t.Spec()
		if spec.Name == "" {
			return nil, goerr.New("tool name cannot be empty")
		}
		if _, exists := r.tools[spec.Name]; exists {
			return nil, goerr.New("duplicate tool name", goerr.V("name", spec.Name))
		}
		r.tools[spec.Name] = t
		r.order = append(r.order, spec.Name)
	}
	return r, nil
}

// Get returns the named tool, or nil when unknown.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

func (r *Registry) Has(name string) bool {
	_, exists := r.tools[name]
	return exists
}

// List returns tools in registration order.
func (r *Registry) List() []Tool {
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

func (r *Registry) Len() int {
	return len(r.order)
}
