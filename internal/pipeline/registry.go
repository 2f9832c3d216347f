package pipeline

import (
	"github.com/rotisserie/eris"
)

// Registry maps step names to their implementations.
type Registry struct {
	steps map[string]Step
	order []string // registration order is run order
}

// NewRegistry creates a registry holding every processing step. Steps that
// read another step's output are registered after it.
func NewRegistry() *Registry {
	r := &Registry{
		steps: make(map[string]Step),
	}

	// Country level
	r.Register(wupLevel1())
	r.Register(wupSizeClass())
	r.Register(&WUPNational{})
	r.Register(&CountryExposure{})
	r.Register(&BuiltUpPerCapita{})

	// Projections (read the national pivot)
	r.Register(&WUPProjections{})
	r.Register(&WUPGrowthRates{})

	// Cities
	r.Register(&AfricapolisCities{})
	r.Register(&AfricapolisCentroids{})
	r.Register(&AgglomerationExposure{})
	r.Register(&AgglomerationBuiltUp{})

	return r
}

// Register adds a step to the registry.
func (r *Registry) Register(s Step) {
	if _, ok := r.steps[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.steps[s.Name()] = s
}

// Get returns a step by name.
func (r *Registry) Get(name string) (Step, error) {
	s, ok := r.steps[name]
	if !ok {
		return nil, eris.Errorf("pipeline: unknown step %q", name)
	}
	return s, nil
}

// Select returns steps filtered by phase and/or names, in registration order.
// If both are nil/empty, returns all steps.
func (r *Registry) Select(phase *Phase, names []string) ([]Step, error) {
	if len(names) > 0 {
		wanted := make(map[string]bool, len(names))
		for _, n := range names {
			if _, err := r.Get(n); err != nil {
				return nil, err
			}
			wanted[n] = true
		}
		var out []Step
		for _, n := range r.order {
			s := r.steps[n]
			if !wanted[n] {
				continue
			}
			if phase != nil && s.Phase() != *phase {
				continue
			}
			out = append(out, s)
		}
		return out, nil
	}

	if phase != nil {
		return r.ByPhase(*phase), nil
	}
	return r.All(), nil
}

// ByPhase returns all steps in the given phase.
func (r *Registry) ByPhase(p Phase) []Step {
	var out []Step
	for _, n := range r.order {
		if s := r.steps[n]; s.Phase() == p {
			out = append(out, s)
		}
	}
	return out
}

// All returns every registered step in order.
func (r *Registry) All() []Step {
	out := make([]Step, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.steps[n])
	}
	return out
}
