package operations

import (
	"fmt"
	"slices"
	"sync"
)

// Registry manages registered operation steps
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
	order []string // registration order
}

// NewRegistry creates an empty step registry
func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]Step),
	}
}

// Register adds a step to the registry
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}

	id := step.ID()
	if id == "" {
		return fmt.Errorf("step ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[id]; exists {
		return fmt.Errorf("step with ID %s already registered", id)
	}

	r.steps[id] = step
	r.order = append(r.order, id)
	return nil
}

// Get retrieves a step by ID
func (r *Registry) Get(id string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, exists := r.steps[id]
	if !exists {
		return nil, fmt.Errorf("step with ID %s not found", id)
	}
	return step, nil
}

// Has checks if a step is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.steps[id]
	return exists
}

// List returns all registered steps in registration order
func (r *Registry) List() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]Step, 0, len(r.order))
	for _, id := range r.order {
		steps = append(steps, r.steps[id])
	}
	return steps
}

// ListIDs returns all registered step IDs in registration order
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Count returns the number of registered steps
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// GetDependencyOrder returns all steps ordered by dependencies
func (r *Registry) GetDependencyOrder() ([]Step, error) {
	return r.Plan(nil)
}

// Plan returns the requested steps in dependency order. An empty request
// selects every registered step. Dependencies outside the request are not
// added; the manager checks them against the data manifest instead.
func (r *Registry) Plan(ids []string) ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	selected := make(map[string]bool, len(r.steps))
	if len(ids) == 0 {
		for id := range r.steps {
			selected[id] = true
		}
	}
	for _, id := range ids {
		if _, ok := r.steps[id]; !ok {
			return nil, fmt.Errorf("step with ID %s not found", id)
		}
		selected[id] = true
	}

	dependents := make(map[string][]string)
	inDegree := make(map[string]int)
	for id := range selected {
		inDegree[id] = 0
	}
	for id := range selected {
		for _, dep := range r.steps[id].GetDependencies() {
			if _, exists := r.steps[dep]; !exists {
				return nil, fmt.Errorf("step %s depends on non-existent step %s", id, dep)
			}
			if !selected[dep] {
				continue
			}
			dependents[dep] = append(dependents[dep], id)
			inDegree[id]++
		}
	}

	// Kahn's algorithm; ties keep registration order
	var queue []string
	for _, id := range r.order {
		if selected[id] && inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	ordered := make([]Step, 0, len(selected))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, r.steps[current])

		var ready []string
		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		for _, id := range r.order {
			if slices.Contains(ready, id) {
				queue = append(queue, id)
			}
		}
	}

	if len(ordered) != len(selected) {
		return nil, fmt.Errorf("dependency cycle detected")
	}
	return ordered, nil
}

// ValidateDependencies checks that every dependency exists and that there
// are no cycles
func (r *Registry) ValidateDependencies() error {
	_, err := r.Plan(nil)
	return err
}

// GetDependents returns the IDs of steps that depend on the given step,
// directly or transitively
func (r *Registry) GetDependents(stageID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{stageID: true}
	queue := []string{stageID}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, id := range r.order {
			if seen[id] || !slices.Contains(r.steps[id].GetDependencies(), current) {
				continue
			}
			seen[id] = true
			out = append(out, id)
			queue = append(queue, id)
		}
	}
	return out
}
