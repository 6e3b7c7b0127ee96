package phases

import (
	"context"
	"fmt"

	"github.com/stylesync/stylesync-backend/internal/color_advice/domain"
)

// Adapter runs one pipeline phase. Invoke must honor ctx, must not mutate
// its input and must signal a timeout with an error wrapping
// domain.ErrPhaseTimeout (or context.DeadlineExceeded) so it can be told
// apart from a logical failure.
type Adapter interface {
	Name() domain.PhaseName
	Invoke(ctx context.Context, in *domain.PhaseInput) (domain.PhaseResult, error)
}

// Set dispatches phases to their adapters by name.
type Set struct {
	adapters map[domain.PhaseName]Adapter
}

// NewSet builds a Set, rejecting unknown or duplicate phase names.
func NewSet(adapters ...Adapter) (*Set, error) {
	s := &Set{adapters: make(map[domain.PhaseName]Adapter, len(adapters))}
	for _, a := range adapters {
		name := a.Name()
		if !name.Valid() {
			return nil, fmt.Errorf("adapter for unknown phase %q", name)
		}
		if _, dup := s.adapters[name]; dup {
			return nil, fmt.Errorf("duplicate adapter for phase %q", name)
		}
		s.adapters[name] = a
	}
	return s, nil
}

// Get returns the adapter of a phase.
func (s *Set) Get(name domain.PhaseName) (Adapter, bool) {
	a, ok := s.adapters[name]
	return a, ok
}

// Covers reports whether every listed phase has an adapter.
func (s *Set) Covers(names []domain.PhaseName) error {
	for _, n := range names {
		if _, ok := s.adapters[n]; !ok {
			return fmt.Errorf("no adapter for phase %q", n)
		}
	}
	return nil
}
