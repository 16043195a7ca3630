package workflow

import (
	"fmt"
	"sort"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// Guard vetoes a transition for one submission. A nil error lets it fire.
type Guard func(sub *entity.Submission) error

type edge struct {
	to    entity.SubmissionStatus
	guard Guard
}

type table map[entity.SubmissionStatus]map[Trigger]edge

// Lifecycle is an immutable transition table over submission statuses
type Lifecycle struct {
	edges table
	known map[entity.SubmissionStatus]bool
}

// Builder collects the transitions of a Lifecycle
type Builder struct {
	edges table
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{edges: make(table)}
}

// Permit adds an unguarded transition
func (b *Builder) Permit(from entity.SubmissionStatus, trigger Trigger, to entity.SubmissionStatus) *Builder {
	return b.PermitIf(from, trigger, to, nil)
}

// PermitIf adds a transition that fires only when guard allows it.
// A (from, trigger) pair has a single target; later calls replace earlier ones.
func (b *Builder) PermitIf(from entity.SubmissionStatus, trigger Trigger, to entity.SubmissionStatus, guard Guard) *Builder {
	if b.edges[from] == nil {
		b.edges[from] = make(map[Trigger]edge)
	}
	b.edges[from][trigger] = edge{to: to, guard: guard}
	return b
}

// Build freezes the collected transitions. The builder may be reused.
func (b *Builder) Build() *Lifecycle {
	l := &Lifecycle{
		edges: make(table, len(b.edges)),
		known: make(map[entity.SubmissionStatus]bool),
	}
	for from, triggers := range b.edges {
		l.known[from] = true
		l.edges[from] = make(map[Trigger]edge, len(triggers))
		for trigger, e := range triggers {
			l.edges[from][trigger] = e
			l.known[e.to] = true
		}
	}
	return l
}

// Fire returns the status sub moves to under trigger. The submission is not modified.
func (l *Lifecycle) Fire(sub *entity.Submission, trigger Trigger) (entity.SubmissionStatus, error) {
	e, ok := l.edges[sub.Status][trigger]
	if !ok {
		return sub.Status, fmt.Errorf("%w: cannot %s a submission in %s", ErrInvalidTransition, trigger, sub.Status)
	}
	if e.guard != nil {
		if err := e.guard(sub); err != nil {
			return sub.Status, fmt.Errorf("%w: %s on %s: %v", ErrGuardFailed, trigger, sub.ID, err)
		}
	}
	return e.to, nil
}

// Permits reports whether trigger is configured from status. Guards are not consulted.
func (l *Lifecycle) Permits(status entity.SubmissionStatus, trigger Trigger) bool {
	_, ok := l.edges[status][trigger]
	return ok
}

// Actions lists the triggers configured from status in a stable order
func (l *Lifecycle) Actions(status entity.SubmissionStatus) []Trigger {
	actions := make([]Trigger, 0, len(l.edges[status]))
	for trigger := range l.edges[status] {
		actions = append(actions, trigger)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// IsFinal reports whether status is a known status with no way out
func (l *Lifecycle) IsFinal(status entity.SubmissionStatus) bool {
	return l.known[status] && len(l.edges[status]) == 0
}
