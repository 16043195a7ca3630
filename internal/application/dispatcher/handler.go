package dispatcher

import (
	"context"

	"github.com/garyjia/agreement-validation/internal/domain/event"
)

// Handler reacts to one delivered event
type Handler func(ctx context.Context, evt *event.Event) error

// Subscription describes a registered handler. Empty Types means every event.
type Subscription struct {
	Name  string       `json:"name"`
	Types []event.Type `json:"types,omitempty"`
}

// Matches reports whether the subscription receives events of type t
func (s Subscription) Matches(t event.Type) bool {
	if len(s.Types) == 0 {
		return true
	}
	for _, want := range s.Types {
		if want == t {
			return true
		}
	}
	return false
}

type subscriber struct {
	Subscription
	handler Handler
}
