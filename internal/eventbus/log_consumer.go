package eventbus

import (
	"context"
	"log"
	"strings"

	"github.com/matthewbaird/onboarding/internal/event"
)

// LogConsumer writes one line per onboarding event, keyed by session.
type LogConsumer struct{}

func NewLogConsumer() *LogConsumer { return &LogConsumer{} }

func (c *LogConsumer) HandleEvent(_ context.Context, evt event.DomainEvent) error {
	refs := make([]string, 0, len(evt.AffectedEntities))
	for _, ae := range evt.AffectedEntities {
		refs = append(refs, ae.Ref.String())
	}
	log.Printf("onboarding event: session=%s %s (%s, %s) on %s: %s",
		evt.Session, evt.EventType, evt.Category, evt.Weight, strings.Join(refs, ","), evt.Summary)
	return nil
}
