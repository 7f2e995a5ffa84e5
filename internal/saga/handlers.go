package saga

import (
	"time"

	"github.com/example/payment-orders/internal/infrastructure/store"
)

// ReasonDuplicatedExternalKey is the revoke reason recorded when a creation
// event collides with an existing projection on its external key.
const ReasonDuplicatedExternalKey = "Duplicated ExternalKey"

// alreadyApplied reports whether the projection has seen this event. Versions
// are 0-based, so an event is applied when its successor version does not
// exceed the projection's. Deliveries may arrive more than once and out of
// order; this check is what keeps re-apply harmless.
func alreadyApplied(event store.Event, projectionVersion int) bool {
	return event.Version+1 <= projectionVersion
}

// sagaKey identifies the saga instance a follow-up command belongs to
func sagaKey(event store.Event) string {
	if event.SagaProcessKey != "" {
		return event.SagaProcessKey
	}
	return event.AggregateID
}

// nowFunc lets tests pin the clock
type nowFunc func() time.Time
