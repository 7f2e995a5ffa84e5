package saga

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/example/payment-orders/internal/command"
	"github.com/example/payment-orders/internal/domain/clientapp"
	"github.com/example/payment-orders/internal/infrastructure/bus"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/readmodel"
)

// ClientAppHandler keeps the client application projection in sync. Creation
// is guarded by external key uniqueness: a collision schedules a revoke
// instead of inserting a second projection, otherwise activation is scheduled
// immediately.
type ClientAppHandler struct {
	readStore store.ReadStoreInterface
	scheduler Scheduler
}

func NewClientAppHandler(readStore store.ReadStoreInterface, scheduler Scheduler) *ClientAppHandler {
	return &ClientAppHandler{readStore: readStore, scheduler: scheduler}
}

func (h *ClientAppHandler) Register(b bus.MessageBus) {
	bus.Subscribe(b, clientapp.EventClientApplicationCreated, h.HandleCreated)
	bus.Subscribe(b, clientapp.EventClientApplicationActivated, h.HandleActivated)
	bus.Subscribe(b, clientapp.EventClientApplicationCreationRevoked, h.HandleCreationRevoked)
	bus.Subscribe(b, clientapp.EventClientApplicationDeactivated, h.HandleDeactivated)
}

func (h *ClientAppHandler) getApplication(id string) (readmodel.ClientApplication, bool) {
	v, ok := h.readStore.Get(readmodel.CollectionClientApplications, id)
	if !ok {
		return readmodel.ClientApplication{}, false
	}
	a, ok := v.(readmodel.ClientApplication)
	return a, ok
}

func (h *ClientAppHandler) updateApplication(event store.Event, apply func(a *readmodel.ClientApplication)) bool {
	a, ok := h.getApplication(event.AggregateID)
	if !ok {
		log.Printf("[Saga] Client application projection %s not found for %s, skipping", event.AggregateID, event.EventType)
		return false
	}
	if alreadyApplied(event, a.Version) {
		return false
	}
	apply(&a)
	a.Version = event.Version + 1
	a.UpdatedAt = event.Timestamp
	h.readStore.Set(readmodel.CollectionClientApplications, a.ID, a)
	return true
}

func (h *ClientAppHandler) HandleCreated(ctx context.Context, event store.Event) error {
	var data clientapp.ClientApplicationCreated
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}

	if existing, ok := h.getApplication(event.AggregateID); ok && alreadyApplied(event, existing.Version) {
		return nil
	}

	conflicts := h.readStore.GetFiltered(readmodel.CollectionClientApplications, func(v any) bool {
		a, ok := v.(readmodel.ClientApplication)
		return ok && a.ID != event.AggregateID && a.ExternalKey == data.ExternalKey
	})
	if len(conflicts) > 0 {
		log.Printf("[Saga] Client application %s duplicates external key %s, scheduling revoke", event.AggregateID, data.ExternalKey)
		env, err := command.NewEnvelope(command.TypeRevokeClientApplicationCreation, event.AggregateID,
			uuid.NewString(), event.ApplicationKey, sagaKey(event),
			command.RevokeClientApplicationCreation{Reason: ReasonDuplicatedExternalKey})
		if err != nil {
			return err
		}
		return h.scheduler.RunNow(ctx, env)
	}

	h.readStore.Set(readmodel.CollectionClientApplications, event.AggregateID, readmodel.ClientApplication{
		ID:          event.AggregateID,
		ExternalKey: data.ExternalKey,
		Name:        data.Name,
		Status:      string(clientapp.StatusCreated),
		Version:     event.Version + 1,
		CreatedAt:   data.CreatedAt,
		UpdatedAt:   data.CreatedAt,
	})

	env, err := command.NewEnvelope(command.TypeActivateClientApplication, event.AggregateID,
		uuid.NewString(), event.ApplicationKey, sagaKey(event), command.ActivateClientApplication{})
	if err != nil {
		return err
	}
	return h.scheduler.RunNow(ctx, env)
}

func (h *ClientAppHandler) HandleActivated(ctx context.Context, event store.Event) error {
	h.updateApplication(event, func(a *readmodel.ClientApplication) {
		a.Status = string(clientapp.StatusActive)
	})
	return nil
}

func (h *ClientAppHandler) HandleCreationRevoked(ctx context.Context, event store.Event) error {
	h.updateApplication(event, func(a *readmodel.ClientApplication) {
		a.Status = string(clientapp.StatusRevoked)
	})
	return nil
}

func (h *ClientAppHandler) HandleDeactivated(ctx context.Context, event store.Event) error {
	h.updateApplication(event, func(a *readmodel.ClientApplication) {
		a.Status = string(clientapp.StatusDeactivated)
	})
	return nil
}
