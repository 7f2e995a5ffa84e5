package saga

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/example/payment-orders/internal/command"
	"github.com/example/payment-orders/internal/domain/product"
	"github.com/example/payment-orders/internal/infrastructure/bus"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/readmodel"
)

// ProductHandler keeps the payment product projection in sync. Uniqueness is
// scoped per application key: the same external key may exist for different
// tenants.
type ProductHandler struct {
	readStore store.ReadStoreInterface
	scheduler Scheduler
}

func NewProductHandler(readStore store.ReadStoreInterface, scheduler Scheduler) *ProductHandler {
	return &ProductHandler{readStore: readStore, scheduler: scheduler}
}

func (h *ProductHandler) Register(b bus.MessageBus) {
	bus.Subscribe(b, product.EventProductCreated, h.HandleCreated)
	bus.Subscribe(b, product.EventProductActivated, h.HandleActivated)
	bus.Subscribe(b, product.EventProductCreationRevoked, h.HandleCreationRevoked)
	bus.Subscribe(b, product.EventProductDeactivated, h.HandleDeactivated)
}

func (h *ProductHandler) getProduct(id string) (readmodel.Product, bool) {
	v, ok := h.readStore.Get(readmodel.CollectionProducts, id)
	if !ok {
		return readmodel.Product{}, false
	}
	p, ok := v.(readmodel.Product)
	return p, ok
}

func (h *ProductHandler) updateProduct(event store.Event, apply func(p *readmodel.Product)) bool {
	p, ok := h.getProduct(event.AggregateID)
	if !ok {
		log.Printf("[Saga] Product projection %s not found for %s, skipping", event.AggregateID, event.EventType)
		return false
	}
	if alreadyApplied(event, p.Version) {
		return false
	}
	apply(&p)
	p.Version = event.Version + 1
	p.UpdatedAt = event.Timestamp
	h.readStore.Set(readmodel.CollectionProducts, p.ID, p)
	return true
}

func (h *ProductHandler) HandleCreated(ctx context.Context, event store.Event) error {
	var data product.ProductCreated
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}

	if existing, ok := h.getProduct(event.AggregateID); ok && alreadyApplied(event, existing.Version) {
		return nil
	}

	conflicts := h.readStore.GetFiltered(readmodel.CollectionProducts, func(v any) bool {
		p, ok := v.(readmodel.Product)
		return ok && p.ID != event.AggregateID &&
			p.ApplicationKey == data.ApplicationKey &&
			p.ExternalKey == data.ExternalKey
	})
	if len(conflicts) > 0 {
		log.Printf("[Saga] Product %s duplicates external key %s, scheduling revoke", event.AggregateID, data.ExternalKey)
		env, err := command.NewEnvelope(command.TypeRevokeProductCreation, event.AggregateID,
			uuid.NewString(), event.ApplicationKey, sagaKey(event),
			command.RevokeProductCreation{Reason: ReasonDuplicatedExternalKey})
		if err != nil {
			return err
		}
		return h.scheduler.RunNow(ctx, env)
	}

	h.readStore.Set(readmodel.CollectionProducts, event.AggregateID, readmodel.Product{
		ID:             event.AggregateID,
		ApplicationKey: data.ApplicationKey,
		ExternalKey:    data.ExternalKey,
		Name:           data.Name,
		Method:         data.Method,
		Status:         string(product.StatusCreated),
		Version:        event.Version + 1,
		CreatedAt:      data.CreatedAt,
		UpdatedAt:      data.CreatedAt,
	})

	env, err := command.NewEnvelope(command.TypeActivateProduct, event.AggregateID,
		uuid.NewString(), event.ApplicationKey, sagaKey(event), command.ActivateProduct{})
	if err != nil {
		return err
	}
	return h.scheduler.RunNow(ctx, env)
}

func (h *ProductHandler) HandleActivated(ctx context.Context, event store.Event) error {
	h.updateProduct(event, func(p *readmodel.Product) {
		p.Status = string(product.StatusActive)
	})
	return nil
}

func (h *ProductHandler) HandleCreationRevoked(ctx context.Context, event store.Event) error {
	h.updateProduct(event, func(p *readmodel.Product) {
		p.Status = string(product.StatusRevoked)
	})
	return nil
}

func (h *ProductHandler) HandleDeactivated(ctx context.Context, event store.Event) error {
	h.updateProduct(event, func(p *readmodel.Product) {
		p.Status = string(product.StatusDeactivated)
	})
	return nil
}
