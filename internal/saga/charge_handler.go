package saga

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/payment-orders/internal/command"
	"github.com/example/payment-orders/internal/domain/charge"
	"github.com/example/payment-orders/internal/infrastructure/bus"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/readmodel"
)

// ChargeHandler keeps the charge projection in sync and drives the charge
// saga: submit to the acquirer after creation, verify settlement after
// processing, retry failures inside the retry window, expire outside it.
type ChargeHandler struct {
	readStore  store.ReadStoreInterface
	scheduler  Scheduler
	retry      Policy
	settlement Policy
	now        nowFunc
}

func NewChargeHandler(readStore store.ReadStoreInterface, scheduler Scheduler, retry, settlement Policy) *ChargeHandler {
	return &ChargeHandler{
		readStore:  readStore,
		scheduler:  scheduler,
		retry:      retry,
		settlement: settlement,
		now:        time.Now,
	}
}

// Register binds the handler to every charge event type on the event channel
func (h *ChargeHandler) Register(b bus.MessageBus) {
	bus.Subscribe(b, charge.EventChargeCreated, h.HandleCreated)
	bus.Subscribe(b, charge.EventChargeProcessed, h.HandleProcessed)
	bus.Subscribe(b, charge.EventChargeCouldNotBeProcessed, h.HandleCouldNotBeProcessed)
	bus.Subscribe(b, charge.EventChargeSettled, h.HandleSettled)
	bus.Subscribe(b, charge.EventChargeSettlementNotConfirmed, h.HandleSettlementNotConfirmed)
	bus.Subscribe(b, charge.EventChargeExpired, h.HandleExpired)
	bus.Subscribe(b, charge.EventChargeRejected, h.HandleRejected)
}

func (h *ChargeHandler) getCharge(id string) (readmodel.Charge, bool) {
	v, ok := h.readStore.Get(readmodel.CollectionCharges, id)
	if !ok {
		return readmodel.Charge{}, false
	}
	c, ok := v.(readmodel.Charge)
	return c, ok
}

// updateCharge applies a mutation once per event. Returns false when the
// projection is missing or the event was already applied.
func (h *ChargeHandler) updateCharge(event store.Event, apply func(c *readmodel.Charge)) bool {
	c, ok := h.getCharge(event.AggregateID)
	if !ok {
		log.Printf("[Saga] Charge projection %s not found for %s, skipping", event.AggregateID, event.EventType)
		return false
	}
	if alreadyApplied(event, c.Version) {
		return false
	}
	apply(&c)
	c.Version = event.Version + 1
	c.UpdatedAt = event.Timestamp
	h.readStore.Set(readmodel.CollectionCharges, c.ID, c)
	return true
}

func (h *ChargeHandler) HandleCreated(ctx context.Context, event store.Event) error {
	var data charge.ChargeCreated
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}

	if existing, ok := h.getCharge(event.AggregateID); ok && alreadyApplied(event, existing.Version) {
		return nil
	}

	conflicts := h.readStore.GetFiltered(readmodel.CollectionCharges, func(v any) bool {
		c, ok := v.(readmodel.Charge)
		return ok && c.ID != event.AggregateID &&
			c.ApplicationKey == data.ApplicationKey &&
			c.ExternalKey == data.ExternalKey
	})
	if len(conflicts) > 0 {
		log.Printf("[Saga] Charge %s duplicates external key %s, scheduling rejection", event.AggregateID, data.ExternalKey)
		env, err := command.NewEnvelope(command.TypeRejectCharge, event.AggregateID,
			uuid.NewString(), event.ApplicationKey, sagaKey(event),
			command.RejectCharge{Reason: ReasonDuplicatedExternalKey})
		if err != nil {
			return err
		}
		return h.scheduler.RunNow(ctx, env)
	}

	h.readStore.Set(readmodel.CollectionCharges, event.AggregateID, readmodel.Charge{
		ID:             event.AggregateID,
		ApplicationKey: data.ApplicationKey,
		ExternalKey:    data.ExternalKey,
		Method:         string(data.Method),
		AmountInCents:  data.AmountInCents,
		Currency:       data.Currency,
		Status:         string(charge.StatusCreated),
		History:        []readmodel.StatusEntry{{Status: string(charge.StatusCreated), OccurredAt: data.CreatedAt}},
		Reversals:      []readmodel.ReversalEntry{},
		Version:        event.Version + 1,
		CreatedAt:      data.CreatedAt,
		UpdatedAt:      data.CreatedAt,
	})

	env, err := command.NewEnvelope(command.TypeSendChargeToAcquirer, event.AggregateID,
		uuid.NewString(), event.ApplicationKey, sagaKey(event), command.SendChargeToAcquirer{})
	if err != nil {
		return err
	}
	return h.scheduler.RunNow(ctx, env)
}

func (h *ChargeHandler) HandleProcessed(ctx context.Context, event store.Event) error {
	var data charge.ChargeProcessed
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}

	applied := h.updateCharge(event, func(c *readmodel.Charge) {
		c.Status = string(charge.StatusProcessed)
		c.AcquirerKey = data.AcquirerKey
		c.History = append(c.History, readmodel.StatusEntry{
			Status:     string(charge.StatusProcessed),
			OccurredAt: data.ProcessedAt,
		})
	})
	if !applied {
		return nil
	}

	env, err := command.NewEnvelope(command.TypeVerifyChargeSettlement, event.AggregateID,
		uuid.NewString(), event.ApplicationKey, sagaKey(event), command.VerifyChargeSettlement{})
	if err != nil {
		return err
	}
	return h.scheduler.RunDelayed(ctx, h.settlement.Interval, env)
}

func (h *ChargeHandler) HandleCouldNotBeProcessed(ctx context.Context, event store.Event) error {
	var data charge.ChargeCouldNotBeProcessed
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}

	var history []readmodel.StatusEntry
	applied := h.updateCharge(event, func(c *readmodel.Charge) {
		c.Status = string(charge.StatusNotProcessed)
		c.History = append(c.History, readmodel.StatusEntry{
			Status:     string(charge.StatusNotProcessed),
			Error:      data.Error,
			OccurredAt: data.FailedAt,
		})
		history = c.History
	})
	if !applied {
		return nil
	}

	attempt, firstFailureAt := failureWindow(history, string(charge.StatusNotProcessed))
	decision := h.retry.Decide(h.now(), firstFailureAt, attempt)
	if decision.Retry {
		log.Printf("[Saga] Charge %s processing failed (attempt %d), retrying in %s", event.AggregateID, attempt, decision.Delay)
		env, err := command.NewEnvelope(command.TypeSendChargeToAcquirer, event.AggregateID,
			uuid.NewString(), event.ApplicationKey, sagaKey(event), command.SendChargeToAcquirer{})
		if err != nil {
			return err
		}
		return h.scheduler.RunDelayed(ctx, decision.Delay, env)
	}

	log.Printf("[Saga] Charge %s exceeded the processing retry window, expiring", event.AggregateID)
	env, err := command.NewEnvelope(command.TypeExpireCharge, event.AggregateID,
		uuid.NewString(), event.ApplicationKey, sagaKey(event),
		command.ExpireCharge{Reason: "Processing retry limit exceeded"})
	if err != nil {
		return err
	}
	return h.scheduler.RunNow(ctx, env)
}

func (h *ChargeHandler) HandleSettlementNotConfirmed(ctx context.Context, event store.Event) error {
	var data charge.ChargeSettlementNotConfirmed
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}

	var history []readmodel.StatusEntry
	applied := h.updateCharge(event, func(c *readmodel.Charge) {
		c.Status = string(charge.StatusNotSettled)
		c.History = append(c.History, readmodel.StatusEntry{
			Status:     string(charge.StatusNotSettled),
			OccurredAt: data.VerifiedAt,
		})
		history = c.History
	})
	if !applied {
		return nil
	}

	attempt, firstAt := failureWindow(history, string(charge.StatusNotSettled))
	decision := h.settlement.Decide(h.now(), firstAt, attempt)
	if !decision.Retry {
		// The window ran out; ops has to look at the charge by hand.
		log.Printf("[Saga] Charge %s settlement still unconfirmed after the verification window, stopping", event.AggregateID)
		return nil
	}

	env, err := command.NewEnvelope(command.TypeVerifyChargeSettlement, event.AggregateID,
		uuid.NewString(), event.ApplicationKey, sagaKey(event), command.VerifyChargeSettlement{})
	if err != nil {
		return err
	}
	return h.scheduler.RunDelayed(ctx, decision.Delay, env)
}

func (h *ChargeHandler) HandleSettled(ctx context.Context, event store.Event) error {
	var data charge.ChargeSettled
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}
	h.updateCharge(event, func(c *readmodel.Charge) {
		c.Status = string(charge.StatusSettled)
		c.History = append(c.History, readmodel.StatusEntry{
			Status:     string(charge.StatusSettled),
			OccurredAt: data.SettledAt,
		})
	})
	return nil
}

func (h *ChargeHandler) HandleExpired(ctx context.Context, event store.Event) error {
	var data charge.ChargeExpired
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}
	h.updateCharge(event, func(c *readmodel.Charge) {
		c.Status = string(charge.StatusExpired)
		c.History = append(c.History, readmodel.StatusEntry{
			Status:     string(charge.StatusExpired),
			Error:      data.Reason,
			OccurredAt: data.ExpiredAt,
		})
	})
	return nil
}

func (h *ChargeHandler) HandleRejected(ctx context.Context, event store.Event) error {
	var data charge.ChargeRejected
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}
	h.updateCharge(event, func(c *readmodel.Charge) {
		c.Status = string(charge.StatusRejected)
		c.History = append(c.History, readmodel.StatusEntry{
			Status:     string(charge.StatusRejected),
			Error:      data.Reason,
			OccurredAt: data.RejectedAt,
		})
	})
	return nil
}

// failureWindow derives the retry inputs from projection history: the attempt
// number counts entries with the given status (the current failure included)
// and the window anchors at the first of them.
func failureWindow(history []readmodel.StatusEntry, status string) (attempt int, firstAt time.Time) {
	for _, entry := range history {
		if entry.Status != status {
			continue
		}
		if attempt == 0 {
			firstAt = entry.OccurredAt
		}
		attempt++
	}
	return attempt, firstAt
}
