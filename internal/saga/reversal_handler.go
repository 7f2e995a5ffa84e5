package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/payment-orders/internal/command"
	"github.com/example/payment-orders/internal/domain/reversal"
	"github.com/example/payment-orders/internal/infrastructure/bus"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/readmodel"
)

// ReversalHandler maintains reversals as a sub-collection embedded in the
// parent charge projection and drives the reversal saga, mirroring the charge
// flow without a settled-side terminal rejection.
type ReversalHandler struct {
	readStore  store.ReadStoreInterface
	scheduler  Scheduler
	retry      Policy
	settlement Policy
	now        nowFunc
}

func NewReversalHandler(readStore store.ReadStoreInterface, scheduler Scheduler, retry, settlement Policy) *ReversalHandler {
	return &ReversalHandler{
		readStore:  readStore,
		scheduler:  scheduler,
		retry:      retry,
		settlement: settlement,
		now:        time.Now,
	}
}

func (h *ReversalHandler) Register(b bus.MessageBus) {
	bus.Subscribe(b, reversal.EventReversalCreated, h.HandleCreated)
	bus.Subscribe(b, reversal.EventReversalProcessed, h.HandleProcessed)
	bus.Subscribe(b, reversal.EventReversalCouldNotBeProcessed, h.HandleCouldNotBeProcessed)
	bus.Subscribe(b, reversal.EventReversalSettled, h.HandleSettled)
	bus.Subscribe(b, reversal.EventReversalSettlementNotConfirmed, h.HandleSettlementNotConfirmed)
	bus.Subscribe(b, reversal.EventReversalExpired, h.HandleExpired)
}

// chargeWithReversal finds the charge projection embedding the reversal
func (h *ReversalHandler) chargeWithReversal(reversalID string) (readmodel.Charge, int, bool) {
	matches := h.readStore.GetFiltered(readmodel.CollectionCharges, func(v any) bool {
		c, ok := v.(readmodel.Charge)
		return ok && c.ReversalByID(reversalID) >= 0
	})
	if len(matches) == 0 {
		return readmodel.Charge{}, -1, false
	}
	c := matches[0].(readmodel.Charge)
	return c, c.ReversalByID(reversalID), true
}

// updateReversal applies a mutation to the embedded entry once per event
func (h *ReversalHandler) updateReversal(event store.Event, apply func(r *readmodel.ReversalEntry)) (readmodel.ReversalEntry, bool) {
	c, i, ok := h.chargeWithReversal(event.AggregateID)
	if !ok {
		log.Printf("[Saga] Reversal %s not found in any charge projection for %s, skipping", event.AggregateID, event.EventType)
		return readmodel.ReversalEntry{}, false
	}
	if alreadyApplied(event, c.Reversals[i].Version) {
		return readmodel.ReversalEntry{}, false
	}
	apply(&c.Reversals[i])
	c.Reversals[i].Version = event.Version + 1
	c.Reversals[i].UpdatedAt = event.Timestamp
	h.readStore.Set(readmodel.CollectionCharges, c.ID, c)
	return c.Reversals[i], true
}

func (h *ReversalHandler) HandleCreated(ctx context.Context, event store.Event) error {
	var data reversal.ReversalCreated
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}

	if c, i, ok := h.chargeWithReversal(event.AggregateID); ok && alreadyApplied(event, c.Reversals[i].Version) {
		return nil
	}

	conflicts := h.readStore.GetFiltered(readmodel.CollectionCharges, func(v any) bool {
		c, ok := v.(readmodel.Charge)
		if !ok || c.ApplicationKey != data.ApplicationKey {
			return false
		}
		for _, r := range c.Reversals {
			if r.ExternalKey == data.ExternalKey && r.ID != event.AggregateID {
				return true
			}
		}
		return false
	})
	if len(conflicts) > 0 {
		log.Printf("[Saga] Reversal %s duplicates external key %s, scheduling expiration", event.AggregateID, data.ExternalKey)
		env, err := command.NewEnvelope(command.TypeExpireReversal, event.AggregateID,
			uuid.NewString(), event.ApplicationKey, sagaKey(event),
			command.ExpireReversal{Reason: ReasonDuplicatedExternalKey})
		if err != nil {
			return err
		}
		return h.scheduler.RunNow(ctx, env)
	}

	parent, ok := h.getCharge(data.ChargeID)
	if !ok {
		// The charge projection lags behind; redelivery will catch up.
		return fmt.Errorf("charge projection %s not found for reversal %s", data.ChargeID, event.AggregateID)
	}
	parent.Reversals = append(parent.Reversals, readmodel.ReversalEntry{
		ID:            event.AggregateID,
		ExternalKey:   data.ExternalKey,
		AmountInCents: data.AmountInCents,
		Status:        string(reversal.StatusCreated),
		History:       []readmodel.StatusEntry{{Status: string(reversal.StatusCreated), OccurredAt: data.CreatedAt}},
		Version:       event.Version + 1,
		CreatedAt:     data.CreatedAt,
		UpdatedAt:     data.CreatedAt,
	})
	h.readStore.Set(readmodel.CollectionCharges, parent.ID, parent)

	env, err := command.NewEnvelope(command.TypeSendReversalToAcquirer, event.AggregateID,
		uuid.NewString(), event.ApplicationKey, sagaKey(event), command.SendReversalToAcquirer{})
	if err != nil {
		return err
	}
	return h.scheduler.RunNow(ctx, env)
}

func (h *ReversalHandler) getCharge(id string) (readmodel.Charge, bool) {
	v, ok := h.readStore.Get(readmodel.CollectionCharges, id)
	if !ok {
		return readmodel.Charge{}, false
	}
	c, ok := v.(readmodel.Charge)
	return c, ok
}

func (h *ReversalHandler) HandleProcessed(ctx context.Context, event store.Event) error {
	var data reversal.ReversalProcessed
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}

	_, applied := h.updateReversal(event, func(r *readmodel.ReversalEntry) {
		r.Status = string(reversal.StatusProcessed)
		r.AcquirerKey = data.AcquirerKey
		r.History = append(r.History, readmodel.StatusEntry{
			Status:     string(reversal.StatusProcessed),
			OccurredAt: data.ProcessedAt,
		})
	})
	if !applied {
		return nil
	}

	env, err := command.NewEnvelope(command.TypeVerifyReversalSettlement, event.AggregateID,
		uuid.NewString(), event.ApplicationKey, sagaKey(event), command.VerifyReversalSettlement{})
	if err != nil {
		return err
	}
	return h.scheduler.RunDelayed(ctx, h.settlement.Interval, env)
}

func (h *ReversalHandler) HandleCouldNotBeProcessed(ctx context.Context, event store.Event) error {
	var data reversal.ReversalCouldNotBeProcessed
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}

	entry, applied := h.updateReversal(event, func(r *readmodel.ReversalEntry) {
		r.Status = string(reversal.StatusNotProcessed)
		r.History = append(r.History, readmodel.StatusEntry{
			Status:     string(reversal.StatusNotProcessed),
			Error:      data.Error,
			OccurredAt: data.FailedAt,
		})
	})
	if !applied {
		return nil
	}

	attempt, firstFailureAt := failureWindow(entry.History, string(reversal.StatusNotProcessed))
	decision := h.retry.Decide(h.now(), firstFailureAt, attempt)
	if decision.Retry {
		log.Printf("[Saga] Reversal %s processing failed (attempt %d), retrying in %s", event.AggregateID, attempt, decision.Delay)
		env, err := command.NewEnvelope(command.TypeSendReversalToAcquirer, event.AggregateID,
			uuid.NewString(), event.ApplicationKey, sagaKey(event), command.SendReversalToAcquirer{})
		if err != nil {
			return err
		}
		return h.scheduler.RunDelayed(ctx, decision.Delay, env)
	}

	log.Printf("[Saga] Reversal %s exceeded the processing retry window, expiring", event.AggregateID)
	env, err := command.NewEnvelope(command.TypeExpireReversal, event.AggregateID,
		uuid.NewString(), event.ApplicationKey, sagaKey(event),
		command.ExpireReversal{Reason: "Processing retry limit exceeded"})
	if err != nil {
		return err
	}
	return h.scheduler.RunNow(ctx, env)
}

func (h *ReversalHandler) HandleSettlementNotConfirmed(ctx context.Context, event store.Event) error {
	var data reversal.ReversalSettlementNotConfirmed
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}

	entry, applied := h.updateReversal(event, func(r *readmodel.ReversalEntry) {
		r.Status = string(reversal.StatusNotSettled)
		r.History = append(r.History, readmodel.StatusEntry{
			Status:     string(reversal.StatusNotSettled),
			OccurredAt: data.VerifiedAt,
		})
	})
	if !applied {
		return nil
	}

	attempt, firstAt := failureWindow(entry.History, string(reversal.StatusNotSettled))
	decision := h.settlement.Decide(h.now(), firstAt, attempt)
	if !decision.Retry {
		log.Printf("[Saga] Reversal %s settlement still unconfirmed after the verification window, stopping", event.AggregateID)
		return nil
	}

	env, err := command.NewEnvelope(command.TypeVerifyReversalSettlement, event.AggregateID,
		uuid.NewString(), event.ApplicationKey, sagaKey(event), command.VerifyReversalSettlement{})
	if err != nil {
		return err
	}
	return h.scheduler.RunDelayed(ctx, decision.Delay, env)
}

func (h *ReversalHandler) HandleSettled(ctx context.Context, event store.Event) error {
	var data reversal.ReversalSettled
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}
	h.updateReversal(event, func(r *readmodel.ReversalEntry) {
		r.Status = string(reversal.StatusSettled)
		r.History = append(r.History, readmodel.StatusEntry{
			Status:     string(reversal.StatusSettled),
			OccurredAt: data.SettledAt,
		})
	})
	return nil
}

func (h *ReversalHandler) HandleExpired(ctx context.Context, event store.Event) error {
	var data reversal.ReversalExpired
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return err
	}
	h.updateReversal(event, func(r *readmodel.ReversalEntry) {
		r.Status = string(reversal.StatusExpired)
		r.History = append(r.History, readmodel.StatusEntry{
			Status:     string(reversal.StatusExpired),
			Error:      data.Reason,
			OccurredAt: data.ExpiredAt,
		})
	})
	return nil
}
