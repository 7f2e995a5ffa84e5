package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/payment-orders/internal/domain/charge"
	"github.com/example/payment-orders/internal/domain/clientapp"
	"github.com/example/payment-orders/internal/email"
	"github.com/example/payment-orders/internal/infrastructure/bus"
	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/readmodel"
)

// Handler emails ops on terminal failure events
type Handler struct {
	emailService *email.Service
	readStore    store.ReadStoreInterface
	recipient    string
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service, readStore store.ReadStoreInterface, recipient string) *Handler {
	return &Handler{
		emailService: emailSvc,
		readStore:    readStore,
		recipient:    recipient,
	}
}

// Register binds the handler to the alerting event types
func (h *Handler) Register(b bus.MessageBus) {
	bus.Subscribe(b, charge.EventChargeExpired, h.HandleChargeExpired)
	bus.Subscribe(b, clientapp.EventClientApplicationCreationRevoked, h.HandleCreationRevoked)
}

func (h *Handler) HandleChargeExpired(ctx context.Context, event store.Event) error {
	var e charge.ChargeExpired
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal ChargeExpired event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing ChargeExpired event for charge %s", e.ChargeID)

	externalKey := ""
	var amountInCents int64
	currency := ""
	if data, exists := h.readStore.Get(readmodel.CollectionCharges, e.ChargeID); exists {
		if c, ok := data.(readmodel.Charge); ok {
			externalKey = c.ExternalKey
			amountInCents = c.AmountInCents
			currency = c.Currency
		}
	}

	if err := h.emailService.SendChargeExpired(h.recipient, e.ChargeID, externalKey, e.Reason, amountInCents, currency); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", h.recipient, err)
		return err
	}

	log.Printf("[Notifier] Charge expiration alert sent to %s for charge %s", h.recipient, e.ChargeID)
	return nil
}

func (h *Handler) HandleCreationRevoked(ctx context.Context, event store.Event) error {
	var e clientapp.ClientApplicationCreationRevoked
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal ClientApplicationCreationRevoked event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing ClientApplicationCreationRevoked event for application %s", e.ApplicationID)

	externalKey := ""
	if data, exists := h.readStore.Get(readmodel.CollectionClientApplications, e.ApplicationID); exists {
		if a, ok := data.(readmodel.ClientApplication); ok {
			externalKey = a.ExternalKey
		}
	}

	if err := h.emailService.SendCreationRevoked(h.recipient, e.ApplicationID, externalKey, e.Reason); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", h.recipient, err)
		return err
	}

	log.Printf("[Notifier] Creation revoked alert sent to %s for application %s", h.recipient, e.ApplicationID)
	return nil
}
