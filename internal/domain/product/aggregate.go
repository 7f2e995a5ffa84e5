package product

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/payment-orders/internal/domain/aggregate"
	"github.com/example/payment-orders/internal/infrastructure/store"
)

const AggregateType = "PaymentProduct"

type Status string

const (
	StatusCreated     Status = "created"
	StatusActive      Status = "active"
	StatusRevoked     Status = "revoked"
	StatusDeactivated Status = "deactivated"
)

var (
	ErrInvalidName        = errors.New("payment product name is required")
	ErrInvalidExternalKey = errors.New("payment product external key is required")
	ErrInvalidStatus      = errors.New("invalid payment product status transition")
)

var validTransitions = map[Status][]Status{
	StatusCreated:     {StatusActive, StatusRevoked},
	StatusActive:      {StatusDeactivated},
	StatusRevoked:     {}, // terminal state
	StatusDeactivated: {}, // terminal state
}

// Product is a payment product a client application can charge against
type Product struct {
	aggregate.Root

	ID             string    `json:"id"`
	ApplicationKey string    `json:"application_key"`
	ExternalKey    string    `json:"external_key"`
	Name           string    `json:"name"`
	Method         string    `json:"method"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func New() *Product { return &Product{} }

func (p *Product) GetID() string { return p.ID }

func (p *Product) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[p.Status]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// ApplyEvent applies a single event to the product state
func (p *Product) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventProductCreated:
		var data ProductCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.ID = data.ProductID
		p.ApplicationKey = data.ApplicationKey
		p.ExternalKey = data.ExternalKey
		p.Name = data.Name
		p.Method = data.Method
		p.Status = StatusCreated
		p.CreatedAt = data.CreatedAt
		p.UpdatedAt = data.CreatedAt
	case EventProductActivated:
		var data ProductActivated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.Status = StatusActive
		p.UpdatedAt = data.ActivatedAt
	case EventProductCreationRevoked:
		var data ProductCreationRevoked
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.Status = StatusRevoked
		p.UpdatedAt = data.RevokedAt
	case EventProductDeactivated:
		var data ProductDeactivated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.Status = StatusDeactivated
		p.UpdatedAt = data.DeactivatedAt
	}
	p.SetVersion(event.Version + 1)
	return nil
}

// Create starts a new payment product stream
func Create(keys aggregate.Keys, productID, externalKey, name, method string) (*Product, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	if externalKey == "" {
		return nil, ErrInvalidExternalKey
	}

	p := New()
	err := aggregate.Raise(p, EventProductCreated, keys, ProductCreated{
		ProductID:      productID,
		ApplicationKey: keys.ApplicationKey,
		ExternalKey:    externalKey,
		Name:           name,
		Method:         method,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Activate marks the product usable after the saga confirmed uniqueness
func (p *Product) Activate(keys aggregate.Keys) error {
	if !p.CanTransitionTo(StatusActive) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, p.Status, StatusActive)
	}

	return aggregate.Raise(p, EventProductActivated, keys, ProductActivated{
		ProductID:   p.ID,
		ActivatedAt: time.Now(),
	})
}

// RevokeCreation rolls back a creation that conflicted with an existing external key
func (p *Product) RevokeCreation(keys aggregate.Keys, reason string) error {
	if !p.CanTransitionTo(StatusRevoked) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, p.Status, StatusRevoked)
	}

	return aggregate.Raise(p, EventProductCreationRevoked, keys, ProductCreationRevoked{
		ProductID: p.ID,
		Reason:    reason,
		RevokedAt: time.Now(),
	})
}

// Deactivate retires an active product
func (p *Product) Deactivate(keys aggregate.Keys, reason string) error {
	if !p.CanTransitionTo(StatusDeactivated) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, p.Status, StatusDeactivated)
	}

	return aggregate.Raise(p, EventProductDeactivated, keys, ProductDeactivated{
		ProductID:     p.ID,
		Reason:        reason,
		DeactivatedAt: time.Now(),
	})
}
