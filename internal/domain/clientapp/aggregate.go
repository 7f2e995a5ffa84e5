package clientapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/payment-orders/internal/domain/aggregate"
	"github.com/example/payment-orders/internal/infrastructure/store"
)

const AggregateType = "ClientApplication"

type Status string

const (
	StatusCreated     Status = "created"
	StatusActive      Status = "active"
	StatusRevoked     Status = "revoked"
	StatusDeactivated Status = "deactivated"
)

var (
	ErrInvalidExternalKey = errors.New("client application external key is required")
	ErrInvalidName        = errors.New("client application name is required")
	ErrInvalidStatus      = errors.New("invalid client application status transition")
	ErrAlreadyRevoked     = errors.New("client application creation was revoked")
)

var validTransitions = map[Status][]Status{
	StatusCreated:     {StatusActive, StatusRevoked},
	StatusActive:      {StatusDeactivated},
	StatusRevoked:     {}, // terminal state
	StatusDeactivated: {}, // terminal state
}

type ClientApplication struct {
	aggregate.Root

	ID          string    `json:"id"`
	ExternalKey string    `json:"external_key"`
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func New() *ClientApplication { return &ClientApplication{} }

func (a *ClientApplication) GetID() string { return a.ID }

func (a *ClientApplication) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[a.Status]
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

func (a *ClientApplication) transitionError(target Status) error {
	if a.Status == StatusRevoked {
		return ErrAlreadyRevoked
	}
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, a.Status, target)
}

// ApplyEvent applies a single event to the client application state
func (a *ClientApplication) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventClientApplicationCreated:
		var data ClientApplicationCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.ID = data.ApplicationID
		a.ExternalKey = data.ExternalKey
		a.Name = data.Name
		a.Status = StatusCreated
		a.CreatedAt = data.CreatedAt
		a.UpdatedAt = data.CreatedAt
	case EventClientApplicationActivated:
		var data ClientApplicationActivated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Status = StatusActive
		a.UpdatedAt = data.ActivatedAt
	case EventClientApplicationCreationRevoked:
		var data ClientApplicationCreationRevoked
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Status = StatusRevoked
		a.UpdatedAt = data.RevokedAt
	case EventClientApplicationDeactivated:
		var data ClientApplicationDeactivated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.Status = StatusDeactivated
		a.UpdatedAt = data.DeactivatedAt
	}
	a.SetVersion(event.Version + 1)
	return nil
}

// Create starts a new client application stream
func Create(keys aggregate.Keys, applicationID, externalKey, name string) (*ClientApplication, error) {
	if externalKey == "" {
		return nil, ErrInvalidExternalKey
	}
	if name == "" {
		return nil, ErrInvalidName
	}

	a := New()
	err := aggregate.Raise(a, EventClientApplicationCreated, keys, ClientApplicationCreated{
		ApplicationID: applicationID,
		ExternalKey:   externalKey,
		Name:          name,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Activate marks the application usable after the saga confirmed uniqueness
func (a *ClientApplication) Activate(keys aggregate.Keys) error {
	if !a.CanTransitionTo(StatusActive) {
		return a.transitionError(StatusActive)
	}

	return aggregate.Raise(a, EventClientApplicationActivated, keys, ClientApplicationActivated{
		ApplicationID: a.ID,
		ActivatedAt:   time.Now(),
	})
}

// RevokeCreation rolls back a creation that conflicted with an existing external key
func (a *ClientApplication) RevokeCreation(keys aggregate.Keys, reason string) error {
	if !a.CanTransitionTo(StatusRevoked) {
		return a.transitionError(StatusRevoked)
	}

	return aggregate.Raise(a, EventClientApplicationCreationRevoked, keys, ClientApplicationCreationRevoked{
		ApplicationID: a.ID,
		Reason:        reason,
		RevokedAt:     time.Now(),
	})
}

// Deactivate retires an active application
func (a *ClientApplication) Deactivate(keys aggregate.Keys, reason string) error {
	if !a.CanTransitionTo(StatusDeactivated) {
		return a.transitionError(StatusDeactivated)
	}

	return aggregate.Raise(a, EventClientApplicationDeactivated, keys, ClientApplicationDeactivated{
		ApplicationID: a.ID,
		Reason:        reason,
		DeactivatedAt: time.Now(),
	})
}
