package reversal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/payment-orders/internal/acquirer"
	"github.com/example/payment-orders/internal/domain/aggregate"
	"github.com/example/payment-orders/internal/infrastructure/store"
)

const AggregateType = "Reversal"

type Status string

const (
	StatusCreated      Status = "created"
	StatusProcessed    Status = "processed"
	StatusNotProcessed Status = "not_processed"
	StatusSettled      Status = "settled"
	StatusNotSettled   Status = "not_settled"
	StatusExpired      Status = "expired"
)

var (
	ErrInvalidAmount   = errors.New("reversal amount must be positive")
	ErrInvalidChargeID = errors.New("reversal charge id is required")
	ErrInvalidStatus   = errors.New("invalid reversal status transition")
	ErrReversalSettled = errors.New("reversal is already settled")
	ErrReversalExpired = errors.New("reversal is already expired")
)

var validTransitions = map[Status][]Status{
	StatusCreated:      {StatusProcessed, StatusNotProcessed, StatusExpired},
	StatusNotProcessed: {StatusProcessed, StatusNotProcessed, StatusExpired},
	StatusProcessed:    {StatusSettled, StatusNotSettled},
	StatusNotSettled:   {StatusSettled, StatusNotSettled, StatusExpired},
	StatusSettled:      {}, // terminal state
	StatusExpired:      {}, // terminal state
}

type Reversal struct {
	aggregate.Root

	ID                 string    `json:"id"`
	ChargeID           string    `json:"charge_id"`
	ApplicationKey     string    `json:"application_key"`
	ExternalKey        string    `json:"external_key"`
	ChargeAcquirerKey  string    `json:"charge_acquirer_key"`
	AcquirerKey        string    `json:"acquirer_key"`
	AmountInCents      int64     `json:"amount_in_cents"`
	Status             Status    `json:"status"`
	LastError          string    `json:"last_error"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func New() *Reversal { return &Reversal{} }

func (r *Reversal) GetID() string { return r.ID }

func (r *Reversal) CanTransitionTo(target Status) bool {
	allowed, exists := validTransitions[r.Status]
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

func (r *Reversal) transitionError(target Status) error {
	switch r.Status {
	case StatusSettled:
		return ErrReversalSettled
	case StatusExpired:
		return ErrReversalExpired
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, r.Status, target)
	}
}

// ApplyEvent applies a single event to the reversal state
func (r *Reversal) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventReversalCreated:
		var data ReversalCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		r.ID = data.ReversalID
		r.ChargeID = data.ChargeID
		r.ApplicationKey = data.ApplicationKey
		r.ExternalKey = data.ExternalKey
		r.ChargeAcquirerKey = data.AcquirerKey
		r.AmountInCents = data.AmountInCents
		r.Status = StatusCreated
		r.CreatedAt = data.CreatedAt
		r.UpdatedAt = data.CreatedAt
	case EventReversalProcessed:
		var data ReversalProcessed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		r.Status = StatusProcessed
		r.AcquirerKey = data.AcquirerKey
		r.LastError = ""
		r.UpdatedAt = data.ProcessedAt
	case EventReversalCouldNotBeProcessed:
		var data ReversalCouldNotBeProcessed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		r.Status = StatusNotProcessed
		r.LastError = data.Error
		r.UpdatedAt = data.FailedAt
	case EventReversalSettled:
		var data ReversalSettled
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		r.Status = StatusSettled
		r.UpdatedAt = data.SettledAt
	case EventReversalSettlementNotConfirmed:
		var data ReversalSettlementNotConfirmed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		r.Status = StatusNotSettled
		r.UpdatedAt = data.VerifiedAt
	case EventReversalExpired:
		var data ReversalExpired
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		r.Status = StatusExpired
		r.UpdatedAt = data.ExpiredAt
	}
	r.SetVersion(event.Version + 1)
	return nil
}

// Create starts a new reversal stream for a charge
func Create(keys aggregate.Keys, reversalID, chargeID, externalKey, chargeAcquirerKey string, amountInCents int64) (*Reversal, error) {
	if amountInCents <= 0 {
		return nil, ErrInvalidAmount
	}
	if chargeID == "" {
		return nil, ErrInvalidChargeID
	}

	r := New()
	err := aggregate.Raise(r, EventReversalCreated, keys, ReversalCreated{
		ReversalID:     reversalID,
		ChargeID:       chargeID,
		ApplicationKey: keys.ApplicationKey,
		ExternalKey:    externalKey,
		AcquirerKey:    chargeAcquirerKey,
		AmountInCents:  amountInCents,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// SendToAcquirer submits the reversal and records the outcome as an event
func (r *Reversal) SendToAcquirer(ctx context.Context, keys aggregate.Keys, client acquirer.Client) error {
	if !r.CanTransitionTo(StatusProcessed) {
		return r.transitionError(StatusProcessed)
	}

	result, err := client.SubmitReversal(ctx, acquirer.ReversalRequest{
		ReversalKey:   r.ID,
		ChargeKey:     r.ChargeID,
		AcquirerKey:   r.ChargeAcquirerKey,
		AmountInCents: r.AmountInCents,
	})
	if err != nil {
		return fmt.Errorf("acquirer submit failed: %w", err)
	}

	if result.Status == acquirer.StatusAccepted {
		return aggregate.Raise(r, EventReversalProcessed, keys, ReversalProcessed{
			ReversalID:  r.ID,
			AcquirerKey: result.AcquirerKey,
			ProcessedAt: time.Now(),
		})
	}
	return aggregate.Raise(r, EventReversalCouldNotBeProcessed, keys, ReversalCouldNotBeProcessed{
		ReversalID: r.ID,
		Error:      result.Error,
		FailedAt:   time.Now(),
	})
}

// VerifySettlement asks the acquirer whether the reversal settled
func (r *Reversal) VerifySettlement(ctx context.Context, keys aggregate.Keys, client acquirer.Client) error {
	if !r.CanTransitionTo(StatusSettled) {
		return r.transitionError(StatusSettled)
	}

	result, err := client.VerifySettlement(ctx, r.AcquirerKey)
	if err != nil {
		return fmt.Errorf("acquirer settlement verification failed: %w", err)
	}

	if result.Settled {
		return aggregate.Raise(r, EventReversalSettled, keys, ReversalSettled{
			ReversalID: r.ID,
			SettledAt:  result.SettledAt,
		})
	}
	return aggregate.Raise(r, EventReversalSettlementNotConfirmed, keys, ReversalSettlementNotConfirmed{
		ReversalID: r.ID,
		VerifiedAt: time.Now(),
	})
}

// Expire terminates a reversal whose retry window ran out
func (r *Reversal) Expire(keys aggregate.Keys, reason string) error {
	if !r.CanTransitionTo(StatusExpired) {
		return r.transitionError(StatusExpired)
	}

	return aggregate.Raise(r, EventReversalExpired, keys, ReversalExpired{
		ReversalID: r.ID,
		Reason:     reason,
		ExpiredAt:  time.Now(),
	})
}
