package readmodel

import (
	"encoding/json"
	"time"
)

// Collection names in the read store
const (
	CollectionCharges            = "charges"
	CollectionClientApplications = "client_applications"
	CollectionProducts           = "products"
)

// StatusEntry is one step of a charge or reversal lifecycle. Error carries the
// failure detail for entries recorded from processing failures.
type StatusEntry struct {
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReversalEntry is a reversal embedded in its parent charge projection.
// Version tracks the reversal's own event stream for re-apply detection.
type ReversalEntry struct {
	ID            string        `json:"id"`
	ExternalKey   string        `json:"external_key"`
	AcquirerKey   string        `json:"acquirer_key,omitempty"`
	AmountInCents int64         `json:"amount_in_cents"`
	Status        string        `json:"status"`
	History       []StatusEntry `json:"history"`
	Version       int           `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Charge is the denormalized charge view maintained by the saga handlers.
// Version is the last applied event's version plus one and never decreases.
type Charge struct {
	ID             string          `json:"id"`
	ApplicationKey string          `json:"application_key"`
	ExternalKey    string          `json:"external_key"`
	Method         string          `json:"method"`
	AmountInCents  int64           `json:"amount_in_cents"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	AcquirerKey    string          `json:"acquirer_key,omitempty"`
	History        []StatusEntry   `json:"history"`
	Reversals      []ReversalEntry `json:"reversals"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ReversalByID returns the index of the embedded reversal, or -1
func (c *Charge) ReversalByID(id string) int {
	for i := range c.Reversals {
		if c.Reversals[i].ID == id {
			return i
		}
	}
	return -1
}

type ClientApplication struct {
	ID          string    `json:"id"`
	ExternalKey string    `json:"external_key"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Product struct {
	ID             string    `json:"id"`
	ApplicationKey string    `json:"application_key"`
	ExternalKey    string    `json:"external_key"`
	Name           string    `json:"name"`
	Method         string    `json:"method"`
	Status         string    `json:"status"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Decoders for the persistent read store, keyed by collection. Registered by
// the consumers that open a PostgreSQL read store.
func DecodeCharge(data []byte) (any, error) {
	var c Charge
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return c, nil
}

func DecodeClientApplication(data []byte) (any, error) {
	var a ClientApplication
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return a, nil
}

func DecodeProduct(data []byte) (any, error) {
	var p Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p, nil
}
