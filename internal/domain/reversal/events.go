package reversal

import "time"

const (
	EventReversalCreated                = "ReversalCreated"
	EventReversalProcessed              = "ReversalProcessed"
	EventReversalCouldNotBeProcessed    = "ReversalCouldNotBeProcessed"
	EventReversalSettled                = "ReversalSettled"
	EventReversalSettlementNotConfirmed = "ReversalSettlementNotConfirmed"
	EventReversalExpired                = "ReversalExpired"
)

type ReversalCreated struct {
	ReversalID     string    `json:"reversal_id"`
	ChargeID       string    `json:"charge_id"`
	ApplicationKey string    `json:"application_key"`
	ExternalKey    string    `json:"external_key"`
	AcquirerKey    string    `json:"acquirer_key"`
	AmountInCents  int64     `json:"amount_in_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

type ReversalProcessed struct {
	ReversalID  string    `json:"reversal_id"`
	AcquirerKey string    `json:"acquirer_key"`
	ProcessedAt time.Time `json:"processed_at"`
}

type ReversalCouldNotBeProcessed struct {
	ReversalID string    `json:"reversal_id"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
}

type ReversalSettled struct {
	ReversalID string    `json:"reversal_id"`
	SettledAt  time.Time `json:"settled_at"`
}

type ReversalSettlementNotConfirmed struct {
	ReversalID string    `json:"reversal_id"`
	VerifiedAt time.Time `json:"verified_at"`
}

type ReversalExpired struct {
	ReversalID string    `json:"reversal_id"`
	Reason     string    `json:"reason"`
	ExpiredAt  time.Time `json:"expired_at"`
}
