package charge

import "time"

const (
	EventChargeCreated                = "ChargeCreated"
	EventChargeProcessed              = "ChargeProcessed"
	EventChargeCouldNotBeProcessed    = "ChargeCouldNotBeProcessed"
	EventChargeSettled                = "ChargeSettled"
	EventChargeSettlementNotConfirmed = "ChargeSettlementNotConfirmed"
	EventChargeExpired                = "ChargeExpired"
	EventChargeRejected               = "ChargeRejected"
)

type ChargeCreated struct {
	ChargeID       string    `json:"charge_id"`
	ApplicationKey string    `json:"application_key"`
	ExternalKey    string    `json:"external_key"`
	Method         Method    `json:"method"`
	AmountInCents  int64     `json:"amount_in_cents"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"created_at"`
}

type ChargeProcessed struct {
	ChargeID    string    `json:"charge_id"`
	AcquirerKey string    `json:"acquirer_key"`
	ProcessedAt time.Time `json:"processed_at"`
}

type ChargeCouldNotBeProcessed struct {
	ChargeID string    `json:"charge_id"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type ChargeSettled struct {
	ChargeID  string    `json:"charge_id"`
	SettledAt time.Time `json:"settled_at"`
}

type ChargeSettlementNotConfirmed struct {
	ChargeID   string    `json:"charge_id"`
	VerifiedAt time.Time `json:"verified_at"`
}

type ChargeExpired struct {
	ChargeID  string    `json:"charge_id"`
	Reason    string    `json:"reason"`
	ExpiredAt time.Time `json:"expired_at"`
}

type ChargeRejected struct {
	ChargeID   string    `json:"charge_id"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}
