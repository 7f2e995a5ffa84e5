package command

import "encoding/json"

// Command type names. The concrete type name doubles as the routing key on
// the command channel.
const (
	TypeCreateCharge             = "CreateCharge"
	TypeSendChargeToAcquirer     = "SendChargeToAcquirer"
	TypeVerifyChargeSettlement   = "VerifyChargeSettlement"
	TypeExpireCharge             = "ExpireCharge"
	TypeRejectCharge             = "RejectCharge"
	TypeCreateReversal           = "CreateReversal"
	TypeSendReversalToAcquirer   = "SendReversalToAcquirer"
	TypeVerifyReversalSettlement = "VerifyReversalSettlement"
	TypeExpireReversal           = "ExpireReversal"

	TypeCreateClientApplication         = "CreateClientApplication"
	TypeActivateClientApplication       = "ActivateClientApplication"
	TypeRevokeClientApplicationCreation = "RevokeClientApplicationCreation"
	TypeDeactivateClientApplication     = "DeactivateClientApplication"

	TypeCreateProduct         = "CreateProduct"
	TypeActivateProduct       = "ActivateProduct"
	TypeRevokeProductCreation = "RevokeProductCreation"
	TypeDeactivateProduct     = "DeactivateProduct"
)

// Envelope is the immutable intent carried on the command channel. A command
// is processed at most once per distinct (correlation key, application key).
type Envelope struct {
	Type           string          `json:"type"`
	AggregateKey   string          `json:"aggregate_key"`
	CorrelationKey string          `json:"correlation_key"`
	ApplicationKey string          `json:"application_key"`
	SagaProcessKey string          `json:"saga_process_key,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// Charge commands

type CreateCharge struct {
	ExternalKey   string `json:"external_key"`
	Method        string `json:"method"`
	AmountInCents int64  `json:"amount_in_cents"`
	Currency      string `json:"currency"`
}

type SendChargeToAcquirer struct{}

type VerifyChargeSettlement struct{}

type ExpireCharge struct {
	Reason string `json:"reason"`
}

type RejectCharge struct {
	Reason string `json:"reason"`
}

// Reversal commands

type CreateReversal struct {
	ChargeID      string `json:"charge_id"`
	ExternalKey   string `json:"external_key"`
	AmountInCents int64  `json:"amount_in_cents"`
}

type SendReversalToAcquirer struct{}

type VerifyReversalSettlement struct{}

type ExpireReversal struct {
	Reason string `json:"reason"`
}

// Client application commands

type CreateClientApplication struct {
	ExternalKey string `json:"external_key"`
	Name        string `json:"name"`
}

type ActivateClientApplication struct{}

type RevokeClientApplicationCreation struct {
	Reason string `json:"reason"`
}

type DeactivateClientApplication struct {
	Reason string `json:"reason"`
}

// Product commands

type CreateProduct struct {
	ExternalKey string `json:"external_key"`
	Name        string `json:"name"`
	Method      string `json:"method"`
}

type ActivateProduct struct{}

type RevokeProductCreation struct {
	Reason string `json:"reason"`
}

type DeactivateProduct struct {
	Reason string `json:"reason"`
}

// NewEnvelope builds an envelope with a marshaled payload
func NewEnvelope(cmdType, aggregateKey, correlationKey, applicationKey, sagaProcessKey string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:           cmdType,
		AggregateKey:   aggregateKey,
		CorrelationKey: correlationKey,
		ApplicationKey: applicationKey,
		SagaProcessKey: sagaProcessKey,
		Payload:        data,
	}, nil
}
