package acquirer

import (
	"context"
	"time"
)

// SubmitStatus is the business outcome of submitting an operation to the acquirer
type SubmitStatus string

const (
	// StatusAccepted means the acquirer took the operation for processing
	StatusAccepted SubmitStatus = "accepted"
	// StatusDeclined means the acquirer refused it for a retryable reason
	StatusDeclined SubmitStatus = "declined"
	// StatusRejected means the acquirer refused it permanently
	StatusRejected SubmitStatus = "rejected"
)

// SubmitResult carries the acquirer's decision. Business refusals arrive here;
// only transport/infrastructure failures surface as errors.
type SubmitResult struct {
	Status      SubmitStatus
	AcquirerKey string // acquirer-side reference for the operation
	Error       string // acquirer return code/message when not accepted
}

// SettlementResult reports whether the acquirer has confirmed settlement
type SettlementResult struct {
	Settled   bool
	SettledAt time.Time
}

// ChargeRequest describes a charge submitted to the acquirer
type ChargeRequest struct {
	ChargeKey      string
	ApplicationKey string
	Method         string
	AmountInCents  int64
	Currency       string
}

// ReversalRequest describes a reversal submitted to the acquirer
type ReversalRequest struct {
	ReversalKey   string
	ChargeKey     string
	AcquirerKey   string
	AmountInCents int64
}

// Client is the external acquirer integration. It is invoked only from within
// aggregate intent methods to decide which event to append; replay never
// touches it.
type Client interface {
	SubmitCharge(ctx context.Context, req ChargeRequest) (SubmitResult, error)
	SubmitReversal(ctx context.Context, req ReversalRequest) (SubmitResult, error)
	VerifySettlement(ctx context.Context, acquirerKey string) (SettlementResult, error)
}
