package acquirer

import (
	"context"
	"sync"
	"time"
)

// FakeClient is a programmable acquirer used in tests and in-process mode
type FakeClient struct {
	mu sync.Mutex

	SubmitChargeResult   SubmitResult
	SubmitChargeErr      error
	SubmitReversalResult SubmitResult
	SubmitReversalErr    error
	SettlementResult     SettlementResult
	SettlementErr        error

	ChargeRequests     []ChargeRequest
	ReversalRequests   []ReversalRequest
	SettlementRequests []string
}

// NewFakeClient returns a fake that accepts everything and settles immediately
func NewFakeClient() *FakeClient {
	return &FakeClient{
		SubmitChargeResult:   SubmitResult{Status: StatusAccepted, AcquirerKey: "acq-fake"},
		SubmitReversalResult: SubmitResult{Status: StatusAccepted, AcquirerKey: "acq-fake-rev"},
		SettlementResult:     SettlementResult{Settled: true, SettledAt: time.Now()},
	}
}

func (f *FakeClient) SubmitCharge(ctx context.Context, req ChargeRequest) (SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChargeRequests = append(f.ChargeRequests, req)
	return f.SubmitChargeResult, f.SubmitChargeErr
}

func (f *FakeClient) SubmitReversal(ctx context.Context, req ReversalRequest) (SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReversalRequests = append(f.ReversalRequests, req)
	return f.SubmitReversalResult, f.SubmitReversalErr
}

func (f *FakeClient) VerifySettlement(ctx context.Context, acquirerKey string) (SettlementResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SettlementRequests = append(f.SettlementRequests, acquirerKey)
	return f.SettlementResult, f.SettlementErr
}
