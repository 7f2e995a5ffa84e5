package saga

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Decide_WithinWindow(t *testing.T) {
	policy := Policy{Interval: 5 * time.Minute, Limit: 60 * time.Minute}
	firstFailure := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	decision := policy.Decide(firstFailure, firstFailure, 1)

	assert.True(t, decision.Retry)
	assert.Equal(t, 5*time.Minute, decision.Delay)
}

func TestPolicy_Decide_DelayScalesWithAttempt(t *testing.T) {
	policy := Policy{Interval: 5 * time.Minute, Limit: 60 * time.Minute}
	firstFailure := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	decision := policy.Decide(firstFailure.Add(20*time.Minute), firstFailure, 3)

	assert.True(t, decision.Retry)
	assert.Equal(t, 15*time.Minute, decision.Delay)
}

func TestPolicy_Decide_JustInsideWindow(t *testing.T) {
	policy := Policy{Interval: 5 * time.Minute, Limit: 60 * time.Minute}
	firstFailure := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	decision := policy.Decide(firstFailure.Add(59*time.Minute), firstFailure, 2)

	assert.True(t, decision.Retry)
	assert.Equal(t, 10*time.Minute, decision.Delay)
}

func TestPolicy_Decide_WindowBoundaryInclusive(t *testing.T) {
	policy := Policy{Interval: 5 * time.Minute, Limit: 60 * time.Minute}
	firstFailure := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	decision := policy.Decide(firstFailure.Add(60*time.Minute), firstFailure, 2)

	assert.True(t, decision.Retry)
}

func TestPolicy_Decide_OutsideWindow(t *testing.T) {
	policy := Policy{Interval: 5 * time.Minute, Limit: 60 * time.Minute}
	firstFailure := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	decision := policy.Decide(firstFailure.Add(61*time.Minute), firstFailure, 4)

	assert.False(t, decision.Retry)
}
