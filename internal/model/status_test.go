package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionSettlement(t *testing.T) {
	assert.True(t, CanTransitionSettlement(SettlementStatusPending, SettlementStatusPaid))
	assert.True(t, CanTransitionSettlement(SettlementStatusPending, SettlementStatusFailed))

	// PAID / FAILED 均为终态
	assert.False(t, CanTransitionSettlement(SettlementStatusPaid, SettlementStatusFailed))
	assert.False(t, CanTransitionSettlement(SettlementStatusPaid, SettlementStatusPending))
	assert.False(t, CanTransitionSettlement(SettlementStatusFailed, SettlementStatusPaid))
}

func TestCanTransitionPayout(t *testing.T) {
	assert.True(t, CanTransitionPayout(PayoutStatusRequested, PayoutStatusProcessing))
	assert.True(t, CanTransitionPayout(PayoutStatusRequested, PayoutStatusFailed))
	assert.True(t, CanTransitionPayout(PayoutStatusProcessing, PayoutStatusCompleted))
	assert.True(t, CanTransitionPayout(PayoutStatusProcessing, PayoutStatusFailed))

	// 不允许跳级与回退
	assert.False(t, CanTransitionPayout(PayoutStatusRequested, PayoutStatusCompleted))
	assert.False(t, CanTransitionPayout(PayoutStatusCompleted, PayoutStatusFailed))
	assert.False(t, CanTransitionPayout(PayoutStatusFailed, PayoutStatusRequested))
}
