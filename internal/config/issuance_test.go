package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIssuancePolicyIsValid(t *testing.T) {
	policy := DefaultIssuancePolicy()
	require.NoError(t, ValidateIssuancePolicy(policy))
	assert.Equal(t, 300*time.Second, policy.ReplayWindow())
	assert.Equal(t, "0.01", policy.Tolerance().String())
}

func TestAcceptsStatusIsCaseInsensitive(t *testing.T) {
	policy := DefaultIssuancePolicy()

	for _, status := range []string{"completed", "PAID", " Authorized ", "succeeded", "Success"} {
		assert.True(t, policy.AcceptsStatus(status), status)
	}
	for _, status := range []string{"", "pending", "failed", "refunded"} {
		assert.False(t, policy.AcceptsStatus(status), status)
	}
}

func TestValidateIssuancePolicyRejectsBadValues(t *testing.T) {
	cases := map[string]func(p *IssuancePolicy){
		"replay window": func(p *IssuancePolicy) { p.ReplayWindowSeconds = 0 },
		"tolerance":     func(p *IssuancePolicy) { p.AmountTolerance = "abc" },
		"negative":      func(p *IssuancePolicy) { p.AmountTolerance = "-0.5" },
		"statuses":      func(p *IssuancePolicy) { p.AcceptedStatuses = nil },
		"max attempts":  func(p *IssuancePolicy) { p.MaxAttempts = 0 },
		"tx timeout":    func(p *IssuancePolicy) { p.TxTimeout = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			policy := DefaultIssuancePolicy()
			mutate(&policy)
			assert.Error(t, ValidateIssuancePolicy(policy))
		})
	}
}

func TestStaticHolderReturnsPolicy(t *testing.T) {
	policy := DefaultIssuancePolicy()
	policy.ReplayWindowSeconds = 60
	holder := NewStaticIssuancePolicy(policy)
	assert.Equal(t, 60, holder.Get().ReplayWindowSeconds)
}
