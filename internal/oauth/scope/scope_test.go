package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerified(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"snsapi_base", true},
		{"snsapi_userinfo", true},
		{"  SNSAPI_BASE ", true},
		{"", false},
		{"   ", false},
		{"openid", false},
		{"snsapi_base snsapi_userinfo", false},
		{"snsapi_base,snsapi_userinfo", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Verified(tt.in), "scope %q", tt.in)
	}
}

func TestRequiresConsent(t *testing.T) {
	assert.True(t, RequiresConsent(UserInfo))
	assert.False(t, RequiresConsent(Base))
	assert.False(t, RequiresConsent("bogus"))
}

func TestSatisfies(t *testing.T) {
	assert.True(t, Satisfies(UserInfo, Base))
	assert.True(t, Satisfies(UserInfo, UserInfo))
	assert.True(t, Satisfies(Base, Base))
	assert.False(t, Satisfies(Base, UserInfo))
	assert.True(t, Satisfies(Base, ""))
	assert.True(t, Satisfies("", ""))
	assert.False(t, Satisfies("", Base))
	assert.False(t, Satisfies(UserInfo, "admin"))
}

func TestCovering(t *testing.T) {
	assert.Equal(t, []string{Base, UserInfo}, Covering(" SNSAPI_BASE "))
	assert.Equal(t, []string{UserInfo}, Covering(UserInfo))
	assert.Nil(t, Covering("admin"))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ScopeOrPrior, p)

	p, err = ParsePolicy("Prior_Only")
	require.NoError(t, err)
	assert.Equal(t, PriorOnly, p)

	_, err = ParsePolicy("always")
	assert.Error(t, err)
}

func TestNeedsPrompt(t *testing.T) {
	tests := []struct {
		policy    Policy
		scope     string
		consented bool
		want      bool
	}{
		{ScopeOrPrior, Base, false, false},
		{ScopeOrPrior, UserInfo, false, true},
		{ScopeOrPrior, UserInfo, true, false},

		{ScopeOnly, Base, false, false},
		{ScopeOnly, UserInfo, true, true},

		{PriorOnly, Base, false, true},
		{PriorOnly, Base, true, false},
		{PriorOnly, UserInfo, true, false},
	}
	for _, tt := range tests {
		got := tt.policy.NeedsPrompt(tt.scope, tt.consented)
		assert.Equal(t, tt.want, got, "%s scope=%s consented=%v", tt.policy, tt.scope, tt.consented)
	}
}
