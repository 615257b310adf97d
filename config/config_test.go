package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m4xw311/typestake/errors"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TYPESTAKE_LLM_PROVIDER", "mock")
	t.Setenv("TYPESTAKE_WALLET_SEED", "test-seed")
	t.Setenv("TYPESTAKE_AGENT_ADDRESS", "0xB9Cf11e1dd8547a8f03Ac922E894938F666CD935")
	t.Setenv("TYPESTAKE_ACCOUNT_ADDRESS", "0x0D1400D75C5Ba4C8168E86A3e40db8A8510B33d3")
	t.Setenv("TYPESTAKE_CALLBACK_BASE_URL", "https://relay.example.com")
	t.Setenv("TYPESTAKE_PROOF_APP_ID", "app")
	t.Setenv("TYPESTAKE_PROOF_APP_SECRET", "secret")
	t.Setenv("TYPESTAKE_PROOF_PROVIDER_ID", "provider")
	t.Setenv("TYPESTAKE_VERIFIER_URL", "https://verifier.example.com/verify")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, "base-sepolia", cfg.NetworkID)
	assert.Equal(t, "0x14a34", cfg.ChainID)
	assert.Equal(t, "1000000000000000", cfg.SeedAmountWei)
	assert.Equal(t, "https://rpc.wallet.coinbase.com", cfg.RailsEndpoint)
}

func TestLoadReportsAllMissing(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TYPESTAKE_WALLET_SEED", "")
	t.Setenv("TYPESTAKE_PROOF_APP_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
	assert.Contains(t, err.Error(), "TYPESTAKE_WALLET_SEED")
	assert.Contains(t, err.Error(), "TYPESTAKE_PROOF_APP_SECRET")
}

func TestLoadProviderCredential(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TYPESTAKE_LLM_PROVIDER", "anthropic")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TYPESTAKE_ANTHROPIC_API_KEY")

	t.Setenv("TYPESTAKE_ANTHROPIC_API_KEY", "sk-test")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TYPESTAKE_LLM_PROVIDER", "llama-at-home")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}
