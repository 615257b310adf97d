package config

import (
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/m4xw311/typestake/errors"
)

// Config holds everything the relay needs at startup. All values come from
// TYPESTAKE_-prefixed environment variables; credentials have no defaults and
// are validated by Load before the process is allowed to serve.
type Config struct {
	// Server
	Port            int           `mapstructure:"port"`
	CallbackBaseURL string        `mapstructure:"callback_base_url"`
	DBPath          string        `mapstructure:"db_path"`
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`

	// Model
	LLMProvider     string `mapstructure:"llm_provider"` // anthropic, openai or mock
	Model           string `mapstructure:"model"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`

	// Wallet rails
	RailsEndpoint   string        `mapstructure:"rails_endpoint"`
	NetworkID       string        `mapstructure:"network_id"`
	ChainID         string        `mapstructure:"chain_id"`
	WalletID        string        `mapstructure:"wallet_id"`
	WalletSeed      string        `mapstructure:"wallet_seed"`
	AgentAddress    string        `mapstructure:"agent_address"`   // custodial spender
	AccountAddress  string        `mapstructure:"account_address"` // user granting spend permissions
	SeedAmountWei   string        `mapstructure:"seed_amount_wei"`
	RewardAmountWei string        `mapstructure:"reward_amount_wei"`
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`

	// Proof provider
	ProofAppID      string `mapstructure:"proof_app_id"`
	ProofAppSecret  string `mapstructure:"proof_app_secret"`
	ProofProviderID string `mapstructure:"proof_provider_id"`
	VerifierURL     string `mapstructure:"verifier_url"`
}

// Load reads configuration from the environment and validates it. Every
// missing required variable is reported in a single error so an operator can
// fix them all at once.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TYPESTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 3001)
	v.SetDefault("db_path", "typestake.db")
	v.SetDefault("upstream_timeout", 30*time.Second)
	v.SetDefault("llm_provider", "openai")
	v.SetDefault("model", "gpt-4o-mini")
	v.SetDefault("rails_endpoint", "https://rpc.wallet.coinbase.com")
	v.SetDefault("network_id", "base-sepolia")
	v.SetDefault("chain_id", "0x14a34") // Base Sepolia
	v.SetDefault("seed_amount_wei", "1000000000000000")
	v.SetDefault("reward_amount_wei", "1000000000000000")
	v.SetDefault("transfer_timeout", 3*time.Minute)

	// AutomaticEnv alone does not surface env-only keys through Unmarshal, so
	// bind each key explicitly.
	for _, key := range []string{
		"port", "callback_base_url", "db_path", "upstream_timeout",
		"llm_provider", "model", "anthropic_api_key", "openai_api_key",
		"rails_endpoint", "network_id", "chain_id", "wallet_id", "wallet_seed",
		"agent_address", "account_address", "seed_amount_wei", "reward_amount_wei",
		"transfer_timeout", "proof_app_id", "proof_app_secret", "proof_provider_id",
		"verifier_url",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "binding %s", key)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapKind(err, errors.KindConfig, "parsing environment")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string

	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			missing = append(missing, "TYPESTAKE_ANTHROPIC_API_KEY")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "TYPESTAKE_OPENAI_API_KEY")
		}
	case "mock":
		// No credentials; used in tests and local development.
	default:
		return errors.WithKind(errors.KindConfig,
			"invalid llm_provider %q, must be anthropic, openai or mock", c.LLMProvider)
	}

	required := map[string]string{
		"TYPESTAKE_WALLET_SEED":       c.WalletSeed,
		"TYPESTAKE_AGENT_ADDRESS":     c.AgentAddress,
		"TYPESTAKE_ACCOUNT_ADDRESS":   c.AccountAddress,
		"TYPESTAKE_CALLBACK_BASE_URL": c.CallbackBaseURL,
		"TYPESTAKE_PROOF_APP_ID":      c.ProofAppID,
		"TYPESTAKE_PROOF_APP_SECRET":  c.ProofAppSecret,
		"TYPESTAKE_PROOF_PROVIDER_ID": c.ProofProviderID,
		"TYPESTAKE_VERIFIER_URL":      c.VerifierURL,
	}
	for name, val := range required {
		if val == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.WithKind(errors.KindConfig,
			"required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	return nil
}
