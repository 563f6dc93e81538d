package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"solana-swap/pkg/chain"
	"solana-swap/pkg/client"
	"solana-swap/pkg/fee"
)

const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// Config holds the application configuration
type Config struct {
	RPCURL        string
	Commitment    string
	SkipPreflight bool

	AggregatorURL   string
	AggregatorRPS   float64
	AggregatorBurst int

	PrivateKey  string
	KeypairPath string

	FeeRecipient string
	FeeRate      string

	DefaultSlippage      float64
	PriceImpactThreshold float64
	QuoteDebounce        time.Duration

	ConfirmTimeout   time.Duration
	PollInterval     time.Duration
	LookupTableCache int

	LogLevel    string
	LogJSON     bool
	MetricsAddr string
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".solana-swap")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	setDefaults(v)

	// SOLANA_SWAP_RPC_URL etc.
	v.SetEnvPrefix("SOLANA_SWAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc_url", DefaultRPCURL)
	v.SetDefault("commitment", "confirmed")
	v.SetDefault("skip_preflight", false)
	v.SetDefault("aggregator_url", client.DefaultBaseURL)
	v.SetDefault("aggregator_rps", 1.0)
	v.SetDefault("aggregator_burst", 2)
	v.SetDefault("fee_recipient", fee.DefaultRecipient)
	v.SetDefault("fee_rate", fee.MaxRate.String())
	v.SetDefault("default_slippage", 0.5)
	v.SetDefault("price_impact_threshold", 5.0)
	v.SetDefault("quote_debounce", "300ms")
	v.SetDefault("confirm_timeout", chain.DefaultConfirmTimeout.String())
	v.SetDefault("poll_interval", chain.DefaultPollInterval.String())
	v.SetDefault("lookup_table_cache", chain.DefaultLookupTableCache)
	v.SetDefault("log_level", "warn")
	v.SetDefault("log_json", false)
	v.SetDefault("metrics_addr", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		RPCURL:               v.GetString("rpc_url"),
		Commitment:           v.GetString("commitment"),
		SkipPreflight:        v.GetBool("skip_preflight"),
		AggregatorURL:        v.GetString("aggregator_url"),
		AggregatorRPS:        v.GetFloat64("aggregator_rps"),
		AggregatorBurst:      v.GetInt("aggregator_burst"),
		PrivateKey:           v.GetString("private_key"),
		KeypairPath:          v.GetString("keypair_path"),
		FeeRecipient:         v.GetString("fee_recipient"),
		FeeRate:              v.GetString("fee_rate"),
		DefaultSlippage:      v.GetFloat64("default_slippage"),
		PriceImpactThreshold: v.GetFloat64("price_impact_threshold"),
		QuoteDebounce:        v.GetDuration("quote_debounce"),
		ConfirmTimeout:       v.GetDuration("confirm_timeout"),
		PollInterval:         v.GetDuration("poll_interval"),
		LookupTableCache:     v.GetInt("lookup_table_cache"),
		LogLevel:             v.GetString("log_level"),
		LogJSON:              v.GetBool("log_json"),
		MetricsAddr:          v.GetString("metrics_addr"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a swap.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL not found. Please set SOLANA_SWAP_RPC_URL environment variable or create a .solana-swap.yaml config file")
	}
	if c.DefaultSlippage < 0 || c.DefaultSlippage > 100 {
		return fmt.Errorf("default slippage %v%% out of range", c.DefaultSlippage)
	}
	if c.PriceImpactThreshold <= 0 {
		return fmt.Errorf("price impact threshold must be positive, got %v", c.PriceImpactThreshold)
	}
	if _, err := c.FeeConfig(); err != nil {
		return err
	}
	return nil
}

// FeeConfig parses the fee settings and checks them against the fee ceiling.
func (c *Config) FeeConfig() (fee.Config, error) {
	recipient, err := solana.PublicKeyFromBase58(c.FeeRecipient)
	if err != nil {
		return fee.Config{}, fmt.Errorf("invalid fee recipient '%s': %w", c.FeeRecipient, err)
	}
	rate, err := decimal.NewFromString(c.FeeRate)
	if err != nil {
		return fee.Config{}, fmt.Errorf("%w: %s", fee.ErrInvalidRate, c.FeeRate)
	}

	cfg := fee.Config{Recipient: recipient, Rate: rate}
	if _, err := fee.NewCalculator(cfg); err != nil {
		return fee.Config{}, err
	}
	return cfg, nil
}

// ChainConfig returns the Solana connection settings.
func (c *Config) ChainConfig() chain.Config {
	return chain.Config{
		RPCURL:           c.RPCURL,
		Commitment:       c.Commitment,
		SkipPreflight:    c.SkipPreflight,
		ConfirmTimeout:   c.ConfirmTimeout,
		PollInterval:     c.PollInterval,
		LookupTableCache: c.LookupTableCache,
	}
}

// HasWallet reports whether a signing key is configured.
func (c *Config) HasWallet() bool {
	return c.PrivateKey != "" || c.KeypairPath != ""
}
