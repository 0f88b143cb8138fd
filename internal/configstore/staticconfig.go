// Package configstore owns both layers of configuration a running engine
// needs: the static per-chain/server YAML config (spf13/viper) and the
// SQL-backed catalog of tokens, triangles, pools and pool-paths (spec.md
// §6's four tables) read via jmoiron/sqlx + lib/pq.
package configstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// AppConfig is the complete static configuration tree.
type AppConfig struct {
	Service  ServiceConfig          `yaml:"service" json:"service"`
	Logger   LoggerConfig           `yaml:"logger" json:"logger"`
	Database DatabaseConfig         `yaml:"database" json:"database"`
	Scanner  ScannerConfig          `yaml:"scanner" json:"scanner"`
	Chains     map[string]ChainConfig `yaml:"chains" json:"chains"`
	SMTP       SMTPConfig             `yaml:"smtp" json:"smtp"`
	Relay      RelayConfig            `yaml:"relay" json:"relay"`
	Dispatcher DispatcherConfig       `yaml:"dispatcher" json:"dispatcher"`
}

// ServiceConfig holds process-level configuration.
type ServiceConfig struct {
	Name        string `yaml:"name" json:"name"`
	Environment string `yaml:"environment" json:"environment"`
	HTTPPort    int    `yaml:"http_port" json:"http_port"`
}

// LoggerConfig configures the root pkg/logger instance.
type LoggerConfig struct {
	Level      string `yaml:"level" json:"level"`
	JSONFormat bool   `yaml:"json_format" json:"json_format"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DSN returns a lib/pq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Database, c.SSLMode)
}

// ScannerConfig holds the tunables spec.md §4.5/§5 name.
type ScannerConfig struct {
	MaxConcurrentHandlers int64         `yaml:"max_concurrent_handlers" json:"max_concurrent_handlers"`
	FallbackScanInterval  time.Duration `yaml:"fallback_scan_interval" json:"fallback_scan_interval"`
	DedupTTL              time.Duration `yaml:"dedup_ttl" json:"dedup_ttl"`
	MinSwapValueUSD       float64       `yaml:"min_swap_value_usd" json:"min_swap_value_usd"`
	AutoExecute           bool          `yaml:"auto_execute" json:"auto_execute"`
	ConfirmationTimeout   time.Duration `yaml:"confirmation_timeout" json:"confirmation_timeout"`
}

// ChainConfig is one supported chain's static contract addresses and RPC
// endpoint (spec.md §6's "Per-chain contract addresses").
type ChainConfig struct {
	ChainID        uint64 `yaml:"chain_id" json:"chain_id"`
	RPCURL         string `yaml:"rpc_url" json:"rpc_url"`
	WSURL          string `yaml:"ws_url" json:"ws_url"`
	QuoterV2       string `yaml:"quoter_v2" json:"quoter_v2"`
	Multicall3     string `yaml:"multicall3" json:"multicall3"`
	WrappedNative  string `yaml:"wrapped_native" json:"wrapped_native"`
	SwapRouter     string `yaml:"swap_router" json:"swap_router"`
	FlashLoanPool  string `yaml:"flash_loan_pool" json:"flash_loan_pool"`
	ArbitrageAddr  string `yaml:"arbitrage_contract" json:"arbitrage_contract"`
}

// WrappedNativeAddress parses WrappedNative, returning false if unset.
func (c ChainConfig) WrappedNativeAddress() (common.Address, bool) {
	if c.WrappedNative == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(c.WrappedNative), true
}

// SMTPConfig configures the email notifier's outbound relay.
type SMTPConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
}

// RelayConfig configures the Flashbots-style relay client.
type RelayConfig struct {
	URL string `yaml:"url" json:"url"`
}

// DispatcherConfig holds the execution-pipeline tunables spec.md §4.6
// names: the send mode, the Normal-mode gas pricing rule
// (gas_price = base_fee × multiplier, capped at max_gas_price_gwei), and
// the Flashbots retry bound.
type DispatcherConfig struct {
	Mode               string  `yaml:"mode" json:"mode"` // "normal", "flashbots", or "both"
	GasPriceMultiplier float64 `yaml:"gas_price_multiplier" json:"gas_price_multiplier"`
	MaxGasPriceGwei    float64 `yaml:"max_gas_price_gwei" json:"max_gas_price_gwei"`
	MaxBlockRetries    int     `yaml:"max_block_retries" json:"max_block_retries"`
}

// multicall3Default is the universally-deployed Multicall3 address spec.md
// §6 calls out.
const multicall3Default = "0xcA11bde05977b3631167028862bE2a173976CA11"

// preBakedChainIDs are the chains spec.md §6 says have pre-baked defaults.
var preBakedChainIDs = []uint64{1, 56, 137, 42161, 8453, 10, 43114}

// LoadAppConfig reads static configuration from configPath (or the default
// search path) plus environment overrides.
func LoadAppConfig(configPath string) (*AppConfig, error) {
	v := viper.New()
	setAppConfigDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("configstore: read config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("configstore: unmarshal config: %w", err)
	}

	applyPreBakedChainDefaults(&cfg)

	if err := validateAppConfig(&cfg); err != nil {
		return nil, fmt.Errorf("configstore: validate config: %w", err)
	}
	return &cfg, nil
}

func setAppConfigDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "arbengine")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.http_port", 8080)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json_format", true)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "arbengine")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("scanner.max_concurrent_handlers", 5)
	v.SetDefault("scanner.fallback_scan_interval", "5s")
	v.SetDefault("scanner.dedup_ttl", "60s")
	v.SetDefault("scanner.min_swap_value_usd", 1.0)
	v.SetDefault("scanner.auto_execute", false)
	v.SetDefault("scanner.confirmation_timeout", "120s")

	v.SetDefault("relay.url", "https://relay.flashbots.net")

	v.SetDefault("dispatcher.mode", "normal")
	v.SetDefault("dispatcher.gas_price_multiplier", 1.1)
	v.SetDefault("dispatcher.max_gas_price_gwei", 500)
	v.SetDefault("dispatcher.max_block_retries", 3)
}

// applyPreBakedChainDefaults fills Multicall3 with the universal
// deployment address for any configured chain that omitted it. It adds no
// entries for chains absent from the configuration and fills no other
// contract address.
func applyPreBakedChainDefaults(cfg *AppConfig) {
	if cfg.Chains == nil {
		cfg.Chains = make(map[string]ChainConfig)
	}
	for key, chain := range cfg.Chains {
		if chain.Multicall3 == "" {
			chain.Multicall3 = multicall3Default
			cfg.Chains[key] = chain
		}
	}
}

func validateAppConfig(cfg *AppConfig) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	return nil
}

// PreBakedChainIDs returns the chain IDs spec.md §6 ships defaults for.
func PreBakedChainIDs() []uint64 {
	out := make([]uint64, len(preBakedChainIDs))
	copy(out, preBakedChainIDs)
	return out
}
