// Package config loads process configuration from the environment using
// viper, the same library the teacher repo configures itself with — only
// the source changed (env vars instead of a YAML file), per spec.md §6.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all engine configuration.
type Config struct {
	RPC        RPCConfig
	Bundle     BundleConfig
	Wallet     WalletConfig
	Trading    TradingConfig
	Fees       FeesConfig
	Aggregator AggregatorConfig
	Curve      CurveConfig
	PriceFeed  PriceFeedConfig
	Queue      QueueConfig
	Admin      AdminConfig
	Storage    StorageConfig
}

type RPCConfig struct {
	URL         string
	FallbackURL string
}

type BundleConfig struct {
	EndpointURL string
}

type WalletConfig struct {
	PrivateKey string // base58 or JSON byte array, resolved at load time
}

type TradingConfig struct {
	BaseAmountLamports uint64
	SlippageBps        int
	StopLossPercent    float64
	TakeProfitPercent  float64
	PositionCheckSecs  int
	AutoTradingEnabled bool
}

type FeesConfig struct {
	PriorityFeeBuyLamports  uint64
	PriorityFeeSellLamports uint64
}

type AggregatorConfig struct {
	BaseURL string
	APIKey  string
}

type CurveConfig struct {
	BaseURL string
}

type PriceFeedConfig struct {
	WSURL  string
	APIKey string // optional polling-source API key
}

type QueueConfig struct {
	URL            string
	SignalsList    string
	PreSignalsList string
	ResultsList    string
}

type AdminConfig struct {
	ListenHost string
	ListenPort int
}

type StorageConfig struct {
	SQLitePath string
}

// Manager wraps the viper instance with a read/write lock, like the
// teacher's Manager, and additionally exposes a runtime pause toggle.
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
	watcher  *fsnotify.Watcher
}

// Load binds every field spec.md §6 lists to an environment variable and
// validates the ones that are fatal at startup (configuration errors, per
// §7, abort the process rather than retry).
func Load() (*Manager, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bind := func(key, env string) {
		if err := v.BindEnv(key, env); err != nil {
			log.Warn().Err(err).Str("env", env).Msg("failed to bind env var")
		}
	}

	bind("rpc.url", "RPC_URL")
	bind("rpc.fallback_url", "RPC_FALLBACK_URL")
	bind("bundle.endpoint_url", "BUNDLE_ENDPOINT_URL")
	bind("wallet.private_key", "WALLET_PRIVATE_KEY")
	bind("trading.base_amount_lamports", "TRADE_BASE_AMOUNT_LAMPORTS")
	bind("trading.slippage_bps", "SLIPPAGE_BPS")
	bind("trading.stop_loss_percent", "STOP_LOSS_PERCENT")
	bind("trading.take_profit_percent", "TAKE_PROFIT_PERCENT")
	bind("trading.position_check_secs", "POSITION_CHECK_INTERVAL_SECONDS")
	bind("trading.auto_trading_enabled", "AUTO_TRADING_ENABLED")
	bind("fees.priority_fee_buy_lamports", "PRIORITY_FEE_BUY_LAMPORTS")
	bind("fees.priority_fee_sell_lamports", "PRIORITY_FEE_SELL_LAMPORTS")
	bind("aggregator.base_url", "AGGREGATOR_BASE_URL")
	bind("aggregator.api_key", "AGGREGATOR_API_KEY")
	bind("curve.base_url", "CURVE_BASE_URL")
	bind("pricefeed.ws_url", "PRICE_WS_URL")
	bind("pricefeed.api_key", "PRICE_POLL_API_KEY")
	bind("queue.url", "QUEUE_URL")
	bind("queue.signals_list", "QUEUE_SIGNALS_LIST")
	bind("queue.presignals_list", "QUEUE_PRESIGNALS_LIST")
	bind("queue.results_list", "QUEUE_RESULTS_LIST")
	bind("admin.listen_host", "ADMIN_LISTEN_HOST")
	bind("admin.listen_port", "ADMIN_LISTEN_PORT")
	bind("storage.sqlite_path", "STORAGE_SQLITE_PATH")

	v.SetDefault("rpc.fallback_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("trading.slippage_bps", 500)
	v.SetDefault("trading.stop_loss_percent", 25)
	v.SetDefault("trading.take_profit_percent", 50)
	v.SetDefault("trading.position_check_secs", 5)
	v.SetDefault("trading.auto_trading_enabled", true)
	v.SetDefault("aggregator.base_url", "https://api.jup.ag/swap/v1")
	v.SetDefault("curve.base_url", "https://pumpportal.fun/api")
	v.SetDefault("queue.signals_list", "signals")
	v.SetDefault("queue.presignals_list", "presignals")
	v.SetDefault("queue.results_list", "trade_results")
	v.SetDefault("admin.listen_host", "127.0.0.1")
	v.SetDefault("admin.listen_port", 8089)
	v.SetDefault("storage.sqlite_path", "data/audit.db")

	cfg := unmarshal(v)

	if cfg.RPC.URL == "" {
		return nil, fmt.Errorf("config: RPC_URL is required")
	}
	if cfg.Bundle.EndpointURL == "" {
		return nil, fmt.Errorf("config: BUNDLE_ENDPOINT_URL is required")
	}
	if cfg.Wallet.PrivateKey == "" {
		return nil, fmt.Errorf("config: WALLET_PRIVATE_KEY is required")
	}
	if cfg.Trading.BaseAmountLamports == 0 {
		return nil, fmt.Errorf("config: TRADE_BASE_AMOUNT_LAMPORTS must be > 0")
	}
	if cfg.Queue.URL == "" {
		return nil, fmt.Errorf("config: QUEUE_URL is required")
	}

	return &Manager{config: cfg, viper: v}, nil
}

func unmarshal(v *viper.Viper) *Config {
	return &Config{
		RPC: RPCConfig{
			URL:         v.GetString("rpc.url"),
			FallbackURL: v.GetString("rpc.fallback_url"),
		},
		Bundle: BundleConfig{EndpointURL: v.GetString("bundle.endpoint_url")},
		Wallet: WalletConfig{PrivateKey: v.GetString("wallet.private_key")},
		Trading: TradingConfig{
			BaseAmountLamports: v.GetUint64("trading.base_amount_lamports"),
			SlippageBps:        v.GetInt("trading.slippage_bps"),
			StopLossPercent:    v.GetFloat64("trading.stop_loss_percent"),
			TakeProfitPercent:  v.GetFloat64("trading.take_profit_percent"),
			PositionCheckSecs:  v.GetInt("trading.position_check_secs"),
			AutoTradingEnabled: v.GetBool("trading.auto_trading_enabled"),
		},
		Fees: FeesConfig{
			PriorityFeeBuyLamports:  v.GetUint64("fees.priority_fee_buy_lamports"),
			PriorityFeeSellLamports: v.GetUint64("fees.priority_fee_sell_lamports"),
		},
		Aggregator: AggregatorConfig{
			BaseURL: v.GetString("aggregator.base_url"),
			APIKey:  v.GetString("aggregator.api_key"),
		},
		Curve: CurveConfig{BaseURL: v.GetString("curve.base_url")},
		PriceFeed: PriceFeedConfig{
			WSURL:  v.GetString("pricefeed.ws_url"),
			APIKey: v.GetString("pricefeed.api_key"),
		},
		Queue: QueueConfig{
			URL:            v.GetString("queue.url"),
			SignalsList:    v.GetString("queue.signals_list"),
			PreSignalsList: v.GetString("queue.presignals_list"),
			ResultsList:    v.GetString("queue.results_list"),
		},
		Admin: AdminConfig{
			ListenHost: v.GetString("admin.listen_host"),
			ListenPort: v.GetInt("admin.listen_port"),
		},
		Storage: StorageConfig{SQLitePath: v.GetString("storage.sqlite_path")},
	}
}

// Get returns the current config (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetTrading returns the trading sub-config, the hottest read path.
func (m *Manager) GetTrading() TradingConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Trading
}

// SetOnChange registers a callback fired whenever the runtime-control toggle flips.
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// WatchControlDir watches CONTROL_DIR (if set) for a zero-byte
// "trading.paused" marker file and flips AutoTradingEnabled live, mirroring
// the teacher's fsnotify hot-reload but scoped to one operator toggle
// instead of the whole config file.
func (m *Manager) WatchControlDir(dir string) error {
	if dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create control-dir watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch control dir: %w", err)
	}
	m.watcher = watcher

	markerPath := dir + "/trading.paused"
	m.applyPauseState(fileExists(markerPath))

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != markerPath {
					continue
				}
				m.applyPauseState(fileExists(markerPath))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("control-dir watcher error")
			}
		}
	}()

	return nil
}

func (m *Manager) applyPauseState(paused bool) {
	m.mu.Lock()
	m.config.Trading.AutoTradingEnabled = !paused
	cfg := m.config
	onChange := m.onChange
	m.mu.Unlock()

	log.Info().Bool("autoTradingEnabled", cfg.Trading.AutoTradingEnabled).Msg("trading pause toggle applied")
	if onChange != nil {
		onChange(cfg)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Close stops the control-dir watcher, if any.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
