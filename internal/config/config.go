package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`
	Wallet WalletConfig `mapstructure:"wallet"`

	Settlement SettlementConfig `mapstructure:"settlement"`
	Batch      BatchConfig      `mapstructure:"batch"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	AuthToken string `mapstructure:"auth_token"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BatchReconcile string `mapstructure:"batch_reconcile"`
}

type WalletConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SettlementConfig covers the orchestrator: oracle freshness, payout notional
// and the escalation wait window.
type SettlementConfig struct {
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	UnitPayout      string        `mapstructure:"unit_payout"`
	EscalationWait  time.Duration `mapstructure:"escalation_wait"`
}

// BatchConfig covers auto-settle batching and the relayer fee model.
type BatchConfig struct {
	Size                  int           `mapstructure:"size"`
	Interval              time.Duration `mapstructure:"interval"`
	RelayerEnabled        bool          `mapstructure:"relayer_enabled"`
	RelayerSurchargePct   string        `mapstructure:"relayer_surcharge_pct"`
	BaseGas               int64         `mapstructure:"base_gas"`
	PerClaimGas           int64         `mapstructure:"per_claim_gas"`
	ReconcileMarketsLimit int           `mapstructure:"reconcile_markets_limit"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SETTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.batch_reconcile", "@every 1m")
	v.SetDefault("wallet.base_url", "")
	v.SetDefault("wallet.api_key", "")
	v.SetDefault("wallet.timeout", "10s")

	v.SetDefault("settlement.freshness_window", "1h")
	v.SetDefault("settlement.unit_payout", "1.00")
	v.SetDefault("settlement.escalation_wait", "1h")

	v.SetDefault("batch.size", 100)
	v.SetDefault("batch.interval", "2s")
	v.SetDefault("batch.relayer_enabled", true)
	v.SetDefault("batch.relayer_surcharge_pct", "0.1")
	v.SetDefault("batch.base_gas", 21000)
	v.SetDefault("batch.per_claim_gas", 5000)
	v.SetDefault("batch.reconcile_markets_limit", 50)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
