// Package config loads daemon settings from flags, LBP_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lbp/pool-engine/internal/lockperiod"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration
	LogLevel    string
	DevMode     bool

	Admin          common.Address
	FactoryAddress common.Address
	RouterAddress  common.Address

	DepositWindow     time.Duration
	PriceRefresh      time.Duration
	MaxPriceAge       time.Duration
	PriceRetries      int
	PriceRetryDelay   time.Duration
	PenaltyBps        int64
	InitialReleaseBps int64
	IntermediateMenu  *lockperiod.Menu
	DiscoveryMenu     *lockperiod.Menu
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LBP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("cache-ttl", 30*time.Second)
	v.SetDefault("log-level", "info")
	v.SetDefault("dev-mode", false)
	v.SetDefault("factory-address", "0x00000000000000000000000000000000000fac70")
	v.SetDefault("router-address", "0x000000000000000000000000000000000a440000")
	v.SetDefault("deposit-window", 7*24*time.Hour)
	v.SetDefault("price-refresh", 24*time.Hour)
	v.SetDefault("max-price-age", time.Duration(0))
	v.SetDefault("price-retries", 3)
	v.SetDefault("price-retry-delay", 200*time.Millisecond)
	v.SetDefault("penalty-bps", 1000)
	v.SetDefault("initial-release-bps", 2500)
	v.SetDefault("locking-periods", lockperiod.DefaultIntermediate)
	v.SetDefault("discovery-locking-periods", lockperiod.DefaultDiscovery)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Port:              v.GetString("port"),
		DatabaseURL:       v.GetString("database-url"),
		RedisURL:          v.GetString("redis-url"),
		CacheTTL:          v.GetDuration("cache-ttl"),
		LogLevel:          v.GetString("log-level"),
		DevMode:           v.GetBool("dev-mode"),
		DepositWindow:     v.GetDuration("deposit-window"),
		PriceRefresh:      v.GetDuration("price-refresh"),
		MaxPriceAge:       v.GetDuration("max-price-age"),
		PriceRetries:      v.GetInt("price-retries"),
		PriceRetryDelay:   v.GetDuration("price-retry-delay"),
		PenaltyBps:        v.GetInt64("penalty-bps"),
		InitialReleaseBps: v.GetInt64("initial-release-bps"),
	}

	var err error
	if cfg.Admin, err = address(v, "admin", true); err != nil {
		return Config{}, err
	}
	if cfg.FactoryAddress, err = address(v, "factory-address", false); err != nil {
		return Config{}, err
	}
	if cfg.RouterAddress, err = address(v, "router-address", false); err != nil {
		return Config{}, err
	}
	if cfg.IntermediateMenu, err = lockperiod.Parse(v.GetString("locking-periods")); err != nil {
		return Config{}, fmt.Errorf("locking-periods: %w", err)
	}
	if cfg.DiscoveryMenu, err = lockperiod.Parse(v.GetString("discovery-locking-periods")); err != nil {
		return Config{}, fmt.Errorf("discovery-locking-periods: %w", err)
	}
	if cfg.PenaltyBps < 0 || cfg.PenaltyBps > 10_000 {
		return Config{}, fmt.Errorf("penalty-bps must be within [0, 10000], got %d", cfg.PenaltyBps)
	}
	if cfg.InitialReleaseBps < 0 || cfg.InitialReleaseBps > 10_000 {
		return Config{}, fmt.Errorf("initial-release-bps must be within [0, 10000], got %d", cfg.InitialReleaseBps)
	}

	return cfg, nil
}

func address(v *viper.Viper, key string, required bool) (common.Address, error) {
	s := strings.TrimSpace(v.GetString(key))
	if s == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s is required", key)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, s)
	}
	return common.HexToAddress(s), nil
}
