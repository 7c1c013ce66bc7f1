package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// errConfig marks precondition failures that cannot be recovered locally and
// must reach the caller of the top-level cycle.
var errConfig = errors.New("invalid configuration")

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errConfig, fmt.Sprintf(format, args...))
}

var knownMonitorModules = map[string]string{
	"daemon": "getlastblockheader",
	"wallet": "getbalance",
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Coin) == "" {
		return configErrorf("pool.coin is required")
	}
	if strings.ContainsAny(cfg.Coin, ":*?[]") {
		return configErrorf("pool.coin %q must not contain key separators or glob characters", cfg.Coin)
	}
	if cfg.HashrateWindow <= 0 {
		return configErrorf("api.hashrate_window must be > 0, got %d", cfg.HashrateWindow)
	}
	if cfg.UpdateInterval <= 0 {
		return configErrorf("api.update_interval must be > 0, got %s", cfg.UpdateInterval)
	}
	if cfg.CollectTimeout < 0 {
		return configErrorf("api.collect_timeout_seconds cannot be negative")
	}
	if cfg.APIBlocks <= 0 {
		return configErrorf("api.blocks must be > 0, got %d", cfg.APIBlocks)
	}
	if cfg.APIPayments <= 0 {
		return configErrorf("api.payments must be > 0, got %d", cfg.APIPayments)
	}
	if cfg.TargetedConcurrency <= 0 {
		return configErrorf("api.targeted_concurrency must be > 0, got %d", cfg.TargetedConcurrency)
	}
	if cfg.SlushMiningEnabled && cfg.SlushMiningWeight <= 0 {
		return configErrorf("pool.slush_mining.weight must be > 0 when slush mining is enabled")
	}
	if err := validateRPCURL("daemon.rpc_url", cfg.DaemonURL); err != nil {
		return err
	}
	if err := validateRPCURL("wallet.rpc_url", cfg.WalletURL); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(cfg.Monitoring))
	for _, m := range cfg.Monitoring {
		if _, ok := knownMonitorModules[m.Name]; !ok {
			return configErrorf("monitoring module %q is not supported (daemon, wallet)", m.Name)
		}
		if _, dup := seen[m.Name]; dup {
			return configErrorf("monitoring module %q configured twice", m.Name)
		}
		seen[m.Name] = struct{}{}
		if m.CheckInterval < 0 {
			return configErrorf("monitoring module %q check_interval cannot be negative", m.Name)
		}
	}
	switch cfg.StoreDriver {
	case storeDriverRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return configErrorf("store.redis_addr is required for the redis driver")
		}
	case storeDriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return configErrorf("store.sqlite_path is required for the sqlite driver")
		}
	default:
		return configErrorf("store.driver %q is not supported (redis, sqlite)", cfg.StoreDriver)
	}
	if cfg.ChartMaxPoints < 0 {
		return configErrorf("charts.max_points cannot be negative")
	}
	if (cfg.DiscordBotToken == "") != (cfg.DiscordChannelID == "") {
		return configErrorf("discord.bot_token and discord.channel_id must be set together")
	}
	return nil
}

func validateRPCURL(name, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return configErrorf("%s is required", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return configErrorf("%s parse error: %v", name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		if parsed.Scheme == "" {
			return configErrorf("%s %q missing protocol scheme (http/https)", name, raw)
		}
		return configErrorf("%s %q must use http or https scheme", name, raw)
	}
	return nil
}
