package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

var errConfigMissing = errors.New("config file missing")

// loadConfig reads the TOML config at path and applies it over the defaults.
// A missing file writes an example next to it and returns errConfigMissing.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if strings.TrimSpace(path) == "" {
		path = defaultConfigFile
	}
	fc, ok, err := loadBaseConfigFile(path)
	if err != nil {
		return cfg, err
	}
	if !ok {
		examplePath := path + ".example"
		if _, statErr := os.Stat(examplePath); errors.Is(statErr, os.ErrNotExist) {
			if werr := atomicWriteFile(examplePath, configExample); werr != nil {
				logger.Warn("write example config", "path", examplePath, "error", werr)
			}
		}
		return cfg, fmt.Errorf("%w: %s (see %s)", errConfigMissing, path, examplePath)
	}
	applyBaseConfig(&cfg, *fc)
	return cfg, nil
}

func loadTOMLFile[T any](path string) (*T, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg T
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, true, nil
}

func loadBaseConfigFile(path string) (*baseFileConfig, bool, error) {
	return loadTOMLFile[baseFileConfig](path)
}

func applyBaseConfig(cfg *Config, fc baseFileConfig) {
	if fc.DataDir != "" {
		cfg.DataDir = strings.TrimSpace(fc.DataDir)
		cfg.SQLitePath = filepath.Join(cfg.DataDir, "state", "pool.db")
	}

	if fc.Pool.Coin != "" {
		cfg.Coin = strings.TrimSpace(fc.Pool.Coin)
	}
	if fc.Pool.Symbol != "" {
		cfg.Symbol = strings.TrimSpace(fc.Pool.Symbol)
	}
	if fc.Pool.CoinUnits != nil {
		cfg.CoinUnits = *fc.Pool.CoinUnits
	}
	if fc.Pool.CoinDifficultyTarget != nil {
		cfg.CoinDifficultyTarget = *fc.Pool.CoinDifficultyTarget
		cfg.SlushMiningWeight = float64(cfg.CoinDifficultyTarget)
	}
	if len(fc.Pool.Ports) > 0 {
		cfg.Ports = make([]PortConfig, 0, len(fc.Pool.Ports))
		for _, p := range fc.Pool.Ports {
			cfg.Ports = append(cfg.Ports, PortConfig{
				Port:       p.Port,
				Difficulty: float64(p.Difficulty),
				Desc:       p.Desc,
				Hidden:     p.Hidden,
			})
		}
	}
	cfg.SlushMiningEnabled = fc.Pool.SlushMining.Enabled
	if fc.Pool.SlushMining.Weight != nil {
		cfg.SlushMiningWeight = float64(*fc.Pool.SlushMining.Weight)
	}

	if fc.BlockUnlocker.PoolFee != nil {
		cfg.PoolFeePercent = float64(*fc.BlockUnlocker.PoolFee)
	}
	if fc.BlockUnlocker.Depth != nil {
		cfg.UnlockDepth = *fc.BlockUnlocker.Depth
	}
	if fc.Payments.MinPayment != nil {
		cfg.MinPayment = *fc.Payments.MinPayment
	}
	if fc.Payments.Denomination != nil {
		cfg.Denomination = *fc.Payments.Denomination
	}

	if fc.API.Listen != "" {
		cfg.APIListen = strings.TrimSpace(fc.API.Listen)
	}
	cfg.APIPassword = strings.TrimSpace(fc.API.Password)
	if fc.API.HashrateWindow != nil {
		cfg.HashrateWindow = *fc.API.HashrateWindow
	}
	if fc.API.UpdateInterval != nil {
		cfg.UpdateInterval = time.Duration(*fc.API.UpdateInterval) * time.Second
	}
	if fc.API.CollectTimeoutSeconds != nil {
		cfg.CollectTimeout = time.Duration(*fc.API.CollectTimeoutSeconds) * time.Second
	}
	if fc.API.Blocks != nil {
		cfg.APIBlocks = *fc.API.Blocks
	}
	if fc.API.Payments != nil {
		cfg.APIPayments = *fc.API.Payments
	}
	if fc.API.TargetedConcurrency != nil {
		cfg.TargetedConcurrency = *fc.API.TargetedConcurrency
	}

	if fc.Daemon.RPCURL != "" {
		cfg.DaemonURL = strings.TrimSpace(fc.Daemon.RPCURL)
	}
	if fc.Wallet.RPCURL != "" {
		cfg.WalletURL = strings.TrimSpace(fc.Wallet.RPCURL)
	}

	if fc.Monitoring.RecordFailures != nil {
		cfg.MonitorRecordFailures = *fc.Monitoring.RecordFailures
	}
	if len(fc.Monitoring.Modules) > 0 {
		cfg.Monitoring = make([]MonitorModuleConfig, 0, len(fc.Monitoring.Modules))
		for _, m := range fc.Monitoring.Modules {
			cfg.Monitoring = append(cfg.Monitoring, MonitorModuleConfig{
				Name:          strings.ToLower(strings.TrimSpace(m.Name)),
				CheckInterval: time.Duration(m.CheckInterval) * time.Second,
				RPCMethod:     strings.TrimSpace(m.RPCMethod),
			})
		}
	}

	if fc.Store.Driver != "" {
		cfg.StoreDriver = strings.ToLower(strings.TrimSpace(fc.Store.Driver))
	}
	if fc.Store.RedisAddr != "" {
		cfg.RedisAddr = strings.TrimSpace(fc.Store.RedisAddr)
	}
	cfg.RedisPassword = fc.Store.RedisPassword
	cfg.RedisDB = fc.Store.RedisDB
	if fc.Store.SQLitePath != "" {
		cfg.SQLitePath = strings.TrimSpace(fc.Store.SQLitePath)
	}

	if fc.Logging.Level != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(fc.Logging.Level))
	}
	if fc.Logging.Directory != "" {
		cfg.LogDir = strings.TrimSpace(fc.Logging.Directory)
	}
	cfg.LogStdout = fc.Logging.Stdout

	if fc.Charts.HistoryWindowSeconds != nil {
		cfg.ChartHistoryWindow = time.Duration(*fc.Charts.HistoryWindowSeconds) * time.Second
	}
	if fc.Charts.MaxPoints != nil {
		cfg.ChartMaxPoints = *fc.Charts.MaxPoints
	}

	if len(fc.Donations) > 0 {
		cfg.Donations = make(map[string]float64, len(fc.Donations))
		for _, d := range fc.Donations {
			name := strings.TrimSpace(d.Name)
			if name == "" {
				continue
			}
			cfg.Donations[name] = float64(d.Percent)
		}
	}

	cfg.DiscordBotToken = strings.TrimSpace(fc.Discord.BotToken)
	cfg.DiscordChannelID = strings.TrimSpace(fc.Discord.ChannelID)
}
