package main

import "fmt"

// tomlFloat accepts both TOML integers and floats, so "difficulty = 100"
// loads the same as "difficulty = 100.0".
type tomlFloat float64

func (f *tomlFloat) UnmarshalTOML(v interface{}) error {
	switch n := v.(type) {
	case int64:
		*f = tomlFloat(n)
	case float64:
		*f = tomlFloat(n)
	default:
		return fmt.Errorf("expected a number, got %v (%T)", v, v)
	}
	return nil
}

type portFileConfig struct {
	Port       int       `toml:"port"`
	Difficulty tomlFloat `toml:"difficulty"`
	Desc       string    `toml:"desc"`
	Hidden     bool      `toml:"hidden"`
}

type slushMiningConfig struct {
	Enabled bool       `toml:"enabled"`
	Weight  *tomlFloat `toml:"weight"`
}

type poolConfig struct {
	Coin                 string            `toml:"coin"`
	Symbol               string            `toml:"symbol"`
	CoinUnits            *int64            `toml:"coin_units"`
	CoinDifficultyTarget *int              `toml:"coin_difficulty_target"`
	Ports                []portFileConfig  `toml:"ports"`
	SlushMining          slushMiningConfig `toml:"slush_mining"`
}

type blockUnlockerConfig struct {
	PoolFee *tomlFloat `toml:"pool_fee"`
	Depth   *int       `toml:"depth"`
}

type paymentsConfig struct {
	MinPayment   *int64 `toml:"min_payment"`
	Denomination *int64 `toml:"denomination"`
}

type apiConfig struct {
	Listen                string `toml:"listen"`
	Password              string `toml:"password"`
	HashrateWindow        *int   `toml:"hashrate_window"`
	UpdateInterval        *int   `toml:"update_interval"`
	CollectTimeoutSeconds *int   `toml:"collect_timeout_seconds"`
	Blocks                *int   `toml:"blocks"`
	Payments              *int   `toml:"payments"`
	TargetedConcurrency   *int   `toml:"targeted_concurrency"`
}

type rpcEndpointConfig struct {
	RPCURL string `toml:"rpc_url"`
}

type monitorModuleFileConfig struct {
	Name          string `toml:"name"`
	CheckInterval int    `toml:"check_interval"`
	RPCMethod     string `toml:"rpc_method"`
}

type monitoringConfig struct {
	RecordFailures *bool                     `toml:"record_failures"`
	Modules        []monitorModuleFileConfig `toml:"modules"`
}

type storeConfig struct {
	Driver        string `toml:"driver"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	SQLitePath    string `toml:"sqlite_path"`
}

type loggingConfig struct {
	Level     string `toml:"level"`
	Directory string `toml:"directory"`
	Stdout    bool   `toml:"stdout"`
}

type chartsConfig struct {
	HistoryWindowSeconds *int `toml:"history_window_seconds"`
	MaxPoints            *int `toml:"max_points"`
}

type donationConfig struct {
	Name    string    `toml:"name"`
	Percent tomlFloat `toml:"percent"`
}

type discordConfig struct {
	BotToken  string `toml:"bot_token"`
	ChannelID string `toml:"channel_id"`
}

type baseFileConfig struct {
	DataDir       string              `toml:"data_dir"`
	Pool          poolConfig          `toml:"pool"`
	BlockUnlocker blockUnlockerConfig `toml:"block_unlocker"`
	Payments      paymentsConfig      `toml:"payments"`
	API           apiConfig           `toml:"api"`
	Daemon        rpcEndpointConfig   `toml:"daemon"`
	Wallet        rpcEndpointConfig   `toml:"wallet"`
	Monitoring    monitoringConfig    `toml:"monitoring"`
	Store         storeConfig         `toml:"store"`
	Logging       loggingConfig       `toml:"logging"`
	Charts        chartsConfig        `toml:"charts"`
	Donations     []donationConfig    `toml:"donations"`
	Discord       discordConfig       `toml:"discord"`
}
