package main

import (
	"sort"
	"time"
)

var configExample = []byte(`# poolapi configuration
[pool]
coin = "vig"
symbol = "VIG"
coin_units = 100000000
coin_difficulty_target = 120

[[pool.ports]]
port = 3333
difficulty = 100
desc = "Low end hardware"

[[pool.ports]]
port = 5555
difficulty = 2000
desc = "Internal relay"
hidden = true

[pool.slush_mining]
enabled = false
weight = 120

[block_unlocker]
pool_fee = 1.8
depth = 60

[payments]
min_payment = 100000000
denomination = 100000000

[api]
listen = ":8117"
# password = ""            # generated and logged at startup when empty
hashrate_window = 600
update_interval = 5
collect_timeout_seconds = 30
blocks = 30
payments = 30

[daemon]
rpc_url = "http://127.0.0.1:19019/json_rpc"

[wallet]
rpc_url = "http://127.0.0.1:8082/json_rpc"

[monitoring]
record_failures = true

[[monitoring.modules]]
name = "daemon"
check_interval = 60

[[monitoring.modules]]
name = "wallet"
check_interval = 60

[store]
driver = "redis"          # redis | sqlite
redis_addr = "127.0.0.1:6379"

[logging]
level = "info"
directory = "logs"

# [[donations]]
# name = "devDonation"
# percent = 0.5

# [discord]
# bot_token = ""
# channel_id = ""
`)

// PortConfig is one stratum port advertised by the pool.
type PortConfig struct {
	Port       int
	Difficulty float64
	Desc       string
	Hidden     bool
}

// MonitorModuleConfig configures one externally polled dependency.
type MonitorModuleConfig struct {
	Name          string
	CheckInterval time.Duration
	RPCMethod     string
}

type Config struct {
	// Coin identity; Coin is also the store namespace.
	Coin                 string
	Symbol               string
	CoinUnits            int64
	CoinDifficultyTarget int

	// Stratum ports and reward policy.
	Ports              []PortConfig
	SlushMiningEnabled bool
	SlushMiningWeight  float64
	PoolFeePercent     float64
	UnlockDepth        int
	MinPayment         int64
	Denomination       int64

	// API.
	APIListen           string
	APIPassword         string
	HashrateWindow      int // seconds
	UpdateInterval      time.Duration
	CollectTimeout      time.Duration // 0 disables
	APIBlocks           int
	APIPayments         int
	TargetedConcurrency int

	// Remote services.
	DaemonURL string
	WalletURL string

	Monitoring            []MonitorModuleConfig
	MonitorRecordFailures bool

	// Persistence.
	StoreDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string

	DataDir   string
	LogDir    string
	LogLevel  string
	LogStdout bool

	ChartHistoryWindow time.Duration
	ChartMaxPoints     int

	Donations map[string]float64

	DiscordBotToken  string
	DiscordChannelID string
}

// publicPorts returns the ports that are not flagged hidden, in config order.
func (cfg Config) publicPorts() []PortConfig {
	out := make([]PortConfig, 0, len(cfg.Ports))
	for _, p := range cfg.Ports {
		if p.Hidden {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (cfg Config) monitorModuleNames() []string {
	names := make([]string, 0, len(cfg.Monitoring))
	for _, m := range cfg.Monitoring {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}
