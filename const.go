package main

import "time"

const poolSoftwareName = "poolapi"

const (
	defaultConfigFile = "config.toml"
	defaultDataDir    = "data"
	defaultLogDir     = "logs"

	defaultCoin                 = "vig"
	defaultSymbol               = "VIG"
	defaultCoinUnits            = int64(100000000)
	defaultCoinDifficultyTarget = 120

	defaultAPIListen           = ":8117"
	defaultHashrateWindow      = 600
	defaultUpdateIntervalSec   = 5
	defaultCollectTimeoutSec   = 30
	defaultAPIBlocks           = 30
	defaultAPIPayments         = 30
	defaultTargetedConcurrency = 8

	defaultDaemonURL = "http://127.0.0.1:19019/json_rpc"
	defaultWalletURL = "http://127.0.0.1:8082/json_rpc"

	defaultStoreDriver = storeDriverRedis
	defaultRedisAddr   = "127.0.0.1:6379"

	defaultBlockUnlockerDepth = 60
	defaultPoolFeePercent     = 1.8
	defaultMinPayment         = int64(100000000)
	defaultDenomination       = int64(100000000)

	defaultChartHistoryWindow = 24 * time.Hour
	defaultChartMaxPoints     = 720
)

const (
	// rpcCallTimeout bounds one daemon/wallet round-trip including retries.
	rpcCallTimeout = 30 * time.Second
	// liveConnectionQueue is the per-subscriber delivery buffer. A
	// long-poll only ever consumes one payload.
	liveConnectionQueue = 1
)

// buildTime can be overridden at build time with:
//
//	go build -ldflags="-X main.buildTime=2025-01-02T15:04:05Z"
var buildTime = ""

// buildVersion can be overridden at build time with:
//
//	go build -ldflags="-X main.buildVersion=v1.2.3"
var buildVersion = "dev"
