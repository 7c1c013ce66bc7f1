package main

import (
	"path/filepath"
	"time"
)

func defaultConfig() Config {
	return Config{
		Coin:                  defaultCoin,
		Symbol:                defaultSymbol,
		CoinUnits:             defaultCoinUnits,
		CoinDifficultyTarget:  defaultCoinDifficultyTarget,
		SlushMiningWeight:     float64(defaultCoinDifficultyTarget),
		PoolFeePercent:        defaultPoolFeePercent,
		UnlockDepth:           defaultBlockUnlockerDepth,
		MinPayment:            defaultMinPayment,
		Denomination:          defaultDenomination,
		APIListen:             defaultAPIListen,
		HashrateWindow:        defaultHashrateWindow,
		UpdateInterval:        defaultUpdateIntervalSec * time.Second,
		CollectTimeout:        defaultCollectTimeoutSec * time.Second,
		APIBlocks:             defaultAPIBlocks,
		APIPayments:           defaultAPIPayments,
		TargetedConcurrency:   defaultTargetedConcurrency,
		DaemonURL:             defaultDaemonURL,
		WalletURL:             defaultWalletURL,
		MonitorRecordFailures: true,
		StoreDriver:           defaultStoreDriver,
		RedisAddr:             defaultRedisAddr,
		SQLitePath:            filepath.Join(defaultDataDir, "state", "pool.db"),
		DataDir:               defaultDataDir,
		LogDir:                defaultLogDir,
		LogLevel:              "info",
		ChartHistoryWindow:    defaultChartHistoryWindow,
		ChartMaxPoints:        defaultChartMaxPoints,
		Donations:             map[string]float64{},
	}
}
