package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type chartRecorder interface {
	Record(ctx context.Context, store Store, coin string, now time.Time, s chartSample) (bool, error)
}

type collectorOptions struct {
	Store       Store
	Network     networkSource
	Charts      ChartProvider
	Recorder    chartRecorder
	State       *StatsState
	Broadcaster *BroadcastManager
	Clock       clock
	Version     string
	Errors      *errorHistory
}

// cycleStatus describes the most recent collection cycle.
type cycleStatus struct {
	At       time.Time
	Duration time.Duration
	Err      error
	Cycles   uint64
}

// Collector builds one Snapshot per cycle and re-arms itself after the
// broadcast finishes, so a slow store or daemon stretches the period instead
// of stacking cycles.
type Collector struct {
	cfg  Config
	keys poolKeys
	opts collectorOptions

	runMu sync.Mutex

	mu      sync.Mutex
	ctx     context.Context
	timer   stopper
	gen     uint64
	started bool
	stopped bool
	last    cycleStatus
	failed  chan error
}

func newCollector(cfg Config, opts collectorOptions) *Collector {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.State == nil {
		opts.State = newStatsState()
	}
	return &Collector{
		cfg:    cfg,
		keys:   poolKeys{coin: cfg.Coin},
		opts:   opts,
		ctx:    context.Background(),
		failed: make(chan error, 1),
	}
}

func (c *Collector) State() *StatsState { return c.opts.State }

// Failed delivers the precondition error that stopped the cycle loop.
func (c *Collector) Failed() <-chan error { return c.failed }

// Start runs the first cycle right away and keeps cycling until Stop or ctx
// is done.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.stopped {
		return
	}
	c.started = true
	c.ctx = ctx
	c.scheduleLocked(0)
	go func() {
		<-ctx.Done()
		c.Stop()
	}()
}

// Stop cancels the pending cycle. A cycle already running completes but does
// not re-arm.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.cancelTimerLocked()
}

// Trigger cancels the pending timer and runs a cycle now. It waits for a
// running cycle to finish first.
func (c *Collector) Trigger() {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.cancelTimerLocked()
	c.mu.Unlock()
	c.cycle()
}

func (c *Collector) LastCycle() cycleStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Collector) cancelTimerLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Collector) scheduleLocked(d time.Duration) {
	if c.stopped {
		return
	}
	c.cancelTimerLocked()
	gen := c.gen
	c.timer = c.opts.Clock.AfterFunc(d, func() { c.fire(gen) })
}

func (c *Collector) fire(gen uint64) {
	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()
	c.cycle()
}

func (c *Collector) cycle() {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	err := c.RunOnce(ctx)
	if err != nil {
		if errors.Is(err, errConfig) {
			logger.Error("collection stopped", "error", err)
			select {
			case c.failed <- err:
			default:
			}
			c.Stop()
			return
		}
		logger.Warn("collection cycle failed, keeping previous snapshot", "error", err)
	}

	c.mu.Lock()
	c.scheduleLocked(c.cfg.UpdateInterval)
	c.mu.Unlock()
}

// RunOnce runs one full cycle: query, aggregate, publish and broadcast. It
// does not touch the timer. Precondition errors wrap errConfig.
func (c *Collector) RunOnce(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	started := time.Now()
	now := c.opts.Clock.Now()
	err := c.runLocked(ctx, now)
	elapsed := time.Since(started)
	collectorCycleDuration.Observe(elapsed.Seconds())

	c.mu.Lock()
	c.last.At = now
	c.last.Duration = elapsed
	c.last.Err = err
	c.last.Cycles++
	c.mu.Unlock()
	return err
}

func (c *Collector) runLocked(ctx context.Context, now time.Time) error {
	if err := c.checkPreconditions(); err != nil {
		collectorCycleFailures.WithLabelValues("config").Inc()
		return err
	}
	if c.cfg.CollectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CollectTimeout)
		defer cancel()
	}

	snap, table, err := c.collect(ctx, now)
	if err != nil {
		reason := "store"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		collectorCycleFailures.WithLabelValues(reason).Inc()
		c.opts.Errors.Record("collector", err.Error(), now)
		return err
	}

	c.opts.State.publishHashrates(table)
	c.opts.State.publishSnapshot(snap)
	snapshotBytes.WithLabelValues("raw").Set(float64(len(snap.Raw)))
	snapshotBytes.WithLabelValues("compressed").Set(float64(len(snap.Compressed)))
	snapshotMiners.Set(float64(table.MinerCount()))
	snapshotPoolHashrate.Set(float64(table.PoolRate))

	if c.opts.Broadcaster != nil {
		live, targeted := c.opts.Broadcaster.Broadcast(ctx, snap)
		logger.Debug("snapshot broadcast",
			"live_delivered", live.Delivered,
			"live_failed", live.Failed,
			"address_delivered", targeted.Delivered,
			"address_not_found", targeted.NotFound,
			"address_failed", targeted.Failed,
		)
	}
	return nil
}

func (c *Collector) checkPreconditions() error {
	switch {
	case c.opts.Store == nil:
		return configErrorf("collector has no store")
	case c.cfg.Coin == "":
		return configErrorf("pool.coin is required")
	case c.cfg.HashrateWindow <= 0:
		return configErrorf("api.hashrate_window must be > 0")
	case c.cfg.UpdateInterval <= 0:
		return configErrorf("api.update_interval must be > 0")
	}
	return nil
}

// collect builds the snapshot and hashrate table without publishing either.
// Network and chart failures degrade to null sections; store failures abort.
func (c *Collector) collect(ctx context.Context, now time.Time) (*Snapshot, *HashrateTable, error) {
	q, err := queryPool(ctx, c.opts.Store, c.keys, c.cfg, now)
	if err != nil {
		return nil, nil, fmt.Errorf("query pool: %w", err)
	}

	table := aggregateHashrate(windowMembers(q.WindowEntries), c.cfg.HashrateWindow)
	if table.Skipped > 0 {
		hashrateEntriesSkipped.Add(float64(table.Skipped))
		logger.Debug("skipped malformed hashrate entries", "count", table.Skipped)
	}
	lastBlockFound, lastBlockFoundRaw := q.lastBlockFound()
	roundHashes := roundShareTotal(q.RoundShares, slushPolicy{
		Enabled: c.cfg.SlushMiningEnabled,
		Weight:  c.cfg.SlushMiningWeight,
	}, lastBlockFound, now)

	var network *NetworkInfo
	if c.opts.Network != nil {
		network, err = c.opts.Network.Network(ctx)
		if err != nil {
			logger.Warn("network query failed", "error", err)
			c.opts.Errors.Record("network", err.Error(), now)
			network = nil
		}
	}

	if c.opts.Recorder != nil {
		sample := chartSample{
			PoolHashrate: table.PoolRate,
			Miners:       table.MinerCount(),
			MinerRates:   make(map[string]int64, len(table.Miners)),
		}
		if network != nil {
			sample.Difficulty = network.Difficulty
		}
		for miner, row := range table.Miners {
			sample.MinerRates[miner] = row.Rate
		}
		if _, err := c.opts.Recorder.Record(ctx, c.opts.Store, c.cfg.Coin, now, sample); err != nil {
			logger.Warn("chart history write failed", "error", err)
		}
	}

	var charts map[string][]ChartPoint
	if c.opts.Charts != nil {
		charts, err = c.opts.Charts.PoolCharts(ctx, c.opts.Store, c.cfg.Coin)
		if err != nil {
			logger.Warn("chart query failed", "error", err)
			charts = nil
		}
	}

	blocks, candidatesFlat := q.blocksFlat()
	minersPaid := len(q.PaymentKeys) - 1
	if minersPaid < 0 {
		minersPaid = 0
	}
	payload := &statsPayload{
		Config: publicConfigFor(c.cfg, c.opts.Version),
		Pool: poolStats{
			Stats:           q.Stats,
			Blocks:          blocks,
			TotalBlocks:     q.MaturedCount + int64(candidatesFlat/2),
			Payments:        flattenScored(q.Payments),
			TotalPayments:   q.PaymentCount,
			TotalMinersPaid: minersPaid,
			Miners:          table.MinerCount(),
			Hashrate:        table.PoolRate,
			RoundHashes:     roundHashes,
			LastBlockFound:  lastBlockFoundRaw,
		},
		Network: network,
		Charts:  charts,
	}
	snap, err := buildSnapshot(payload, now)
	if err != nil {
		return nil, nil, err
	}
	return snap, table, nil
}
