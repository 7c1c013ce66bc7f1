package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/flate"
)

type fakeNetwork struct {
	info  *NetworkInfo
	err   error
	calls atomic.Int32
}

func (f *fakeNetwork) Network(context.Context) (*NetworkInfo, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

// faultyStore fails hash reads while fail is set.
type faultyStore struct {
	Store
	fail atomic.Bool
}

func (f *faultyStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if f.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return f.Store.HGetAll(ctx, key)
}

type collectorFixture struct {
	cfg         Config
	store       *sqliteStore
	clock       *fakeClock
	network     *fakeNetwork
	broadcaster *BroadcastManager
	collector   *Collector
}

func newCollectorFixture(t *testing.T, store Store) *collectorFixture {
	t.Helper()
	f := &collectorFixture{
		cfg:     testConfig(),
		clock:   newFakeClock(time.Unix(1_700_000_000, 0)),
		network: &fakeNetwork{info: &NetworkInfo{Difficulty: 12345, Height: 77, Hash: "abc"}},
	}
	if store == nil {
		f.store = newTestStore(t)
		store = f.store
	}
	state := newStatsState()
	charts := newChartHistory(time.Hour, 60, f.clock)
	f.broadcaster = newBroadcastManager(f.cfg, store, state)
	f.collector = newCollector(f.cfg, collectorOptions{
		Store:       store,
		Network:     f.network,
		Charts:      charts,
		Recorder:    charts,
		State:       state,
		Broadcaster: f.broadcaster,
		Clock:       f.clock,
		Version:     "test",
		Errors:      &errorHistory{},
	})
	return f
}

func seedPool(t *testing.T, store Store, now time.Time) {
	t.Helper()
	ctx := context.Background()
	keys := poolKeys{coin: "vig"}
	for i := 1; i <= 3; i++ {
		at := now.Add(-time.Duration(i*10) * time.Second)
		member := "1000:aa:" + strconv.FormatInt(at.UnixMilli(), 10)
		if err := store.ZAdd(ctx, keys.hashrate(), float64(at.Unix()), member); err != nil {
			t.Fatalf("seed hashrate: %v", err)
		}
	}
	stale := now.Add(-700 * time.Second)
	if err := store.ZAdd(ctx, keys.hashrate(), float64(stale.Unix()), "9000:old:"+strconv.FormatInt(stale.UnixMilli(), 10)); err != nil {
		t.Fatalf("seed stale entry: %v", err)
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(store.HSet(ctx, keys.stats(), "lastBlockFound", strconv.FormatInt(now.Add(-time.Hour).UnixMilli(), 10)))
	must(store.HSet(ctx, keys.worker("aa"), "balance", "10"))
	must(store.HSet(ctx, keys.roundCurrent(), "aa", "500"))
	must(store.HSet(ctx, keys.roundCurrent(), "bb", "250"))
	must(store.ZAdd(ctx, keys.blocksCandidates(), 101, "c1:1700000000:900:1000"))
	must(store.ZAdd(ctx, keys.blocksMatured(), 99, "m1:1699990000:800:700:0:5000"))
	must(store.ZAdd(ctx, keys.blocksMatured(), 100, "m2:1699995000:800:700:1"))
	must(store.ZAdd(ctx, keys.paymentsAll(), 1699990000, "tx1:100:1:2"))
	must(store.ZAdd(ctx, keys.payments("aa"), 1699990000, "tx1:100:1:2"))
}

func decodeSnapshot(t *testing.T, snap *Snapshot) statsPayload {
	t.Helper()
	var payload statsPayload
	if err := fastJSONUnmarshal(snap.Raw, &payload); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return payload
}

func TestCollectorRunOnceBuildsSnapshot(t *testing.T) {
	f := newCollectorFixture(t, nil)
	now := f.clock.Now()
	seedPool(t, f.store, now)

	if err := f.collector.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	state := f.collector.State()
	snap := state.Snapshot()
	if snap == nil {
		t.Fatalf("no snapshot published")
	}
	if got := state.Hashrate("aa"); got != 5 {
		t.Fatalf("hashrate(aa) = %d, want 5", got)
	}
	if got := state.Hashrate("old"); got != 0 {
		t.Fatalf("stale miner still counted: %d", got)
	}

	payload := decodeSnapshot(t, snap)
	pool := payload.Pool
	if pool.Hashrate != 5 || pool.Miners != 1 {
		t.Fatalf("pool hashrate/miners = %d/%d, want 5/1", pool.Hashrate, pool.Miners)
	}
	// One candidate plus two matured blocks.
	if pool.TotalBlocks != 3 {
		t.Fatalf("totalBlocks = %d, want 3", pool.TotalBlocks)
	}
	wantBlocks := "c1:1700000000:900:1000,101,m2:1699995000:800:700:1,100,m1:1699990000:800:700:0:5000,99"
	if got := strings.Join(pool.Blocks, ","); got != wantBlocks {
		t.Fatalf("blocks = %s\nwant     %s", got, wantBlocks)
	}
	// payments:all and payments:aa exist; the aggregate key is not a miner.
	if pool.TotalMinersPaid != 1 || pool.TotalPayments != 1 {
		t.Fatalf("totalMinersPaid/totalPayments = %d/%d", pool.TotalMinersPaid, pool.TotalPayments)
	}
	if pool.RoundHashes != 750 {
		t.Fatalf("roundHashes = %v, want 750", pool.RoundHashes)
	}
	if payload.Network == nil || payload.Network.Difficulty != 12345 {
		t.Fatalf("network = %+v", payload.Network)
	}
	if payload.Config.Coin != "vig" || len(payload.Config.Ports) != 1 || payload.Config.Version != "test" {
		t.Fatalf("config = %+v", payload.Config)
	}
	if len(payload.Charts[chartSeriesHashrate]) != 1 {
		t.Fatalf("charts = %v", payload.Charts)
	}

	// The stale entry was pruned from the store.
	n, err := f.store.ZCard(context.Background(), poolKeys{coin: "vig"}.hashrate())
	if err != nil || n != 3 {
		t.Fatalf("hashrate window size = %d, %v; want 3", n, err)
	}

	r := flate.NewReader(bytes.NewReader(snap.Compressed))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if !bytes.Equal(raw, snap.Raw) {
		t.Fatalf("compressed form does not inflate to the raw snapshot")
	}
	if snap.ETag == "" {
		t.Fatalf("missing etag")
	}
}

func TestCollectorEmptyPool(t *testing.T) {
	f := newCollectorFixture(t, nil)
	if err := f.collector.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	pool := decodeSnapshot(t, f.collector.State().Snapshot()).Pool
	if pool.Hashrate != 0 || pool.Miners != 0 || pool.TotalBlocks != 0 || pool.TotalMinersPaid != 0 {
		t.Fatalf("empty pool = %+v", pool)
	}
}

func TestCollectorNetworkFailurePublishesNull(t *testing.T) {
	f := newCollectorFixture(t, nil)
	f.network.err = errors.New("daemon down")
	if err := f.collector.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	snap := f.collector.State().Snapshot()
	if !bytes.Contains(snap.Raw, []byte(`"network":null`)) {
		t.Fatalf("network section should be null: %s", snap.Raw)
	}
	if errs := f.collector.opts.Errors.Snapshot(); len(errs) != 1 || errs[0].Type != "network" {
		t.Fatalf("errors = %+v", errs)
	}
}

func TestCollectorStoreFailureKeepsPreviousSnapshot(t *testing.T) {
	store := &faultyStore{Store: newTestStore(t)}
	f := newCollectorFixture(t, store)
	if err := f.collector.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before := f.collector.State().Snapshot()

	store.fail.Store(true)
	sink := &recordingSink{}
	f.broadcaster.AddLive(sink)
	if err := f.collector.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected store failure")
	}
	if f.collector.State().Snapshot() != before {
		t.Fatalf("snapshot replaced after a failed cycle")
	}
	if len(sink.deliveries()) != 0 {
		t.Fatalf("failed cycle must not broadcast")
	}
	if last := f.collector.LastCycle(); last.Err == nil || last.Cycles != 2 {
		t.Fatalf("last cycle = %+v", last)
	}
}

func TestCollectorBroadcastsAfterPublish(t *testing.T) {
	f := newCollectorFixture(t, nil)
	seedPool(t, f.store, f.clock.Now())
	first, second, missing := &recordingSink{}, &recordingSink{}, &recordingSink{}
	f.broadcaster.AddLive(first)
	f.broadcaster.AddLive(second)
	f.broadcaster.AddAddress("nobody", missing)

	if err := f.collector.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	snap := f.collector.State().Snapshot()
	for _, s := range []*recordingSink{first, second} {
		got := s.deliveries()
		if len(got) != 1 || !bytes.Equal(got[0].Body, snap.Compressed) {
			t.Fatalf("live delivery = %+v", got)
		}
	}
	got := missing.deliveries()
	if len(got) != 1 || string(got[0].Body) != `{"error":"not found"}` {
		t.Fatalf("targeted delivery = %+v", got)
	}
}

func TestCollectorSchedulesOnClock(t *testing.T) {
	f := newCollectorFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.collector.Start(ctx)
	if f.collector.State().Snapshot() != nil {
		t.Fatalf("cycle ran before the clock moved")
	}
	f.clock.Advance(0)
	if got := f.collector.LastCycle().Cycles; got != 1 {
		t.Fatalf("cycles = %d, want 1", got)
	}
	f.clock.Advance(f.cfg.UpdateInterval - time.Second)
	if got := f.collector.LastCycle().Cycles; got != 1 {
		t.Fatalf("cycle ran early: %d", got)
	}
	f.clock.Advance(time.Second)
	if got := f.collector.LastCycle().Cycles; got != 2 {
		t.Fatalf("cycles = %d, want 2", got)
	}

	// Trigger runs immediately and restarts the interval.
	f.collector.Trigger()
	if got := f.collector.LastCycle().Cycles; got != 3 {
		t.Fatalf("cycles after trigger = %d, want 3", got)
	}
	if f.clock.Pending() != 1 {
		t.Fatalf("pending timers = %d, want 1", f.clock.Pending())
	}
	f.clock.Advance(f.cfg.UpdateInterval)
	if got := f.collector.LastCycle().Cycles; got != 4 {
		t.Fatalf("cycles = %d, want 4", got)
	}

	f.collector.Stop()
	if f.clock.Pending() != 0 {
		t.Fatalf("timer still armed after Stop")
	}
	f.clock.Advance(10 * f.cfg.UpdateInterval)
	if got := f.collector.LastCycle().Cycles; got != 4 {
		t.Fatalf("cycles after stop = %d, want 4", got)
	}
	f.collector.Trigger()
	if got := f.collector.LastCycle().Cycles; got != 4 {
		t.Fatalf("trigger after stop ran a cycle")
	}
}

func TestCollectorStoreFailureReschedules(t *testing.T) {
	store := &faultyStore{Store: newTestStore(t)}
	store.fail.Store(true)
	f := newCollectorFixture(t, store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.collector.Start(ctx)
	f.clock.Advance(0)
	if f.clock.Pending() != 1 {
		t.Fatalf("failed cycle did not re-arm")
	}
	store.fail.Store(false)
	f.clock.Advance(f.cfg.UpdateInterval)
	if f.collector.State().Snapshot() == nil {
		t.Fatalf("recovery cycle did not publish")
	}
	f.collector.Stop()
}

func TestCollectorConfigErrorStopsLoop(t *testing.T) {
	clk := newFakeClock(time.Unix(1_700_000_000, 0))
	cfg := testConfig()
	c := newCollector(cfg, collectorOptions{Clock: clk})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx)
	clk.Advance(0)
	select {
	case err := <-c.Failed():
		if !errors.Is(err, errConfig) {
			t.Fatalf("failure = %v, want errConfig", err)
		}
	default:
		t.Fatalf("missing store did not report a failure")
	}
	if clk.Pending() != 0 {
		t.Fatalf("loop re-armed after a configuration error")
	}
}

func TestCollectorCancelledCycleKeepsState(t *testing.T) {
	store := newTestStore(t)
	f := newCollectorFixture(t, store)
	f.collector.cfg.CollectTimeout = time.Nanosecond
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.collector.RunOnce(ctx); err == nil {
		t.Fatalf("expected a cancelled cycle to fail")
	}
	if f.collector.State().Snapshot() != nil {
		t.Fatalf("cancelled cycle published a snapshot")
	}
}
