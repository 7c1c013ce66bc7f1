package main

import (
	"context"
	"testing"
	"time"
)

func TestChartHistorySamplesOncePerStep(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	start := time.Unix(1_700_000_000, 0)
	clk := newFakeClock(start)
	h := newChartHistory(time.Hour, 6, clk) // 10 minute step

	sample := chartSample{PoolHashrate: 50, Miners: 2, Difficulty: 900, MinerRates: map[string]int64{"aa": 30}}
	recorded, err := h.Record(ctx, store, "vig", start, sample)
	if err != nil || !recorded {
		t.Fatalf("first record = %v, %v", recorded, err)
	}
	recorded, err = h.Record(ctx, store, "vig", start.Add(time.Minute), sample)
	if err != nil || recorded {
		t.Fatalf("record inside step = %v, %v; want skipped", recorded, err)
	}
	sample.PoolHashrate = 70
	clk.Advance(10 * time.Minute)
	if _, err := h.Record(ctx, store, "vig", clk.Now(), sample); err != nil {
		t.Fatalf("second record: %v", err)
	}

	charts, err := h.PoolCharts(ctx, store, "vig")
	if err != nil {
		t.Fatalf("pool charts: %v", err)
	}
	rates := charts[chartSeriesHashrate]
	if len(rates) != 2 {
		t.Fatalf("hashrate points = %v, want 2", rates)
	}
	if rates[0] != (ChartPoint{start.Unix(), 50}) || rates[1][1] != 70 {
		t.Fatalf("hashrate points = %v", rates)
	}
	if got := charts[chartSeriesWorkers]; len(got) != 2 || got[0][1] != 2 {
		t.Fatalf("workers points = %v", got)
	}

	miner, err := h.MinerCharts(ctx, store, "vig", "aa")
	if err != nil {
		t.Fatalf("miner charts: %v", err)
	}
	if got := miner[chartSeriesHashrate]; len(got) != 2 || got[1][1] != 30 {
		t.Fatalf("miner points = %v", got)
	}
	none, err := h.MinerCharts(ctx, store, "vig", "zz")
	if err != nil || len(none[chartSeriesHashrate]) != 0 {
		t.Fatalf("unknown miner charts = %v, %v", none, err)
	}
}

func TestChartHistoryTrimsOutsideWindow(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	start := time.Unix(1_700_000_000, 0)
	clk := newFakeClock(start.Add(90 * time.Minute))
	h := newChartHistory(time.Hour, 6, clk)
	for i := 0; i < 10; i++ {
		at := start.Add(time.Duration(i) * 10 * time.Minute)
		if _, err := h.Record(ctx, store, "vig", at, chartSample{PoolHashrate: int64(i)}); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	points, err := h.readSeries(ctx, store, poolKeys{coin: "vig"}.chart(chartSeriesHashrate))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(points) != 6 {
		t.Fatalf("points = %d, want 6", len(points))
	}
	if points[0][1] != 4 || points[5][1] != 9 {
		t.Fatalf("points = %v, want values 4..9", points)
	}
}

func TestChartHistoryDropsIdleMiners(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	start := time.Unix(1_700_000_000, 0)
	clk := newFakeClock(start)
	h := newChartHistory(time.Hour, 6, clk)
	keys := poolKeys{coin: "vig"}

	if _, err := h.Record(ctx, store, "vig", start, chartSample{MinerRates: map[string]int64{"gone": 5, "aa": 7}}); err != nil {
		t.Fatalf("first record: %v", err)
	}

	// Past the window the idle miner's history must not be served even
	// before the next sample trims it.
	clk.Advance(48 * time.Hour)
	charts, err := h.MinerCharts(ctx, store, "vig", "gone")
	if err != nil {
		t.Fatalf("miner charts: %v", err)
	}
	if got := charts[chartSeriesHashrate]; len(got) != 0 {
		t.Fatalf("stale points served: %v", got)
	}

	if _, err := h.Record(ctx, store, "vig", clk.Now(), chartSample{MinerRates: map[string]int64{"aa": 9}}); err != nil {
		t.Fatalf("second record: %v", err)
	}
	n, err := store.ZCard(ctx, keys.minerChart(chartSeriesHashrate, "gone"))
	if err != nil || n != 0 {
		t.Fatalf("idle miner series size = %d, %v; want trimmed", n, err)
	}
	left, err := store.Keys(ctx, keys.minerChart(chartSeriesHashrate, "*"))
	if err != nil || len(left) != 1 || left[0] != keys.minerChart(chartSeriesHashrate, "aa") {
		t.Fatalf("miner chart keys = %v, %v", left, err)
	}
	charts, err = h.MinerCharts(ctx, store, "vig", "aa")
	if err != nil {
		t.Fatalf("miner charts: %v", err)
	}
	if got := charts[chartSeriesHashrate]; len(got) != 1 || got[0][1] != 9 {
		t.Fatalf("active miner points = %v", got)
	}
}

func TestParseChartMember(t *testing.T) {
	p, ok := parseChartMember(chartMember(1700000000, 42))
	if !ok || p != (ChartPoint{1700000000, 42}) {
		t.Fatalf("round trip = %v, %v", p, ok)
	}
	if _, ok := parseChartMember("garbage"); ok {
		t.Fatalf("expected failure")
	}
}
