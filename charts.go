package main

import (
	"context"
	"strconv"
	"strings"
	"time"
)

const (
	chartSeriesHashrate   = "hashrate"
	chartSeriesWorkers    = "workers"
	chartSeriesDifficulty = "difficulty"
)

// ChartPoint renders as [unixSeconds, value].
type ChartPoint [2]int64

// ChartProvider returns chart history as an opaque JSON-ready value.
type ChartProvider interface {
	PoolCharts(ctx context.Context, store Store, coin string) (map[string][]ChartPoint, error)
	MinerCharts(ctx context.Context, store Store, coin, address string) (map[string][]ChartPoint, error)
}

type chartSample struct {
	PoolHashrate int64
	Miners       int
	Difficulty   uint64
	MinerRates   map[string]int64
}

// chartHistory keeps series as sorted sets scored by unix time, so history
// survives restarts. At most one sample is recorded per window/maxPoints.
type chartHistory struct {
	window    time.Duration
	maxPoints int
	clk       clock
	lastAt    time.Time
}

func newChartHistory(window time.Duration, maxPoints int, clk clock) *chartHistory {
	if window <= 0 {
		window = defaultChartHistoryWindow
	}
	if maxPoints <= 0 {
		maxPoints = defaultChartMaxPoints
	}
	if clk == nil {
		clk = realClock{}
	}
	return &chartHistory{window: window, maxPoints: maxPoints, clk: clk}
}

func (h *chartHistory) step() time.Duration {
	return h.window / time.Duration(h.maxPoints)
}

// Record appends one sample to every series when the sampling step has
// elapsed since the previous one. Only the collector goroutine calls it.
func (h *chartHistory) Record(ctx context.Context, store Store, coin string, now time.Time, s chartSample) (bool, error) {
	if !h.lastAt.IsZero() && now.Sub(h.lastAt) < h.step() {
		return false, nil
	}
	keys := poolKeys{coin: coin}
	cutoff := float64(now.Add(-h.window).Unix())

	trim := func(key string) error {
		_, err := store.ZRemRangeByScore(ctx, key, below(cutoff, 0))
		return err
	}
	write := func(key string, value int64) error {
		if err := store.ZAdd(ctx, key, float64(now.Unix()), chartMember(now.Unix(), value)); err != nil {
			return err
		}
		return trim(key)
	}
	if err := write(keys.chart(chartSeriesHashrate), s.PoolHashrate); err != nil {
		return false, err
	}
	if err := write(keys.chart(chartSeriesWorkers), int64(s.Miners)); err != nil {
		return false, err
	}
	if err := write(keys.chart(chartSeriesDifficulty), int64(s.Difficulty)); err != nil {
		return false, err
	}
	for miner, rate := range s.MinerRates {
		if err := store.ZAdd(ctx, keys.minerChart(chartSeriesHashrate, miner), float64(now.Unix()), chartMember(now.Unix(), rate)); err != nil {
			return false, err
		}
	}
	// Idle miners get no new sample, so every miner series is trimmed here.
	minerKeys, err := store.Keys(ctx, keys.minerChart(chartSeriesHashrate, "*"))
	if err != nil {
		return false, err
	}
	for _, key := range minerKeys {
		if err := trim(key); err != nil {
			return false, err
		}
	}
	h.lastAt = now
	return true, nil
}

func (h *chartHistory) PoolCharts(ctx context.Context, store Store, coin string) (map[string][]ChartPoint, error) {
	keys := poolKeys{coin: coin}
	out := make(map[string][]ChartPoint, 3)
	for _, series := range []string{chartSeriesHashrate, chartSeriesWorkers, chartSeriesDifficulty} {
		points, err := h.readSeries(ctx, store, keys.chart(series))
		if err != nil {
			return nil, err
		}
		out[series] = points
	}
	return out, nil
}

func (h *chartHistory) MinerCharts(ctx context.Context, store Store, coin, address string) (map[string][]ChartPoint, error) {
	points, err := h.readSeries(ctx, store, poolKeys{coin: coin}.minerChart(chartSeriesHashrate, address))
	if err != nil {
		return nil, err
	}
	return map[string][]ChartPoint{chartSeriesHashrate: points}, nil
}

// readSeries returns the newest maxPoints samples inside the window in
// ascending time order.
func (h *chartHistory) readSeries(ctx context.Context, store Store, key string) ([]ChartPoint, error) {
	r := allScores()
	r.Min = float64(h.clk.Now().Add(-h.window).Unix())
	r.Reverse = true
	r.Limit = int64(h.maxPoints)
	members, err := store.ZRangeByScore(ctx, key, r)
	if err != nil {
		return nil, err
	}
	out := make([]ChartPoint, 0, len(members))
	for i := len(members) - 1; i >= 0; i-- {
		p, ok := parseChartMember(members[i].Member)
		if !ok {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func chartMember(at, value int64) string {
	return strconv.FormatInt(at, 10) + ":" + strconv.FormatInt(value, 10)
}

func parseChartMember(member string) (ChartPoint, bool) {
	at, value, ok := strings.Cut(member, ":")
	if !ok {
		return ChartPoint{}, false
	}
	a, err := strconv.ParseInt(at, 10, 64)
	if err != nil {
		return ChartPoint{}, false
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return ChartPoint{}, false
	}
	return ChartPoint{a, v}, true
}
