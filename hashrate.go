package main

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// hashrateEntryDelimiter joins weight, miner and timestamp in one window entry.
const hashrateEntryDelimiter = ":"

// MinerHashrate is one row of the per-miner table.
type MinerHashrate struct {
	Weight  int64  `json:"weight"`
	Rate    int64  `json:"hashrate"`
	Display string `json:"hashrateString"`
}

// HashrateTable is rebuilt from scratch on every collection cycle, so a miner
// that goes idle beyond the window drops out on the next pass.
type HashrateTable struct {
	Miners        map[string]MinerHashrate
	TotalWeight   int64
	PoolRate      int64
	WindowSeconds int
	Skipped       int
}

func emptyHashrateTable() *HashrateTable {
	return &HashrateTable{Miners: map[string]MinerHashrate{}}
}

// Hashrate returns the smoothed rate of miner, zero when unknown.
func (t *HashrateTable) Hashrate(miner string) int64 {
	if t == nil {
		return 0
	}
	return t.Miners[miner].Rate
}

// Display returns the formatted rate of miner, or the zero rate when unknown.
func (t *HashrateTable) Display(miner string) string {
	if t == nil {
		return readableRate(0)
	}
	if row, ok := t.Miners[miner]; ok {
		return row.Display
	}
	return readableRate(0)
}

// MinerCount is the number of miners with at least one entry in the window.
func (t *HashrateTable) MinerCount() int {
	if t == nil {
		return 0
	}
	return len(t.Miners)
}

// parseHashrateEntry splits "weight:miner:timestamp". Miner identities may
// themselves contain the delimiter; the first field is always the weight and
// the last the timestamp.
func parseHashrateEntry(entry string) (weight int64, miner string, ok bool) {
	parts := strings.Split(entry, hashrateEntryDelimiter)
	if len(parts) < 2 {
		return 0, "", false
	}
	w, ok := parseShareWeight(parts[0])
	if !ok {
		return 0, "", false
	}
	if len(parts) == 2 {
		miner = parts[1]
	} else {
		if _, err := strconv.ParseInt(strings.TrimSpace(parts[len(parts)-1]), 10, 64); err != nil {
			return 0, "", false
		}
		miner = strings.Join(parts[1:len(parts)-1], hashrateEntryDelimiter)
	}
	if miner == "" {
		return 0, "", false
	}
	return w, miner, true
}

// parseShareWeight reads an integer weight. Fractional weights keep their
// integer part.
func parseShareWeight(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if w, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return w, w >= 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(math.Trunc(f)), true
}

// aggregateHashrate sums the window entries per miner and smooths them by the
// window length. Malformed entries are counted in Skipped and otherwise
// ignored.
func aggregateHashrate(entries []string, windowSeconds int) *HashrateTable {
	table := emptyHashrateTable()
	table.WindowSeconds = windowSeconds
	if windowSeconds <= 0 {
		table.Skipped = len(entries)
		return table
	}
	weights := make(map[string]int64)
	for _, entry := range entries {
		w, miner, ok := parseHashrateEntry(entry)
		if !ok {
			table.Skipped++
			continue
		}
		weights[miner] += w
		table.TotalWeight += w
	}
	window := float64(windowSeconds)
	for miner, w := range weights {
		rate := int64(math.Round(float64(w) / window))
		table.Miners[miner] = MinerHashrate{
			Weight:  w,
			Rate:    rate,
			Display: readableRate(float64(rate)),
		}
	}
	table.PoolRate = int64(math.Round(float64(table.TotalWeight) / window))
	return table
}

// slushPolicy is the optional time decay applied to round shares.
type slushPolicy struct {
	Enabled bool
	Weight  float64
}

// normalizeBlockFoundUnix accepts lastBlockFound stored either in seconds or
// in milliseconds and returns seconds.
func normalizeBlockFoundUnix(v int64) int64 {
	if v > 1e12 {
		return v / 1000
	}
	return v
}

// roundShareTotal sums the current round's shares. With slush mining each
// miner's value is divided by e^((lastBlockFound-now)/weight). now is taken
// once by the caller so every miner sees the same decay.
func roundShareTotal(shares map[string]string, policy slushPolicy, lastBlockFound int64, now time.Time) float64 {
	divisor := 1.0
	if policy.Enabled && policy.Weight > 0 && lastBlockFound > 0 {
		exp := float64(normalizeBlockFoundUnix(lastBlockFound)-now.Unix()) / policy.Weight
		divisor = math.Exp(exp)
		if divisor == 0 || math.IsInf(divisor, 0) || math.IsNaN(divisor) {
			divisor = 1
		}
	}
	var total float64
	for _, raw := range shares {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		total += v / divisor
	}
	return total
}
