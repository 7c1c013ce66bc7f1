package main

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// poolQueryResult holds the replies of one cycle's store batch, one named
// field per query.
type poolQueryResult struct {
	WindowEntries []ScoredMember
	Stats         map[string]string
	Candidates    []ScoredMember
	Matured       []ScoredMember
	RoundShares   map[string]string
	MaturedCount  int64
	Payments      []ScoredMember
	PaymentCount  int64
	PaymentKeys   []string
}

// lastBlockFound is the unix time of the pool's newest block, 0 when unknown.
func (r *poolQueryResult) lastBlockFound() (int64, string) {
	raw := r.Stats["lastBlockFound"]
	if raw == "" {
		return 0, ""
	}
	v, ok := parseStoreInt(raw)
	if !ok {
		return 0, raw
	}
	return v, raw
}

// blocksFlat is candidates followed by matured blocks in the
// member, score, member, score form.
func (r *poolQueryResult) blocksFlat() (all []string, candidatesFlat int) {
	candidates := flattenScored(r.Candidates)
	all = append(candidates, flattenScored(r.Matured)...)
	return all, len(candidates)
}

// queryPool prunes the hashrate window and then reads every collection in
// parallel. The first failing query cancels the others.
func queryPool(ctx context.Context, store Store, keys poolKeys, cfg Config, now time.Time) (*poolQueryResult, error) {
	windowStart := float64(now.Unix() - int64(cfg.HashrateWindow))
	if _, err := store.ZRemRangeByScore(ctx, keys.hashrate(), below(windowStart, 0)); err != nil {
		return nil, err
	}

	res := &poolQueryResult{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res.WindowEntries, err = store.ZRangeByScore(gctx, keys.hashrate(), ScoreRange{Min: windowStart, Max: math.Inf(1)})
		return err
	})
	g.Go(func() error {
		var err error
		res.Stats, err = store.HGetAll(gctx, keys.stats())
		return err
	})
	g.Go(func() error {
		var err error
		res.Candidates, err = store.ZRangeByScore(gctx, keys.blocksCandidates(), allScores())
		return err
	})
	g.Go(func() error {
		r := allScores()
		r.Reverse = true
		r.Limit = int64(cfg.APIBlocks)
		var err error
		res.Matured, err = store.ZRangeByScore(gctx, keys.blocksMatured(), r)
		return err
	})
	g.Go(func() error {
		var err error
		res.RoundShares, err = store.HGetAll(gctx, keys.roundCurrent())
		return err
	})
	g.Go(func() error {
		var err error
		res.MaturedCount, err = store.ZCard(gctx, keys.blocksMatured())
		return err
	})
	g.Go(func() error {
		r := allScores()
		r.Reverse = true
		r.Limit = int64(cfg.APIPayments)
		var err error
		res.Payments, err = store.ZRangeByScore(gctx, keys.paymentsAll(), r)
		return err
	})
	g.Go(func() error {
		var err error
		res.PaymentCount, err = store.ZCard(gctx, keys.paymentsAll())
		return err
	})
	g.Go(func() error {
		var err error
		res.PaymentKeys, err = store.Keys(gctx, keys.paymentsPattern())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func windowMembers(entries []ScoredMember) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Member
	}
	return out
}
