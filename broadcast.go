package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/remeh/sizedwaitgroup"
)

var errSinkBusy = errors.New("subscriber already has a pending payload")

// notFoundPayload is delivered to a targeted subscriber whose address has no
// worker record.
var notFoundPayload = []byte(`{"error":"not found"}`)

// delivery is one payload handed to a subscriber. Deflated bodies carry the
// snapshot's compressed bytes.
type delivery struct {
	Body     []byte
	Deflated bool
}

// responseSink is the transport side of a subscription. Deliver must not
// block; a sink that cannot take the payload returns an error.
type responseSink interface {
	Deliver(d delivery) error
}

// supersededSink is implemented by sinks that want to know when a newer
// subscription for the same address replaced them.
type supersededSink interface {
	Superseded()
}

// LiveConnection is an anonymous subscriber to the pool-wide snapshot.
type LiveConnection struct {
	ID   string
	Sink responseSink
}

// AddressSubscription is a subscriber bound to one miner address. A nil Sink
// is a legal registration that receives nothing.
type AddressSubscription struct {
	ID      string
	Address string
	Sink    responseSink
}

type targetedPayload struct {
	Stats    map[string]string `json:"stats"`
	Payments []string          `json:"payments"`
}

type broadcastResult struct {
	Delivered int
	NotFound  int
	Failed    int
	Skipped   int
}

// BroadcastManager holds the long-poll registries and pushes each cycle's
// results to them.
type BroadcastManager struct {
	store         Store
	keys          poolKeys
	state         *StatsState
	paymentsLimit int64
	concurrency   int

	mu       sync.Mutex
	live     map[string]*LiveConnection
	targeted map[string]*AddressSubscription
}

func newBroadcastManager(cfg Config, store Store, state *StatsState) *BroadcastManager {
	concurrency := cfg.TargetedConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BroadcastManager{
		store:         store,
		keys:          poolKeys{coin: cfg.Coin},
		state:         state,
		paymentsLimit: int64(cfg.APIPayments),
		concurrency:   concurrency,
		live:          make(map[string]*LiveConnection),
		targeted:      make(map[string]*AddressSubscription),
	}
}

// AddLive registers an anonymous subscriber under a fresh identifier.
func (b *BroadcastManager) AddLive(sink responseSink) *LiveConnection {
	conn := &LiveConnection{ID: uuid.NewString(), Sink: sink}
	b.mu.Lock()
	b.live[conn.ID] = conn
	n := len(b.live)
	b.mu.Unlock()
	liveSubscribers.WithLabelValues("live").Set(float64(n))
	return conn
}

// RemoveLive unregisters id. It is called from the transport's finish path.
func (b *BroadcastManager) RemoveLive(id string) {
	b.mu.Lock()
	delete(b.live, id)
	n := len(b.live)
	b.mu.Unlock()
	liveSubscribers.WithLabelValues("live").Set(float64(n))
}

// AddAddress registers sink for address, replacing any earlier subscription
// for the same address. The replaced sink is told when it supports it.
func (b *BroadcastManager) AddAddress(address string, sink responseSink) *AddressSubscription {
	sub := &AddressSubscription{ID: uuid.NewString(), Address: address, Sink: sink}
	b.mu.Lock()
	prev := b.targeted[address]
	b.targeted[address] = sub
	n := len(b.targeted)
	b.mu.Unlock()
	liveSubscribers.WithLabelValues("address").Set(float64(n))
	if prev != nil && prev.Sink != nil {
		if s, ok := prev.Sink.(supersededSink); ok {
			s.Superseded()
		}
	}
	return sub
}

// RemoveAddress unregisters sub unless a newer subscription already took its
// address.
func (b *BroadcastManager) RemoveAddress(sub *AddressSubscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	if cur, ok := b.targeted[sub.Address]; ok && cur.ID == sub.ID {
		delete(b.targeted, sub.Address)
	}
	n := len(b.targeted)
	b.mu.Unlock()
	liveSubscribers.WithLabelValues("address").Set(float64(n))
}

// Counts returns the number of registered anonymous and targeted subscribers.
func (b *BroadcastManager) Counts() (live, targeted int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live), len(b.targeted)
}

func (b *BroadcastManager) liveConnections() []*LiveConnection {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*LiveConnection, 0, len(b.live))
	for _, c := range b.live {
		out = append(out, c)
	}
	return out
}

func (b *BroadcastManager) addressSubscriptions() []*AddressSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*AddressSubscription, 0, len(b.targeted))
	for _, s := range b.targeted {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Broadcast runs the anonymous publish and then the targeted refresh.
func (b *BroadcastManager) Broadcast(ctx context.Context, snap *Snapshot) (live, targeted broadcastResult) {
	live = b.Publish(snap)
	targeted = b.RefreshTargeted(ctx)
	return live, targeted
}

// Publish hands the compressed snapshot to every anonymous subscriber. A
// failing sink is logged and skipped. Connections are not removed here; that
// happens when their transport finishes.
func (b *BroadcastManager) Publish(snap *Snapshot) broadcastResult {
	var res broadcastResult
	if snap == nil {
		return res
	}
	d := delivery{Body: snap.Compressed, Deflated: true}
	for _, conn := range b.liveConnections() {
		if conn.Sink == nil {
			res.Skipped++
			continue
		}
		if err := deliverSafely(conn.Sink, d); err != nil {
			res.Failed++
			broadcastDeliveries.WithLabelValues("live", "failed").Inc()
			logger.Debug("live delivery failed", "id", conn.ID, "error", err)
			continue
		}
		res.Delivered++
		broadcastDeliveries.WithLabelValues("live", "ok").Inc()
	}
	return res
}

// RefreshTargeted re-reads the worker record and recent payments of every
// subscribed address and delivers them. Subscriptions without a sink are
// skipped before any query.
func (b *BroadcastManager) RefreshTargeted(ctx context.Context) broadcastResult {
	subs := b.addressSubscriptions()
	var delivered, notFound, failed, skipped atomic.Int64
	swg := sizedwaitgroup.New(b.concurrency)
	for _, sub := range subs {
		if sub.Sink == nil {
			skipped.Add(1)
			continue
		}
		swg.Add()
		go func(sub *AddressSubscription) {
			defer swg.Done()
			body, found, err := b.targetedBody(ctx, sub.Address)
			if err != nil {
				failed.Add(1)
				broadcastDeliveries.WithLabelValues("address", "failed").Inc()
				logger.Warn("targeted refresh query failed", "address", sub.Address, "error", err)
				return
			}
			if err := deliverSafely(sub.Sink, delivery{Body: body}); err != nil {
				failed.Add(1)
				broadcastDeliveries.WithLabelValues("address", "failed").Inc()
				logger.Debug("targeted delivery failed", "address", sub.Address, "error", err)
				return
			}
			if !found {
				notFound.Add(1)
				broadcastDeliveries.WithLabelValues("address", "not_found").Inc()
				return
			}
			delivered.Add(1)
			broadcastDeliveries.WithLabelValues("address", "ok").Inc()
		}(sub)
	}
	swg.Wait()
	return broadcastResult{
		Delivered: int(delivered.Load()),
		NotFound:  int(notFound.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
}

func (b *BroadcastManager) targetedBody(ctx context.Context, address string) ([]byte, bool, error) {
	stats, payments, err := loadAddressData(ctx, b.store, b.keys, address, b.paymentsLimit)
	if err != nil {
		return nil, false, err
	}
	if len(stats) == 0 {
		return notFoundPayload, false, nil
	}
	stats["hashrate"] = b.state.Hashrates().Display(address)
	body, err := fastJSONMarshal(targetedPayload{Stats: stats, Payments: payments})
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// loadAddressData reads the worker hash and the newest payments of address
// straight from the store.
func loadAddressData(ctx context.Context, store Store, keys poolKeys, address string, limit int64) (map[string]string, []string, error) {
	stats, err := store.HGetAll(ctx, keys.worker(address))
	if err != nil {
		return nil, nil, err
	}
	r := allScores()
	r.Reverse = true
	r.Limit = limit
	payments, err := store.ZRangeByScore(ctx, keys.payments(address), r)
	if err != nil {
		return nil, nil, err
	}
	return stats, flattenScored(payments), nil
}

// deliverSafely isolates a panicking sink from the rest of the broadcast.
func deliverSafely(sink responseSink, d delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return sink.Deliver(d)
}
