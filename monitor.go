package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	monitorStatusOK   = "ok"
	monitorStatusFail = "fail"
)

// healthCaller runs the remote health call registered for a module name.
type healthCaller interface {
	CallModule(ctx context.Context, module string) (json.RawMessage, error)
}

type monitorTask struct {
	name       string
	interval   time.Duration
	timer      stopper
	gen        uint64
	running    bool
	lastStatus string
}

// Monitor polls each configured module on its own timer and writes the
// outcome to <coin>:status:<module>. Modules never share a timer, and a tick
// re-arms only after its call returns.
type Monitor struct {
	store          Store
	keys           poolKeys
	caller         healthCaller
	clock          clock
	alerts         alertNotifier
	recordFailures bool
	callTimeout    time.Duration

	mu    sync.Mutex
	ctx   context.Context
	tasks map[string]*monitorTask
}

func newMonitor(cfg Config, store Store, caller healthCaller, clk clock, alerts alertNotifier) *Monitor {
	if clk == nil {
		clk = realClock{}
	}
	if alerts == nil {
		alerts = logAlerts{}
	}
	m := &Monitor{
		store:          store,
		keys:           poolKeys{coin: cfg.Coin},
		caller:         caller,
		clock:          clk,
		alerts:         alerts,
		recordFailures: cfg.MonitorRecordFailures,
		callTimeout:    rpcCallTimeout,
		ctx:            context.Background(),
		tasks:          make(map[string]*monitorTask, len(cfg.Monitoring)),
	}
	for _, mod := range cfg.Monitoring {
		m.tasks[mod.Name] = &monitorTask{name: mod.Name, interval: mod.CheckInterval}
	}
	return m
}

// StartAll arms every module with a non-zero interval. ctx bounds the health
// calls of all later ticks.
func (m *Monitor) StartAll(ctx context.Context) int {
	m.mu.Lock()
	m.ctx = ctx
	names := make([]string, 0, len(m.tasks))
	for name := range m.tasks {
		names = append(names, name)
	}
	m.mu.Unlock()

	started := 0
	for _, name := range names {
		if m.Start(name) {
			started++
		}
	}
	return started
}

// Start arms module's timer. It reports false for unknown modules, a zero
// interval or a module that is already running.
func (m *Monitor) Start(module string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[module]
	if !ok || t.interval <= 0 || t.running {
		return false
	}
	t.running = true
	m.armLocked(t)
	return true
}

// Stop cancels module's timer. A tick already in flight finishes its write
// but does not re-arm.
func (m *Monitor) Stop(module string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[module]; ok {
		m.stopLocked(t)
	}
}

func (m *Monitor) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		m.stopLocked(t)
	}
}

func (m *Monitor) Restart(module string) bool {
	m.Stop(module)
	return m.Start(module)
}

func (m *Monitor) Running(module string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[module]
	return ok && t.running
}

func (m *Monitor) stopLocked(t *monitorTask) {
	t.running = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (m *Monitor) armLocked(t *monitorTask) {
	t.gen++
	gen := t.gen
	name := t.name
	t.timer = m.clock.AfterFunc(t.interval, func() { m.tick(name, gen) })
}

func (m *Monitor) tick(module string, gen uint64) {
	m.mu.Lock()
	t, ok := m.tasks[module]
	if !ok || !t.running || t.gen != gen {
		m.mu.Unlock()
		return
	}
	t.timer = nil
	ctx := m.ctx
	m.mu.Unlock()

	// Shutting down: the deferred StopAll has not run yet.
	if ctx.Err() != nil {
		return
	}
	if err := m.Check(ctx, module); err != nil {
		logger.Warn("monitor check failed", "module", module, "error", err)
	}

	m.mu.Lock()
	if t.running && t.gen == gen {
		m.armLocked(t)
	}
	m.mu.Unlock()
}

// Check runs one health call for module and persists the result. The call
// error is returned after the failure record (if any) is written. A call cut
// short by ctx itself is neither recorded nor alerted.
func (m *Monitor) Check(ctx context.Context, module string) error {
	callCtx, cancel := context.WithTimeout(ctx, m.callTimeout)
	result, callErr := m.caller.CallModule(callCtx, module)
	cancel()
	if callErr != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	now := strconv.FormatInt(m.clock.Now().Unix(), 10)
	key := m.keys.status(module)

	if callErr != nil {
		monitorChecks.WithLabelValues(module, monitorStatusFail).Inc()
		m.transition(ctx, module, monitorStatusFail, callErr.Error())
		if !m.recordFailures {
			return callErr
		}
		for _, f := range [][2]string{
			{"lastCheck", now},
			{"lastStatus", monitorStatusFail},
			{"lastFail", now},
			{"lastFailResponse", callErr.Error()},
		} {
			if err := m.store.HSet(ctx, key, f[0], f[1]); err != nil {
				return fmt.Errorf("%w (status write: %v)", callErr, err)
			}
		}
		return callErr
	}

	monitorChecks.WithLabelValues(module, monitorStatusOK).Inc()
	m.transition(ctx, module, monitorStatusOK, "")
	for _, f := range [][2]string{
		{"lastCheck", now},
		{"lastStatus", monitorStatusOK},
		{"lastResponse", string(result)},
	} {
		if err := m.store.HSet(ctx, key, f[0], f[1]); err != nil {
			return fmt.Errorf("status write: %w", err)
		}
	}
	return nil
}

// transition alerts on ok->fail and fail->ok. The first result after start
// only alerts when it is a failure.
func (m *Monitor) transition(ctx context.Context, module, status, detail string) {
	m.mu.Lock()
	t, ok := m.tasks[module]
	if !ok {
		m.mu.Unlock()
		return
	}
	prev := t.lastStatus
	t.lastStatus = status
	m.mu.Unlock()

	if prev == status || (prev == "" && status == monitorStatusOK) {
		return
	}
	m.alerts.Notify(ctx, monitorAlert{Module: module, Status: status, Detail: detail, At: m.clock.Now()})
}

// Statuses reads the persisted status hash of every configured module.
func (m *Monitor) Statuses(ctx context.Context, modules []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(modules))
	for _, name := range modules {
		h, err := m.store.HGetAll(ctx, m.keys.status(name))
		if err != nil {
			return nil, err
		}
		out[name] = h
	}
	return out, nil
}
