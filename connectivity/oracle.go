// Package connectivity provides the online/offline oracles the sync engine
// consults before attempting remote calls. Manual is driven explicitly (the
// platform layer or tests flip it); Probe derives state from a periodic
// network check and feeds a Manual underneath.
package connectivity

import (
	"context"
	"net"
	"sync"
	"time"
)

// Manual is an explicitly driven connectivity oracle. Every subscriber gets
// its own buffered stream of state transitions; only changes are published,
// not repeats.
type Manual struct {
	mu     sync.Mutex
	online bool
	subs   []chan bool
	closed bool
}

// NewManual creates a Manual oracle in the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

// Online reports the current state.
func (m *Manual) Online(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline updates the state and publishes the transition to subscribers.
// Setting the current state again is a no-op.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.online == online {
		return
	}
	m.online = online
	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
			// A subscriber that stopped draining misses transitions rather
			// than blocking publishers.
		}
	}
}

// Changes returns a new subscription stream of state transitions.
func (m *Manual) Changes() <-chan bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan bool, 8)
	if m.closed {
		close(ch)
		return ch
	}
	m.subs = append(m.subs, ch)
	return ch
}

// Close closes every subscription stream. Further SetOnline calls are no-ops.
func (m *Manual) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
}

// ProbeConfig configures a Probe oracle.
type ProbeConfig struct {
	// Address is the host:port the default check dials.
	Address string
	// Interval between checks. Default: 15s.
	Interval time.Duration
	// DialTimeout for the default check. Default: 2s.
	DialTimeout time.Duration
	// Check overrides the default dial check.
	Check func(ctx context.Context) bool
}

// Probe derives connectivity by running a periodic check and publishing
// transitions through an embedded Manual oracle.
type Probe struct {
	*Manual
	check    func(ctx context.Context) bool
	interval time.Duration
	stop     context.CancelFunc
	done     chan struct{}
}

// NewProbe creates a Probe oracle. It starts offline until the first check
// runs; call Start to begin probing.
func NewProbe(cfg ProbeConfig) *Probe {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	check := cfg.Check
	if check == nil {
		addr := cfg.Address
		timeout := cfg.DialTimeout
		check = func(ctx context.Context) bool {
			d := net.Dialer{Timeout: timeout}
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				return false
			}
			conn.Close()
			return true
		}
	}
	return &Probe{
		Manual:   NewManual(false),
		check:    check,
		interval: cfg.Interval,
	}
}

// Start runs the probe loop until Stop is called or ctx is done. The first
// check runs immediately.
func (p *Probe) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.stop = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.SetOnline(p.check(ctx))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.SetOnline(p.check(ctx))
			}
		}
	}()
}

// Stop ends the probe loop and closes subscription streams.
func (p *Probe) Stop() {
	if p.stop != nil {
		p.stop()
		<-p.done
	}
	p.Manual.Close()
}
