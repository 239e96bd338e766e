package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DialFunc opens a connection. net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type Config struct {
	// Targets are host:port pairs. The network counts as available when any
	// one of them accepts a TCP connection.
	Targets []string
	// Interval between background probes. Default 15s.
	Interval time.Duration
	// Timeout bounds one probe round. Default 2s.
	Timeout time.Duration
	Logger  *slog.Logger
	Dial    DialFunc
}

// Monitor probes Targets in the background and caches the answer, so
// IsNetworkAvailable is a single atomic load.
type Monitor struct {
	cfg       Config
	available atomic.Bool
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

func NewMonitor(cfg Config) (*Monitor, error) {
	if len(cfg.Targets) == 0 {
		return nil, errors.New("connectivity: at least one target required")
	}
	for _, t := range cfg.Targets {
		if _, _, err := net.SplitHostPort(t); err != nil {
			return nil, errors.New("connectivity: target " + t + " is not host:port")
		}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = d.DialContext
	}

	m := &Monitor{
		cfg:  cfg,
		done: make(chan struct{}),
	}
	// Optimistic until the first probe says otherwise.
	m.available.Store(true)
	return m, nil
}

// Start runs one probe synchronously and then keeps probing every Interval
// until Close or ctx is done. Calling Start again is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.Probe(ctx)

		m.wg.Add(1)
		go m.run(ctx)
	})
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Probe(ctx)
		case <-ctx.Done():
			return
		case <-m.done:
			return
		}
	}
}

// Probe dials every target concurrently, stores the result and returns it.
func (m *Monitor) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	var up atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range m.cfg.Targets {
		g.Go(func() error {
			conn, err := m.cfg.Dial(gctx, "tcp", target)
			if err != nil {
				return nil
			}
			_ = conn.Close()
			up.Store(true)
			// One reachable target is enough.
			cancel()
			return nil
		})
	}
	_ = g.Wait()

	now := up.Load()
	if prev := m.available.Swap(now); prev != now {
		m.cfg.Logger.Info("connectivity: network availability changed", slog.Bool("available", now))
	}
	return now
}

// IsNetworkAvailable returns the result of the latest probe. It never blocks.
func (m *Monitor) IsNetworkAvailable() bool {
	return m.available.Load()
}

// Close stops background probing and waits for the probe loop to exit.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
	return nil
}

// Static is a fixed answer, for tests and for hosts that manage reachability
// elsewhere.
type Static bool

func (s Static) IsNetworkAvailable() bool {
	return bool(s)
}
