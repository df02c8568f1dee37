package shellpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// directoryPool holds the idle shells spawned for one working directory.
type directoryPool struct {
	dir  string
	mu   sync.Mutex
	idle []*PooledShell
}

// Manager owns one directoryPool per working directory and enforces a
// global cap on the total number of live shell workers via a semaphore.
type Manager struct {
	cfg Config
	sem *semaphore.Weighted

	mu    sync.Mutex
	pools map[string]*directoryPool
	total int

	cancel context.CancelFunc
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:   cfg,
		sem:   semaphore.NewWeighted(int64(cfg.MaxTotalShells)),
		pools: make(map[string]*directoryPool),
	}
}

// StartBackgroundTasks launches the idle-eviction and health-check loops.
// It is safe to call at most once per Manager.
func (m *Manager) StartBackgroundTasks(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	go func() {
		ticker := time.NewTicker(m.cfg.PoolCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.cleanupIdlePools()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(m.cfg.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.healthCheckAll(ctx)
			}
		}
	}()
}

func (m *Manager) poolFor(dir string) *directoryPool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[dir]
	if !ok {
		p = &directoryPool{dir: dir}
		m.pools[dir] = p
	}
	return p
}

// GetShell returns a ready-to-use shell for dir, reusing an idle one when
// possible. When pooling is disabled it returns (nil, nil): the caller's
// fallthrough path is to run the command one-shot instead.
func (m *Manager) GetShell(ctx context.Context, dir string) (*PooledShell, error) {
	if !m.cfg.Enabled {
		return nil, nil
	}

	pool := m.poolFor(dir)

	for {
		pool.mu.Lock()
		if len(pool.idle) == 0 {
			pool.mu.Unlock()
			break
		}
		shell := pool.idle[len(pool.idle)-1]
		pool.idle = pool.idle[:len(pool.idle)-1]
		pool.mu.Unlock()

		if shell.HealthCheck(ctx) {
			return shell, nil
		}
		shellLog.Warn("idle_shell_unhealthy_discarded", slog.String("dir", dir))
		shell.Close()
		m.releaseOne()
	}

	if !m.sem.TryAcquire(1) {
		return nil, &PoolFullError{MaxTotalShells: m.cfg.MaxTotalShells}
	}

	shell, err := spawnShell(ctx, dir, m.cfg)
	if err != nil {
		m.sem.Release(1)
		return nil, err
	}

	m.mu.Lock()
	m.total++
	m.mu.Unlock()

	return shell, nil
}

// ReturnShell pushes shell back onto its directory's idle queue, subject to
// the per-directory cap; shells beyond the cap are closed and their permit
// released.
func (m *Manager) ReturnShell(shell *PooledShell) {
	if shell == nil {
		return
	}
	if !shell.IsHealthy() {
		shell.Close()
		m.releaseOne()
		return
	}

	pool := m.poolFor(shell.dir)
	pool.mu.Lock()
	if len(pool.idle) >= m.cfg.ShellsPerDirectory {
		pool.mu.Unlock()
		shell.Close()
		m.releaseOne()
		return
	}
	pool.idle = append(pool.idle, shell)
	pool.mu.Unlock()
}

func (m *Manager) releaseOne() {
	m.mu.Lock()
	m.total--
	m.mu.Unlock()
	m.sem.Release(1)
}

// cleanupIdlePools discards idle shells that have exceeded ShellIdleTimeout.
func (m *Manager) cleanupIdlePools() {
	m.mu.Lock()
	pools := make([]*directoryPool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	now := time.Now()
	for _, pool := range pools {
		pool.mu.Lock()
		var keep []*PooledShell
		var stale []*PooledShell
		for _, shell := range pool.idle {
			if now.Sub(shell.IdleSince()) > m.cfg.ShellIdleTimeout {
				stale = append(stale, shell)
			} else {
				keep = append(keep, shell)
			}
		}
		pool.idle = keep
		pool.mu.Unlock()

		for _, shell := range stale {
			shellLog.Debug("idle_shell_evicted", slog.String("dir", pool.dir))
			shell.Close()
			m.releaseOne()
		}
	}
}

// healthCheckAll pings every idle shell; unhealthy ones are dropped.
func (m *Manager) healthCheckAll(ctx context.Context) {
	m.mu.Lock()
	pools := make([]*directoryPool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	for _, pool := range pools {
		pool.mu.Lock()
		shells := append([]*PooledShell(nil), pool.idle...)
		pool.mu.Unlock()

		var dead []*PooledShell
		for _, shell := range shells {
			if !shell.HealthCheck(ctx) {
				dead = append(dead, shell)
			}
		}
		if len(dead) == 0 {
			continue
		}

		pool.mu.Lock()
		kept := pool.idle[:0:0]
		for _, shell := range pool.idle {
			keep := true
			for _, d := range dead {
				if d == shell {
					keep = false
					break
				}
			}
			if keep {
				kept = append(kept, shell)
			}
		}
		pool.idle = kept
		pool.mu.Unlock()

		for _, shell := range dead {
			shell.Close()
			m.releaseOne()
		}
	}
}

// Stats returns a point-in-time snapshot of pool occupancy.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		TotalShells: m.total,
		MaxShells:   m.cfg.MaxTotalShells,
		Directories: len(m.pools),
	}
}

// ShutdownAll kills every pooled shell, idle or not yet returned, and makes
// the manager permanently empty. Shells still checked out by a caller are
// killed the moment they're returned (Close is idempotent).
func (m *Manager) ShutdownAll() {
	if m.cancel != nil {
		m.cancel()
	}

	m.mu.Lock()
	pools := make([]*directoryPool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.pools = make(map[string]*directoryPool)
	m.mu.Unlock()

	for _, pool := range pools {
		pool.mu.Lock()
		shells := pool.idle
		pool.idle = nil
		pool.mu.Unlock()

		for _, shell := range shells {
			shell.Close()
			m.releaseOne()
		}
	}
	shellLog.Info("shutdown_all")
}
