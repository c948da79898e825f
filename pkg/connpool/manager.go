package connpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolKey identifies one pooled target database. The four-part tuple is
// the pool index; there is no fallback or prefix matching between keys
// that differ only in DatabaseName.
type PoolKey struct {
	ProjectID    string
	Region       string
	InstanceName string
	DatabaseName string
}

// String renders the key as project:region:instance/database.
func (k PoolKey) String() string {
	return fmt.Sprintf("%s:%s:%s/%s", k.ProjectID, k.Region, k.InstanceName, k.DatabaseName)
}

// InstanceConnectionName renders the Cloud SQL instance connection name.
func (k PoolKey) InstanceConnectionName() string {
	return fmt.Sprintf("%s:%s:%s", k.ProjectID, k.Region, k.InstanceName)
}

// Validate rejects keys with missing parts. DatabaseName is mandatory:
// a key without it would alias pools across databases.
func (k PoolKey) Validate() error {
	if k.ProjectID == "" || k.Region == "" || k.InstanceName == "" || k.DatabaseName == "" {
		return fmt.Errorf("pool key requires project_id, region, instance_name, and database_name: %s", k)
	}
	return nil
}

// ConnStringFunc builds the pgx connection string for a key.
type ConnStringFunc func(key PoolKey, user, password string) string

// CloudSQLSocketConnString targets the Cloud SQL auth proxy unix socket
// mounted under socketDir (conventionally /cloudsql).
func CloudSQLSocketConnString(socketDir string) ConnStringFunc {
	return func(key PoolKey, user, password string) string {
		return fmt.Sprintf("host=%s/%s user=%s password=%s dbname=%s",
			socketDir, key.InstanceConnectionName(), user, password, key.DatabaseName)
	}
}

// TCPConnString targets a fixed host and port, ignoring the instance
// parts of the key. Useful for local development and tests.
func TCPConnString(host string, port uint16) ConnStringFunc {
	return func(key PoolKey, user, password string) string {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
			host, port, user, password, key.DatabaseName)
	}
}

// Config controls pool sizing and failure behavior.
type Config struct {
	// MaxConns bounds the steady-state pool size per key.
	MaxConns int32
	// MaxOverflow is the additional headroom above MaxConns.
	MaxOverflow int32
	// MinConns keeps warm connections per key.
	MinConns int32
	// AcquireTimeout bounds how long an acquisition may block before it
	// fails with ErrPoolExhausted.
	AcquireTimeout time.Duration
	// ConnectRetries is how many broken connections are replaced
	// transparently before a ConnectionError surfaces.
	ConnectRetries int
	// HealthCheckPeriod is forwarded to pgxpool.
	HealthCheckPeriod time.Duration
	// MaxConnLifetime is forwarded to pgxpool.
	MaxConnLifetime time.Duration
}

// DefaultConfig mirrors the sizing used in production: 10 pooled
// connections with 20 overflow and a 30s acquire timeout.
func DefaultConfig() Config {
	return Config{
		MaxConns:          10,
		MaxOverflow:       20,
		MinConns:          0,
		AcquireTimeout:    30 * time.Second,
		ConnectRetries:    2,
		HealthCheckPeriod: time.Minute,
		MaxConnLifetime:   30 * time.Minute,
	}
}

// Manager owns one pgxpool per key, created lazily on first use.
//
// The mutex guards only the key-to-pool map; per-pool bookkeeping lives
// inside each pgxpool, so acquisition against one database never
// contends with unrelated databases.
type Manager struct {
	cfg        Config
	creds      CredentialSource
	connString ConnStringFunc

	mu    sync.RWMutex
	pools map[PoolKey]*pgxpool.Pool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithConnStringFunc overrides how connection strings are built.
// Tests use this to point keys at a local database.
func WithConnStringFunc(fn ConnStringFunc) ManagerOption {
	return func(m *Manager) {
		m.connString = fn
	}
}

// NewManager creates a pool manager. Pools are opened lazily per key.
func NewManager(cfg Config, creds CredentialSource, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:        cfg,
		creds:      creds,
		connString: CloudSQLSocketConnString("/cloudsql"),
		pools:      make(map[PoolKey]*pgxpool.Pool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) pool(ctx context.Context, key PoolKey) (*pgxpool.Pool, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	pool, ok := m.pools[key]
	m.mu.RUnlock()
	if ok {
		return pool, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if pool, ok := m.pools[key]; ok {
		return pool, nil
	}

	user, password, err := m.creds.AdminCredentials(ctx, key)
	if err != nil {
		return nil, &ConnectionError{Key: key, Err: fmt.Errorf("failed to resolve credentials: %w", err)}
	}

	poolConfig, err := pgxpool.ParseConfig(m.connString(key, user, password))
	if err != nil {
		return nil, &ConnectionError{Key: key, Err: fmt.Errorf("failed to parse connection config: %w", err)}
	}
	poolConfig.MaxConns = m.cfg.MaxConns + m.cfg.MaxOverflow
	poolConfig.MinConns = m.cfg.MinConns
	poolConfig.HealthCheckPeriod = m.cfg.HealthCheckPeriod
	poolConfig.MaxConnLifetime = m.cfg.MaxConnLifetime

	pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, &ConnectionError{Key: key, Err: fmt.Errorf("failed to create pool: %w", err)}
	}

	slog.Info("created connection pool", "key", key.String(), "max_conns", poolConfig.MaxConns)
	m.pools[key] = pool
	return pool, nil
}

// Acquire returns a pooled connection for the key. The connection is
// liveness-probed before being handed out; broken connections are
// discarded and replaced transparently until the retry budget runs out.
// Callers must Release the connection; prefer WithConn.
func (m *Manager) Acquire(ctx context.Context, key PoolKey) (*pgxpool.Conn, error) {
	pool, err := m.pool(ctx, key)
	if err != nil {
		return nil, err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.cfg.AcquireTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= m.cfg.ConnectRetries; attempt++ {
		conn, err := pool.Acquire(acquireCtx)
		if err != nil {
			if acquireCtx.Err() != nil {
				return nil, fmt.Errorf("%w: %s", ErrPoolExhausted, key)
			}
			lastErr = err
			continue
		}

		if err := conn.Ping(acquireCtx); err != nil {
			slog.Warn("discarding broken connection", "key", key.String(), "err", err)
			// Closing the underlying conn makes the pool destroy it on
			// release instead of recycling it.
			conn.Conn().Close(context.Background())
			conn.Release()
			lastErr = err
			continue
		}
		return conn, nil
	}
	return nil, &ConnectionError{Key: key, Err: lastErr}
}

// WithConn runs fn with a scoped connection. Release is guaranteed on
// every exit path, including panics and cancellation.
func (m *Manager) WithConn(ctx context.Context, key PoolKey, fn func(conn *pgxpool.Conn) error) error {
	conn, err := m.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

// WithTx runs fn inside a transaction on a scoped connection. The
// transaction is rolled back if fn returns an error, and the connection
// is evicted on commit/rollback transport failures.
func (m *Manager) WithTx(ctx context.Context, key PoolKey, fn func(tx pgx.Tx) error) error {
	return m.WithConn(ctx, key, func(conn *pgxpool.Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return &ConnectionError{Key: key, Err: fmt.Errorf("failed to begin transaction: %w", err)}
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				slog.Warn("rollback failed, evicting connection", "key", key.String(), "err", rbErr)
				conn.Conn().Close(context.Background())
			}
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return &ConnectionError{Key: key, Err: fmt.Errorf("failed to commit transaction: %w", err)}
		}
		return nil
	})
}

// Evict closes and removes the pool for a key. The next acquisition
// recreates it.
func (m *Manager) Evict(key PoolKey) {
	m.mu.Lock()
	pool, ok := m.pools[key]
	if ok {
		delete(m.pools, key)
	}
	m.mu.Unlock()

	if ok {
		slog.Info("evicting connection pool", "key", key.String())
		pool.Close()
	}
}

// Close tears down every pool.
func (m *Manager) Close() {
	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[PoolKey]*pgxpool.Pool)
	m.mu.Unlock()

	for key, pool := range pools {
		slog.Debug("closing connection pool", "key", key.String())
		pool.Close()
	}
}

// PoolStats is a point-in-time snapshot of one pool.
type PoolStats struct {
	MaxConns          int32
	TotalConns        int32
	IdleConns         int32
	AcquiredConns     int32
	AcquireCount      int64
	EmptyAcquireCount int64
}

// Stats returns per-key pool statistics.
func (m *Manager) Stats() map[string]PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]PoolStats, len(m.pools))
	for key, pool := range m.pools {
		s := pool.Stat()
		stats[key.String()] = PoolStats{
			MaxConns:          s.MaxConns(),
			TotalConns:        s.TotalConns(),
			IdleConns:         s.IdleConns(),
			AcquiredConns:     s.AcquiredConns(),
			AcquireCount:      s.AcquireCount(),
			EmptyAcquireCount: s.EmptyAcquireCount(),
		}
	}
	return stats
}

// Keys returns the keys of all open pools.
func (m *Manager) Keys() []PoolKey {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]PoolKey, 0, len(m.pools))
	for key := range m.pools {
		keys = append(keys, key)
	}
	return keys
}
