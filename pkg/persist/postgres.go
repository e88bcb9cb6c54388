package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresConfig selects the database and the design row.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	Design   string `yaml:"design"`
	MaxConns int32  `yaml:"max_conns"`
}

const defaultTable = "otc_designs"

// querier is the subset of *pgxpool.Pool the backend uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres keeps each design as one row with a JSONB blob.
type Postgres struct {
	db     querier
	pool   *pgxpool.Pool
	table  string
	design string
	logger *zap.Logger
}

var _ Backend = (*Postgres)(nil)

// NewPostgres connects a pool and makes sure the design table exists.
func NewPostgres(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("persist: parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = 4
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("persist: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persist: ping postgres: %w", err)
	}
	p := newPostgres(pool, cfg, logger)
	p.pool = pool
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func newPostgres(db querier, cfg PostgresConfig, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	return &Postgres{db: db, table: table, design: cfg.Design, logger: logger.Named("persist")}
}

// EnsureSchema creates the design table if it is missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			design     TEXT PRIMARY KEY,
			blob       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, pgx.Identifier{p.table}.Sanitize()))
	if err != nil {
		return fmt.Errorf("persist: create table %s: %w", p.table, err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, blob []byte) error {
	tag, err := p.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (design, blob, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (design) DO UPDATE SET blob = EXCLUDED.blob, updated_at = now()`,
		pgx.Identifier{p.table}.Sanitize()), p.design, string(blob))
	if err != nil {
		return fmt.Errorf("persist: save design %s: %w", p.design, err)
	}
	p.logger.Debug("design saved", zap.String("design", p.design), zap.Int64("rows", tag.RowsAffected()))
	return nil
}

func (p *Postgres) Load(ctx context.Context) ([]byte, error) {
	var blob string
	err := p.db.QueryRow(ctx, fmt.Sprintf(`SELECT blob::text FROM %s WHERE design = $1`,
		pgx.Identifier{p.table}.Sanitize()), p.design).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p.design)
	}
	if err != nil {
		return nil, fmt.Errorf("persist: load design %s: %w", p.design, err)
	}
	return []byte(blob), nil
}

func (p *Postgres) Name() string { return "postgres" }

// Close releases the pool opened by NewPostgres.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
