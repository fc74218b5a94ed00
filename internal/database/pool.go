package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rickgao/rota-relay/internal/config"
	"github.com/rickgao/rota-relay/internal/model"
)

// RouteHistoryQuery selects the route list in display order.
const RouteHistoryQuery = `SELECT titulo, detalhes FROM rota_historico ORDER BY ordem`

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// LoadRouteHistory reads the route list. An empty table yields an empty,
// non-nil slice.
func LoadRouteHistory(ctx context.Context, q Querier) ([]model.RouteHistoryEntry, error) {
	rows, err := q.Query(ctx, RouteHistoryQuery)
	if err != nil {
		return nil, fmt.Errorf("query route history: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanRouteHistoryEntry)
	if err != nil {
		return nil, fmt.Errorf("scan route history: %w", err)
	}
	if entries == nil {
		entries = []model.RouteHistoryEntry{}
	}
	return entries, nil
}

func scanRouteHistoryEntry(row pgx.CollectableRow) (model.RouteHistoryEntry, error) {
	var e model.RouteHistoryEntry
	err := row.Scan(&e.Title, &e.Details)
	return e, err
}
