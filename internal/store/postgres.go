// Package store persists iteration telemetry (heading + point-cloud
// summaries) to Postgres and frame/snapshot blobs to MinIO — the
// concrete, injectable implementation of the filesystem/DB layer spec §6
// treats as "consumed, not defined". Adapted from the teacher's
// storage.PostgresStore, with the face/person/pgvector schema replaced
// by a single flat telemetry-row table.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/blade-inspector/internal/config"
	"github.com/your-org/blade-inspector/internal/models"
)

// PostgresStore persists one row per published iteration telemetry event.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// IterationRow is one persisted mission iteration.
type IterationRow struct {
	ID            uuid.UUID
	CorrelationID string
	Node          string
	Iteration     int
	Phase         string
	TowardsTip    bool
	HeadingRho    float64
	HeadingTheta  float64
	KeypointCount int
	PointCount    int
	ErrorMessage  string
	CreatedAt     time.Time
}

// CreateIteration inserts one iteration telemetry row.
func (s *PostgresStore) CreateIteration(ctx context.Context, node string, iteration int, corrID string, heading models.Heading, towardsTip bool, phase string, keypointCount, pointCount int, errMsg string) (*IterationRow, error) {
	row := &IterationRow{
		ID: uuid.New(), CorrelationID: corrID, Node: node, Iteration: iteration,
		Phase: phase, TowardsTip: towardsTip, HeadingRho: heading.Rho, HeadingTheta: heading.Theta,
		KeypointCount: keypointCount, PointCount: pointCount, ErrorMessage: errMsg,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO iterations (id, correlation_id, node, iteration, phase, towards_tip, heading_rho, heading_theta, keypoint_count, point_count, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING created_at`,
		row.ID, row.CorrelationID, row.Node, row.Iteration, row.Phase, row.TowardsTip,
		row.HeadingRho, row.HeadingTheta, row.KeypointCount, row.PointCount, nullableString(row.ErrorMessage),
	).Scan(&row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create iteration row: %w", err)
	}
	return row, nil
}

// ListIterations returns the most recent iterations for a node, newest first.
func (s *PostgresStore) ListIterations(ctx context.Context, node string, limit int) ([]IterationRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, correlation_id, node, iteration, phase, towards_tip, heading_rho, heading_theta, keypoint_count, point_count, coalesce(error_message, ''), created_at
		 FROM iterations WHERE node = $1 ORDER BY created_at DESC LIMIT $2`, node, limit)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}
	defer rows.Close()

	var out []IterationRow
	for rows.Next() {
		var r IterationRow
		if err := rows.Scan(&r.ID, &r.CorrelationID, &r.Node, &r.Iteration, &r.Phase, &r.TowardsTip,
			&r.HeadingRho, &r.HeadingTheta, &r.KeypointCount, &r.PointCount, &r.ErrorMessage, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan iteration row: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// LatestIteration returns the most recently persisted row for node, or
// nil if none exist yet.
func (s *PostgresStore) LatestIteration(ctx context.Context, node string) (*IterationRow, error) {
	var r IterationRow
	err := s.pool.QueryRow(ctx,
		`SELECT id, correlation_id, node, iteration, phase, towards_tip, heading_rho, heading_theta, keypoint_count, point_count, coalesce(error_message, ''), created_at
		 FROM iterations WHERE node = $1 ORDER BY created_at DESC LIMIT 1`, node,
	).Scan(&r.ID, &r.CorrelationID, &r.Node, &r.Iteration, &r.Phase, &r.TowardsTip,
		&r.HeadingRho, &r.HeadingTheta, &r.KeypointCount, &r.PointCount, &r.ErrorMessage, &r.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest iteration: %w", err)
	}
	return &r, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
