// Package store persists resolution reports in PostgreSQL so that hang
// investigations can look back at which processes were blocking whom.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/resilience"
)

// Schema creates the tables the Store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS binder_reports (
    id          UUID PRIMARY KEY,
    target_pid  INTEGER NOT NULL,
    outcome     TEXT NOT NULL,
    data        JSONB NOT NULL,
    resolved_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS binder_reports_target_idx ON binder_reports (target_pid, resolved_at DESC);

CREATE TABLE IF NOT EXISTS binder_report_peers (
    report_id UUID NOT NULL REFERENCES binder_reports (id) ON DELETE CASCADE,
    pid       INTEGER NOT NULL,
    PRIMARY KEY (report_id, pid)
);
CREATE INDEX IF NOT EXISTS binder_report_peers_pid_idx ON binder_report_peers (pid);
`

// Store persists resolutions. Each report row holds the full resolution as
// JSONB; every peer pid also gets a row in binder_report_peers so reports can
// be found by any process that took part.
type Store struct {
	db      *postgres.Client
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(db *postgres.Client, m *metrics.Metrics) *Store {
	var cbCfg resilience.CircuitBreakerConfig
	if m != nil {
		cbCfg.OnStateChange = func(_ string, _, to resilience.State) {
			m.StoreBreakerState.Set(float64(to))
		}
	}
	return &Store{
		db:      db,
		breaker: resilience.NewCircuitBreaker("report-store", cbCfg),
		metrics: m,
		logger:  slog.Default().With("component", "report-store"),
	}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying report schema: %w", err)
	}
	return nil
}

// Save writes res and its peers in one transaction.
func (s *Store) Save(ctx context.Context, res *binder.Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling resolution: %w", err)
	}

	err = s.breaker.Execute(func() error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO binder_reports (id, target_pid, outcome, data, resolved_at) VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (id) DO NOTHING`,
				res.ID, res.TargetPID, res.Outcome(), data, res.ResolvedAt,
			); err != nil {
				return fmt.Errorf("inserting report: %w", err)
			}
			for _, pid := range res.Peers() {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO binder_report_peers (report_id, pid) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
					res.ID, pid,
				); err != nil {
					return fmt.Errorf("inserting peer %d: %w", pid, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		s.count("error")
		if apperrors.Is(err, resilience.ErrCircuitOpen) {
			return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
		}
		return fmt.Errorf("saving report %s: %w", res.ID, err)
	}
	s.count("ok")
	s.logger.Debug("report saved", "id", res.ID, "target_pid", res.TargetPID, "pids", len(res.PIDs))
	return nil
}

// Latest returns the newest report whose target was pid, or nil, nil if
// there is none.
func (s *Store) Latest(ctx context.Context, pid int) (*binder.Resolution, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM binder_reports WHERE target_pid = $1 ORDER BY resolved_at DESC LIMIT 1`,
		pid,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest report for %d: %w", pid, err)
	}
	var res binder.Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unmarshaling report: %w", err)
	}
	return &res, nil
}

// List returns up to limit reports, newest first, in which pid was either
// the target or a peer. A pid of 0 lists every report.
func (s *Store) List(ctx context.Context, pid, limit int) ([]binder.Resolution, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if pid == 0 {
		rows, err = s.db.DB.QueryContext(ctx,
			`SELECT data FROM binder_reports ORDER BY resolved_at DESC LIMIT $1`,
			limit,
		)
	} else {
		rows, err = s.db.DB.QueryContext(ctx,
			`SELECT r.data FROM binder_reports r
			 WHERE r.target_pid = $1
			    OR EXISTS (SELECT 1 FROM binder_report_peers p WHERE p.report_id = r.id AND p.pid = $1)
			 ORDER BY r.resolved_at DESC LIMIT $2`,
			pid, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	reports := make([]binder.Resolution, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		var res binder.Resolution
		if err := json.Unmarshal(data, &res); err != nil {
			s.logger.Warn("skipping corrupt report", "error", err)
			continue
		}
		reports = append(reports, res)
	}
	return reports, rows.Err()
}

func (s *Store) count(status string) {
	if s.metrics != nil {
		s.metrics.ReportsSavedTotal.WithLabelValues(status).Inc()
	}
}
