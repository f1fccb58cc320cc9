// Modul: store_core.go
// Beschreibung: Store-Kernfunktionen und Datenbank-Initialisierung.
// Enthaelt ensureDB, Close und die Lese- und Schreiboperationen fuer Runs.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/7blacky7/transformer-vae/envconfig"
	"github.com/7blacky7/transformer-vae/probe"
	"github.com/7blacky7/transformer-vae/vae"
)

type Store struct {
	// DBPath ueberschreibt envconfig.RunsDB (vor allem fuer Tests)
	DBPath string

	// dbMu schuetzt nur die Initialisierung
	dbMu sync.Mutex
	db   *database
}

func (s *Store) ensureDB() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		return nil
	}

	dbPath := s.DBPath
	if dbPath == "" {
		dbPath = envconfig.RunsDB()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	database, err := newDatabase(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	slog.Debug("run store opened", "path", dbPath)
	s.db = database
	return nil
}

func (s *Store) Close() error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// CreateRun legt einen neuen Run mit UUIDv7-ID an; config wird als JSON gespeichert
func (s *Store) CreateRun(ctx context.Context, name string, config any) (*Run, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	b, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	run := &Run{ID: id.String(), Name: name, Config: b, CreatedAt: time.Now().UTC()}
	if _, err := s.db.conn.ExecContext(ctx,
		"INSERT INTO runs (id, name, config, created_at) VALUES (?, ?, ?, ?)",
		run.ID, run.Name, string(run.Config), run.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun speichert das Ergebnis eines Runs
func (s *Store) FinishRun(ctx context.Context, id string, result any) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	res, err := s.db.conn.ExecContext(ctx, "UPDATE runs SET result = ?, finished_at = ? WHERE id = ?", string(b), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = "id, name, config, result, created_at, finished_at"

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var run Run
	var config string
	var result sql.NullString
	var finished sql.NullTime
	if err := row.Scan(&run.ID, &run.Name, &config, &result, &run.CreatedAt, &finished); err != nil {
		return nil, err
	}

	run.Config = json.RawMessage(config)
	if result.Valid {
		run.Result = json.RawMessage(result.String)
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

// Runs gibt alle Runs zurueck, neueste zuerst
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	rows, err := s.db.conn.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Run gibt einen Run zurueck; ErrRunNotFound wenn er nicht existiert
func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	run, err := scanRun(s.db.conn.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// RecordMetrics speichert alle Metriken eines Schritts in einer Transaktion.
// NaN und Inf werden als NULL gespeichert.
func (s *Store) RecordMetrics(ctx context.Context, runID string, step int, metrics *vae.Metrics) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO metrics (run_id, step, name, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert metric: %w", err)
	}
	defer stmt.Close()

	for pair := metrics.Oldest(); pair != nil; pair = pair.Next() {
		value := sql.NullFloat64{Float64: pair.Value, Valid: !math.IsNaN(pair.Value) && !math.IsInf(pair.Value, 0)}
		if _, err := stmt.ExecContext(ctx, runID, step, pair.Key, value); err != nil {
			return fmt.Errorf("insert metric %s: %w", pair.Key, err)
		}
	}

	return tx.Commit()
}

// Metrics gibt alle Metriken eines Runs in Einfuege-Reihenfolge zurueck
func (s *Store) Metrics(ctx context.Context, runID string) ([]Metric, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	rows, err := s.db.conn.QueryContext(ctx, "SELECT step, name, value FROM metrics WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	metrics := []Metric{}
	for rows.Next() {
		var m Metric
		var value sql.NullFloat64
		if err := rows.Scan(&m.Step, &m.Name, &value); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m.Value = math.NaN()
		if value.Valid {
			m.Value = value.Float64
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// RecordProbe speichert eine Proben-Tabelle
func (s *Store) RecordProbe(ctx context.Context, runID string, step int, table *probe.Table) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, row := range table.Rows {
		ratio := sql.NullFloat64{Float64: row.Ratio, Valid: table.Kind == probe.KindInterpolate}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO probes (run_id, step, kind, position, ratio, text) VALUES (?, ?, ?, ?, ?, ?)",
			runID, step, table.Kind, i, ratio, row.Text,
		); err != nil {
			return fmt.Errorf("insert probe row: %w", err)
		}
	}

	return tx.Commit()
}

// Probes gibt alle Proben-Tabellen eines Runs zurueck, nach Schritt sortiert
func (s *Store) Probes(ctx context.Context, runID string) ([]ProbeTable, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}

	rows, err := s.db.conn.QueryContext(ctx, "SELECT step, kind, position, ratio, text FROM probes WHERE run_id = ? ORDER BY step, id", runID)
	if err != nil {
		return nil, fmt.Errorf("query probes: %w", err)
	}
	defer rows.Close()

	tables := []ProbeTable{}
	for rows.Next() {
		var step, position int
		var kind, text string
		var ratio sql.NullFloat64
		if err := rows.Scan(&step, &kind, &position, &ratio, &text); err != nil {
			return nil, fmt.Errorf("scan probe row: %w", err)
		}

		// Position 0 beginnt eine neue Tabelle
		if position == 0 || len(tables) == 0 {
			tables = append(tables, ProbeTable{Step: step, Table: probe.Table{Kind: kind}})
		}
		last := &tables[len(tables)-1]
		last.Rows = append(last.Rows, probe.Row{Ratio: ratio.Float64, Text: text})
	}
	return tables, rows.Err()
}

// DeleteRun loescht einen Run mit allen Metriken und Proben
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}

	res, err := s.db.conn.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}
