// Package db persists measurement runs to sqlite. The schema is managed by
// embedded golang-migrate migrations, never by hand-run DDL.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/attolab/cryosweep/internal/instrument"
	"github.com/attolab/cryosweep/internal/monitor"
	"github.com/attolab/cryosweep/internal/sweep"
)

type DB struct {
	*sql.DB
}

// Open opens (or creates) the sqlite database at path and applies any
// pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// nullableFinite maps non-finite values to NULL: sqlite round-trips Inf
// inconsistently across tools, and a NULL cell is unambiguous in queries.
func nullableFinite(v float64) sql.NullFloat64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func finiteOrInf(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.Inf(1)
	}
	return v.Float64
}

// SaveRun writes a run and all its samples in one transaction.
func (db *DB) SaveRun(ctx context.Context, run *sweep.RunResult) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	var fieldX, fieldY, tempSet, tempActual sql.NullFloat64
	if run.Outer != nil {
		if run.Outer.Field != nil {
			fieldX = sql.NullFloat64{Float64: run.Outer.Field.X, Valid: true}
			fieldY = sql.NullFloat64{Float64: run.Outer.Field.Y, Valid: true}
		}
		if run.Outer.Temperature != nil {
			tempSet = sql.NullFloat64{Float64: *run.Outer.Temperature, Valid: true}
		}
		if run.Outer.ActualTemperature != nil {
			tempActual = sql.NullFloat64{Float64: *run.Outer.ActualTemperature, Valid: true}
		}
	}

	var completed sql.NullTime
	if !run.CompletedAt.IsZero() {
		completed = sql.NullTime{Time: run.CompletedAt, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, started_at, completed_at,
			start_value, stop_value, num_points, bidirectional,
			field_x, field_y, temperature_setpoint, temperature_actual)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Kind, run.StartedAt, completed,
		run.Spec.Start, run.Spec.Stop, run.Spec.NumPoints, run.Spec.Bidirectional,
		fieldX, fieldY, tempSet, tempActual,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, idx, taken, setpoint,
			voltage, current, resistance, temperature,
			ac_voltage_x, ac_voltage_y, ac_voltage_r, ac_phase_deg,
			diff_conductance, diff_resistance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range run.Samples {
		_, err := stmt.ExecContext(ctx,
			run.ID.String(), s.Index, s.Taken, s.Setpoint,
			nullableFinite(s.Voltage), nullableFinite(s.Current), nullableFinite(s.Resistance),
			nullableFinite(s.Temperature),
			nullableFinite(s.ACVoltageX), nullableFinite(s.ACVoltageY), nullableFinite(s.ACVoltageR),
			nullableFinite(s.ACPhaseDeg), nullableFinite(s.DiffConductance), nullableFinite(s.DiffResistance),
		)
		if err != nil {
			return fmt.Errorf("insert sample %d of run %s: %w", s.Index, run.ID, err)
		}
	}

	return tx.Commit()
}

// SaveRuns persists every run of a nested sweep.
func (db *DB) SaveRuns(ctx context.Context, runs []*sweep.RunResult) error {
	for _, run := range runs {
		if err := db.SaveRun(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

// RunInfo is the run-level metadata listed without loading samples.
type RunInfo struct {
	ID          uuid.UUID
	Kind        string
	StartedAt   time.Time
	CompletedAt time.Time
	SampleCount int
}

// ListRuns returns run metadata, newest first.
func (db *DB) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.kind, r.started_at, r.completed_at, COUNT(s.run_id)
		FROM runs r LEFT JOIN samples s ON s.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var (
			info      RunInfo
			id        string
			completed sql.NullTime
		)
		if err := rows.Scan(&id, &info.Kind, &info.StartedAt, &completed, &info.SampleCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		info.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", id, err)
		}
		if completed.Valid {
			info.CompletedAt = completed.Time
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// GetRun loads one run with all its samples.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*sweep.RunResult, error) {
	run := &sweep.RunResult{ID: id}

	var (
		completed                           sql.NullTime
		fieldX, fieldY, tempSet, tempActual sql.NullFloat64
	)
	err := db.QueryRowContext(ctx, `
		SELECT kind, started_at, completed_at,
			start_value, stop_value, num_points, bidirectional,
			field_x, field_y, temperature_setpoint, temperature_actual
		FROM runs WHERE id = ?`, id.String()).Scan(
		&run.Kind, &run.StartedAt, &completed,
		&run.Spec.Start, &run.Spec.Stop, &run.Spec.NumPoints, &run.Spec.Bidirectional,
		&fieldX, &fieldY, &tempSet, &tempActual,
	)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	if completed.Valid {
		run.CompletedAt = completed.Time
	}
	if fieldX.Valid || tempSet.Valid {
		run.Outer = &sweep.OuterPoint{}
		if fieldX.Valid {
			run.Outer.Field = &instrument.FieldVector{X: fieldX.Float64, Y: fieldY.Float64}
		}
		if tempSet.Valid {
			v := tempSet.Float64
			run.Outer.Temperature = &v
		}
		if tempActual.Valid {
			v := tempActual.Float64
			run.Outer.ActualTemperature = &v
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT idx, taken, setpoint, voltage, current, resistance, temperature,
			ac_voltage_x, ac_voltage_y, ac_voltage_r, ac_phase_deg,
			diff_conductance, diff_resistance
		FROM samples WHERE run_id = ? ORDER BY idx`, id.String())
	if err != nil {
		return nil, fmt.Errorf("load samples for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s                   sweep.Sample
			voltage, current    sql.NullFloat64
			resistance, sampleT sql.NullFloat64
			acX, acY, acR, acP  sql.NullFloat64
			diffG, diffR        sql.NullFloat64
		)
		if err := rows.Scan(&s.Index, &s.Taken, &s.Setpoint, &voltage, &current, &resistance, &sampleT,
			&acX, &acY, &acR, &acP, &diffG, &diffR); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		s.Voltage = voltage.Float64
		s.Current = current.Float64
		s.Resistance = finiteOrInf(resistance)
		s.Temperature = sampleT.Float64
		s.ACVoltageX = acX.Float64
		s.ACVoltageY = acY.Float64
		s.ACVoltageR = acR.Float64
		s.ACPhaseDeg = acP.Float64
		s.DiffConductance = diffG.Float64
		s.DiffResistance = finiteOrInf(diffR)
		run.Samples = append(run.Samples, s)
	}
	return run, rows.Err()
}

// SaveMonitorSamples appends background monitor samples.
func (db *DB) SaveMonitorSamples(ctx context.Context, samples []monitor.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save monitor samples: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO monitor_samples (taken, voltage, current, resistance)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare monitor insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, s.Taken,
			nullableFinite(s.Voltage), nullableFinite(s.Current), nullableFinite(s.Resistance)); err != nil {
			return fmt.Errorf("insert monitor sample: %w", err)
		}
	}
	return tx.Commit()
}
