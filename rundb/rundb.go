// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rundb records the acquisition runs in a SQL database.
package rundb // import "github.com/go-lpc/oscope/rundb"

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

var drvName = "mysql"

const timeout = 5 * time.Second

// Run describes an acquisition run.
type Run struct {
	ID         int64
	Instrument string // address of the instrument
	Output     string // output file
	ChanMask   uint32
	Events     int64 // number of requested events (0: unbounded)
	NumSamples int
	NumFrames  int
	Start      time.Time
	Stop       time.Time // zero if the run is still going on
	Recorded   int64     // number of recorded events
}

// DB is a run registry.
type DB struct {
	db *sql.DB
}

// Open opens a connection to the run registry described by the
// data source name dsn, e.g. "user:password@tcp(localhost:3306)/oscope".
//
// Timestamps are always decoded as time.Time: parseTime is enabled
// whatever the DSN says.
func Open(dsn string) (*DB, error) {
	dsn, err := normDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("rundb: could not open db: %w", err)
	}

	err = ping(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

func normDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("rundb: invalid data source name: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func ping(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("rundb: could not ping db: %w", err)
	}

	return nil
}

// Close closes the connection to the run registry.
func (db *DB) Close() error {
	return db.db.Close()
}

const schema = `CREATE TABLE IF NOT EXISTS runs (
	id         BIGINT AUTO_INCREMENT PRIMARY KEY,
	instrument VARCHAR(255) NOT NULL,
	output     VARCHAR(1024) NOT NULL,
	chmask     INT NOT NULL,
	nevents    BIGINT NOT NULL,
	nsamples   INT NOT NULL,
	nframes    INT NOT NULL,
	start      DATETIME(6) NOT NULL,
	stop       DATETIME(6) NULL,
	recorded   BIGINT NOT NULL DEFAULT 0
)`

// Init creates the runs table, if needed.
func (db *DB) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := db.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("rundb: could not create runs table: %w", err)
	}
	return nil
}

// StartRun records a new run and returns its ID.
func (db *DB) StartRun(ctx context.Context, run Run) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := db.db.ExecContext(
		ctx,
		"INSERT INTO runs (instrument, output, chmask, nevents, nsamples, nframes, start) VALUES (?, ?, ?, ?, ?, ?, ?)",
		run.Instrument, run.Output, run.ChanMask, run.Events,
		run.NumSamples, run.NumFrames, run.Start.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("rundb: could not insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("rundb: could not retrieve run ID: %w", err)
	}

	return id, nil
}

// StopRun records the end of run id.
func (db *DB) StopRun(ctx context.Context, id, recorded int64, stop time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := db.db.ExecContext(
		ctx,
		"UPDATE runs SET stop=?, recorded=? WHERE id=?",
		stop.UTC(), recorded, id,
	)
	if err != nil {
		return fmt.Errorf("rundb: could not update run %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rundb: could not retrieve number of updated runs: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("rundb: could not find run %d", id)
	}

	return nil
}

// Runs returns the last n runs, most recent first.
func (db *DB) Runs(ctx context.Context, n int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		"SELECT id, instrument, output, chmask, nevents, nsamples, nframes, start, stop, recorded FROM runs ORDER BY start DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("rundb: could not query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run  Run
			stop sql.NullTime
		)
		err = rows.Scan(
			&run.ID, &run.Instrument, &run.Output, &run.ChanMask,
			&run.Events, &run.NumSamples, &run.NumFrames,
			&run.Start, &stop, &run.Recorded,
		)
		if err != nil {
			return nil, fmt.Errorf("rundb: could not get run: %w", err)
		}
		if stop.Valid {
			run.Stop = stop.Time
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rundb: could not scan db for runs: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rundb: context error while retrieving runs: %w", err)
	}

	return runs, nil
}
