// SPDX-License-Identifier: MIT

// Package archive stores periodic snapshots of the published spectrum in a
// SQL database.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/philcrump/limesdr-fft/internal/config"
	applog "github.com/philcrump/limesdr-fft/internal/log"

	// Blind import support for the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateTableTmpl = `CREATE TABLE IF NOT EXISTS spectra (
		"ID"            INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"Identifier"    TEXT NOT NULL,
		"Sequence"      INTEGER NOT NULL,
		"FFTSize"       INTEGER NOT NULL,
		"AverageDepth"  INTEGER NOT NULL,
		"CapturedAt"    INTEGER NOT NULL,
		"Frame"         BLOB NOT NULL
	);`
	mysqlCreateTableTmpl = "CREATE TABLE IF NOT EXISTS spectra (" +
		"`ID` BIGINT NOT NULL PRIMARY KEY AUTO_INCREMENT," +
		"`Identifier` VARCHAR(64) NOT NULL," +
		"`Sequence` BIGINT UNSIGNED NOT NULL," +
		"`FFTSize` INT NOT NULL," +
		"`AverageDepth` INT NOT NULL," +
		"`CapturedAt` BIGINT NOT NULL," +
		"`Frame` MEDIUMBLOB NOT NULL" +
		");"
	insertSnapshotTmpl = `INSERT INTO spectra (
		Identifier,
		Sequence,
		FFTSize,
		AverageDepth,
		CapturedAt,
		Frame
	) VALUES (?, ?, ?, ?, ?, ?);`

	snapshotCountInfo = 60
)

// ErrDriver is returned for an unknown archive driver.
var ErrDriver = errors.New("archive: unsupported driver")

// Source is the publisher the archive reads from.
type Source interface {
	Capacity() int
	TryReadInto(dst []byte, last uint64) (n int, seq uint64, ok bool)
}

// Snapshot is one stored frame.
type Snapshot struct {
	Identifier   string    `json:"identifier"`
	Sequence     uint64    `json:"sequence"`
	FFTSize      int       `json:"fft_size"`
	AverageDepth int       `json:"average_depth"`
	CapturedAt   time.Time `json:"captured_at"`
	Frame        []byte    `json:"frame"` // base64 in JSON
}

// Open connects to the database named by cfg.
func Open(cfg config.ArchiveConfig) (*sql.DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.ArchiveSQLite:
		db, err := sql.Open("sqlite3", cfg.SQLiteFile)
		if err != nil {
			return nil, fmt.Errorf("unable to open sqlite DB %q: %w", cfg.SQLiteFile, err)
		}
		// A single writer avoids SQLITE_BUSY between pooled connections.
		db.SetMaxOpenConns(1)
		return db, nil
	case config.ArchiveMySQL:
		var pass string
		if cfg.MySQLPasswordFile != "" {
			b, err := os.ReadFile(cfg.MySQLPasswordFile)
			if err != nil {
				return nil, fmt.Errorf("unable to read MySQL password file %q: %w", cfg.MySQLPasswordFile, err)
			}
			pass = strings.TrimSpace(string(b))
		}
		mc := mysql.Config{
			User:                 cfg.MySQLUser,
			Passwd:               pass,
			Net:                  "tcp",
			Addr:                 cfg.MySQLServer,
			DBName:               cfg.MySQLDBName,
			AllowNativePasswords: true,
		}
		db, err := sql.Open("mysql", mc.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("unable to open MySQL DB %q: %w", cfg.MySQLServer, err)
		}
		db.SetConnMaxLifetime(3 * time.Minute)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		return db, nil
	default:
		return nil, fmt.Errorf("%w %q, pick one of: sqlite, mysql", ErrDriver, cfg.Driver)
	}
}

// Archiver snapshots the latest frame at a fixed interval.
type Archiver struct {
	db         *sql.DB
	src        Source
	depth      func() int
	identifier string
	fftSize    int
	interval   time.Duration

	buf  []byte
	last uint64

	stored int
	errors int
}

// Options configures an Archiver.
type Options struct {
	Driver     string        // selects the table dialect
	Identifier string        // stored with every row; random when empty
	FFTSize    int           // stored with every row
	Interval   time.Duration // time between snapshots
	Depth      func() int    // current averaging depth, may be nil
}

// New creates the table if needed and returns an archiver reading src.
func New(ctx context.Context, db *sql.DB, src Source, opts Options) (*Archiver, error) {
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("archive: interval must be positive, got %s", opts.Interval)
	}
	create := sqliteCreateTableTmpl
	if strings.ToLower(opts.Driver) == config.ArchiveMySQL {
		create = mysqlCreateTableTmpl
	}
	if _, err := db.ExecContext(ctx, create); err != nil {
		return nil, fmt.Errorf("unable to create table: %w", err)
	}

	id := opts.Identifier
	if id == "" {
		id = uuid.NewString()
	}
	depth := opts.Depth
	if depth == nil {
		depth = func() int { return 0 }
	}
	applog.Infof("Archive: Initializing (Identifier: %s, Interval: %s)", id, opts.Interval)

	return &Archiver{
		db:         db,
		src:        src,
		depth:      depth,
		identifier: id,
		fftSize:    opts.FFTSize,
		interval:   opts.Interval,
		buf:        make([]byte, src.Capacity()),
	}, nil
}

// Identifier returns the instance id stored with each row.
func (a *Archiver) Identifier() string {
	return a.identifier
}

// Snapshot stores the latest frame if it is newer than the last one stored.
// It reports whether a row was written.
func (a *Archiver) Snapshot(ctx context.Context) (bool, error) {
	n, seq, ok := a.src.TryReadInto(a.buf, a.last)
	if !ok {
		return false, nil
	}
	_, err := a.db.ExecContext(ctx, insertSnapshotTmpl,
		a.identifier, seq, a.fftSize, a.depth(), time.Now().UnixMilli(), a.buf[:n])
	if err != nil {
		a.errors++
		return false, fmt.Errorf("archive: insert sequence %d: %w", seq, err)
	}
	a.last = seq
	a.stored++
	if a.stored%snapshotCountInfo == 0 {
		applog.Infof("Archive: %d snapshots stored (%d errors)", a.stored, a.errors)
	}
	return true, nil
}

// Run snapshots every interval until ctx is done. Insert errors are logged
// and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			applog.Infof("Archive: stopped after %d snapshots", a.stored)
			return nil
		case <-ticker.C:
			if _, err := a.Snapshot(ctx); err != nil && ctx.Err() == nil {
				applog.Warnf("Archive: %v", err)
			}
		}
	}
}

// Recent returns up to limit rows for this instance, newest first.
func (a *Archiver) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT Identifier, Sequence, FFTSize, AverageDepth, CapturedAt, Frame
		FROM spectra WHERE Identifier = ? ORDER BY ID DESC LIMIT ?`, a.identifier, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var ms int64
		if err := rows.Scan(&s.Identifier, &s.Sequence, &s.FFTSize, &s.AverageDepth, &ms, &s.Frame); err != nil {
			return nil, fmt.Errorf("archive: scan: %w", err)
		}
		s.CapturedAt = time.UnixMilli(ms)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database.
func (a *Archiver) Close() error {
	return a.db.Close()
}
