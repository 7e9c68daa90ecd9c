/*
Copyright 2022

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/penny-vault/import-mse/mse"
	"github.com/rs/zerolog/log"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS publishers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS stock_data (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	code TEXT NOT NULL,
	date TEXT NOT NULL,
	price TEXT,
	max TEXT,
	min TEXT,
	avg TEXT,
	percent_change TEXT,
	quantity TEXT,
	best_turnover TEXT,
	total_turnover TEXT,
	UNIQUE (code, date)
);`

// SQLite stores everything in a single database file. WAL mode keeps the
// tables readable while a harvest is writing.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	log.Debug().Str("Path", path).Msg("opened sqlite store")
	return &SQLite{db: db}, nil
}

func (s *SQLite) KnownCodes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM publishers ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := []string{}
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *SQLite) MergeCodes(ctx context.Context, codes []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	added := 0
	for _, code := range codes {
		res, err := tx.ExecContext(ctx, `INSERT INTO publishers (code) VALUES (?) ON CONFLICT (code) DO NOTHING`, code)
		if err != nil {
			return 0, fmt.Errorf("insert code %s: %w", code, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// LastDate returns the newest stored day of code. Rows whose date is not
// a date are ignored.
func (s *SQLite) LastDate(ctx context.Context, code string) (time.Time, bool, error) {
	var last *string
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM stock_data
		WHERE code = ? AND date GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]'`, code).Scan(&last)
	if err != nil {
		return time.Time{}, false, err
	}
	if last == nil {
		return time.Time{}, false, nil
	}

	day, err := time.Parse(mse.StorageDateFormat, *last)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stored date %q: %w", *last, err)
	}
	return day, true, nil
}

// Upsert writes records in one transaction; a row for an existing
// (code, date) replaces it.
func (s *SQLite) Upsert(ctx context.Context, code string, records []*mse.DailyRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO stock_data (code, `+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (code, date) DO UPDATE SET
			price = excluded.price,
			max = excluded.max,
			min = excluded.min,
			avg = excluded.avg,
			percent_change = excluded.percent_change,
			quantity = excluded.quantity,
			best_turnover = excluded.best_turnover,
			total_turnover = excluded.total_turnover`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range records {
		r.Code = code
		if _, err := stmt.ExecContext(ctx, recordArgs(code, r)...); err != nil {
			return 0, fmt.Errorf("upsert %s %s: %w", code, r.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

func (s *SQLite) Records(ctx context.Context, code string) ([]*mse.DailyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM stock_data WHERE code = ? ORDER BY date ASC`, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*mse.DailyRecord{}
	for rows.Next() {
		rec, err := scanRecord(code, rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
