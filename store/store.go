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
	"errors"
	"strings"
	"time"

	"github.com/penny-vault/import-mse/mse"
	"github.com/shopspring/decimal"
)

// ErrNoDatabase is returned by Open when no database URL is configured.
var ErrNoDatabase = errors.New("no database configured")

// Store is the durable home of instrument codes and daily records.
type Store interface {
	mse.CodeStore
	mse.RecordStore

	// Records returns the stored rows of code ordered by date ascending.
	Records(ctx context.Context, code string) ([]*mse.DailyRecord, error)
	Close() error
}

// Open picks a backend from url: sqlite:path, file:path or a path ending
// in .db opens SQLite, anything else is handed to Postgres as a DSN.
func Open(ctx context.Context, url string) (Store, error) {
	switch {
	case url == "":
		return nil, ErrNoDatabase
	case strings.HasPrefix(url, "sqlite://"):
		return NewSQLite(strings.TrimPrefix(url, "sqlite://"))
	case strings.HasPrefix(url, "sqlite:"):
		return NewSQLite(strings.TrimPrefix(url, "sqlite:"))
	case strings.HasPrefix(url, "file:"), strings.HasSuffix(url, ".db"):
		return NewSQLite(url)
	default:
		return NewPostgres(ctx, url)
	}
}

// PostgresSchema is the layout the Postgres backend expects to find.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS publishers (
	id SERIAL PRIMARY KEY,
	code TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS stock_data (
	id BIGSERIAL PRIMARY KEY,
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

// recordColumns is the value column order shared by every query on stock_data.
const recordColumns = `date, price, max, min, avg, percent_change, quantity, best_turnover, total_turnover`

func recordArgs(code string, r *mse.DailyRecord) []any {
	return []any{
		code, r.Date,
		text(r.Price), text(r.Max), text(r.Min), text(r.Avg),
		text(r.PercentChange), text(r.Quantity),
		text(r.BestTurnover), text(r.TotalTurnover),
	}
}

// text renders a nullable decimal for a TEXT column.
func text(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func fromText(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// scanner is satisfied by both *sql.Rows and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(code string, row scanner) (*mse.DailyRecord, error) {
	var (
		date string
		cols [8]*string
	)
	if err := row.Scan(&date, &cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5], &cols[6], &cols[7]); err != nil {
		return nil, err
	}

	rec := &mse.DailyRecord{
		Code:          code,
		Date:          date,
		Price:         fromText(cols[0]),
		Max:           fromText(cols[1]),
		Min:           fromText(cols[2]),
		Avg:           fromText(cols[3]),
		PercentChange: fromText(cols[4]),
		Quantity:      fromText(cols[5]),
		BestTurnover:  fromText(cols[6]),
		TotalTurnover: fromText(cols[7]),
	}
	if day, err := time.Parse(mse.StorageDateFormat, date); err == nil {
		rec.Day = day
	}

	return rec, nil
}
