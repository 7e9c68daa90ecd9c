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
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/penny-vault/import-mse/mse"
	"github.com/rs/zerolog/log"
)

// Postgres stores codes and records in an existing database laid out as
// PostgresSchema.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		log.Error().Err(err).Msg("Could not connect to database")
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) KnownCodes(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT code FROM publishers ORDER BY code`)
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

func (p *Postgres) MergeCodes(ctx context.Context, codes []string) (int, error) {
	added := 0
	err := p.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, code := range codes {
			tag, err := tx.Exec(ctx, `INSERT INTO publishers (code) VALUES ($1) ON CONFLICT (code) DO NOTHING`, code)
			if err != nil {
				return fmt.Errorf("insert code %s: %w", code, err)
			}
			added += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (p *Postgres) LastDate(ctx context.Context, code string) (time.Time, bool, error) {
	var last *string
	err := p.pool.QueryRow(ctx,
		`SELECT MAX(date) FROM stock_data
		WHERE code = $1 AND date ~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}$'`, code).Scan(&last)
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

// Upsert queues every record in a single batch inside one transaction.
func (p *Postgres) Upsert(ctx context.Context, code string, records []*mse.DailyRecord) (int, error) {
	batch := &pgx.Batch{}
	for _, r := range records {
		r.Code = code
		batch.Queue(`INSERT INTO stock_data (code, `+recordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (code, date) DO UPDATE SET
				price = EXCLUDED.price,
				max = EXCLUDED.max,
				min = EXCLUDED.min,
				avg = EXCLUDED.avg,
				percent_change = EXCLUDED.percent_change,
				quantity = EXCLUDED.quantity,
				best_turnover = EXCLUDED.best_turnover,
				total_turnover = EXCLUDED.total_turnover`, recordArgs(code, r)...)
	}

	err := p.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		defer results.Close()

		for _, r := range records {
			if _, err := results.Exec(); err != nil {
				log.Error().Str("Code", code).Str("Date", r.Date).Str("OriginalError", err.Error()).Msg("error saving daily record to database")
				return fmt.Errorf("upsert %s %s: %w", code, r.Date, err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (p *Postgres) Records(ctx context.Context, code string) ([]*mse.DailyRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+recordColumns+` FROM stock_data WHERE code = $1 ORDER BY date ASC`, code)
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

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
