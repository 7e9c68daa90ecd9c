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

	"github.com/penny-vault/import-mse/mse"
	"github.com/rs/zerolog/log"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// parquetRecord is the on-disk layout of a daily record.
type parquetRecord struct {
	Code          string  `parquet:"name=code, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Date          string  `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Price         *string `parquet:"name=price, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Max           *string `parquet:"name=max, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Min           *string `parquet:"name=min, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Avg           *string `parquet:"name=avg, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	PercentChange *string `parquet:"name=percentChange, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	Quantity      *string `parquet:"name=quantity, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	BestTurnover  *string `parquet:"name=bestTurnover, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	TotalTurnover *string `parquet:"name=totalTurnover, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

func toParquet(r *mse.DailyRecord) *parquetRecord {
	return &parquetRecord{
		Code:          r.Code,
		Date:          r.Date,
		Price:         text(r.Price),
		Max:           text(r.Max),
		Min:           text(r.Min),
		Avg:           text(r.Avg),
		PercentChange: text(r.PercentChange),
		Quantity:      text(r.Quantity),
		BestTurnover:  text(r.BestTurnover),
		TotalTurnover: text(r.TotalTurnover),
	}
}

const (
	parquetRowGroupSize = 128 * 1024 * 1024
	parquetPageSize     = 8 * 1024
	parquetParallelism  = 4
)

// SaveToParquet writes records to fn using gzip compressed row groups. All
// records are attempted; the first one that could not be written is
// reported and the file is still finalized.
func SaveToParquet(records []*mse.DailyRecord, fn string) error {
	fh, err := local.NewLocalFileWriter(fn)
	if err != nil {
		log.Error().Str("OriginalError", err.Error()).Str("FileName", fn).Msg("cannot create parquet file")
		return fmt.Errorf("create %s: %w", fn, err)
	}
	defer fh.Close()

	pw, err := writer.NewParquetWriter(fh, new(parquetRecord), parquetParallelism)
	if err != nil {
		return fmt.Errorf("parquet writer: %w", err)
	}
	pw.RowGroupSize = parquetRowGroupSize
	pw.PageSize = parquetPageSize
	pw.CompressionType = parquet.CompressionCodec_GZIP

	var firstErr error
	failed := 0
	for _, r := range records {
		if err := pw.Write(toParquet(r)); err != nil {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("write %s %s: %w", r.Code, r.Date, err)
			}
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize %s: %w", fn, err)
	}
	if firstErr != nil {
		log.Error().Err(firstErr).Int("Failed", failed).Str("FileName", fn).Msg("some records were not written to parquet")
		return firstErr
	}

	log.Info().Int("NumRecords", len(records)).Str("FileName", fn).Msg("parquet export finished")
	return nil
}

// Export collects the records of every known instrument and writes them to
// a parquet file.
func Export(ctx context.Context, s Store, fn string) (int, error) {
	codes, err := s.KnownCodes(ctx)
	if err != nil {
		return 0, fmt.Errorf("load known codes: %w", err)
	}

	all := []*mse.DailyRecord{}
	for _, code := range codes {
		records, err := s.Records(ctx, code)
		if err != nil {
			return 0, fmt.Errorf("load records for %s: %w", code, err)
		}
		all = append(all, records...)
	}

	if err := SaveToParquet(all, fn); err != nil {
		return 0, err
	}
	return len(all), nil
}
