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
package mse

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultBackfillDays is how far back an instrument without stored data is
// fetched.
const DefaultBackfillDays = 365 * 10

// RangeFetcher returns the pages for [from, to) of an instrument's history
// in chronological order.
type RangeFetcher interface {
	FetchRange(ctx context.Context, code string, from, to time.Time) []*Page
}

// RecordStore is the durable table of daily records.
type RecordStore interface {
	LastDate(ctx context.Context, code string) (time.Time, bool, error)
	Upsert(ctx context.Context, code string, records []*DailyRecord) (int, error)
}

// HarvestConfig tunes the coordinator.
type HarvestConfig struct {
	Workers      int
	BackfillDays int

	// PreciseMarkers records the newest parsed day as the as-of marker
	// instead of the day the harvest ran.
	PreciseMarkers bool
}

// Coordinator fills every instrument's gap between its watermark and today.
type Coordinator struct {
	cfg     HarvestConfig
	fetcher RangeFetcher
	store   RecordStore
	markers MarkerStore

	Now      func() time.Time
	Progress ProgressFunc
}

func NewCoordinator(cfg HarvestConfig, fetcher RangeFetcher, store RecordStore, markers MarkerStore) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.BackfillDays <= 0 {
		cfg.BackfillDays = DefaultBackfillDays
	}
	return &Coordinator{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		markers: markers,
		Now:     time.Now,
	}
}

// Run harvests all codes concurrently and returns once every instrument has
// finished. Individual failures are reported in the summary.
func (c *Coordinator) Run(ctx context.Context, codes []string) *Summary {
	runID := newRunID()
	subLog := log.With().Str("RunID", runID).Logger()
	subLog.Info().Int("Instruments", len(codes)).Int("Workers", c.cfg.Workers).Msg("starting harvest")

	summary := runPool(ctx, c.cfg.Workers, codes, c.Progress.tracker(len(codes)), c.HarvestOne)
	summary.RunID = runID

	for _, r := range summary.Failures() {
		subLog.Error().Str("Code", r.Code).Err(r.Err).Msg("harvest failed for instrument")
	}
	subLog.Info().
		Int("Succeeded", summary.Succeeded).
		Int("Failed", summary.Failed).
		Int("Saved", summary.Saved).
		Dur("Duration", summary.Duration).
		Msg("harvest complete")

	return summary
}

// Gap computes the range still missing for code.
func (c *Coordinator) Gap(ctx context.Context, code string) (Window, bool, time.Time, error) {
	watermark, ok, err := c.store.LastDate(ctx, code)
	if err != nil {
		return Window{}, false, time.Time{}, fmt.Errorf("look up watermark: %w", err)
	}

	gap, backfill := GapWindow(watermark, ok, c.Now(), c.cfg.BackfillDays)
	return gap, backfill, watermark, nil
}

// HarvestOne fetches, parses and stores the missing history of one
// instrument, then records its as-of marker.
func (c *Coordinator) HarvestOne(ctx context.Context, code string) *Result {
	subLog := log.With().Str("Code", code).Logger()
	res := &Result{Code: code}

	gap, backfill, watermark, err := c.Gap(ctx, code)
	if err != nil {
		res.Err = err
		return res
	}
	res.Gap = gap
	res.Backfill = backfill

	if backfill {
		subLog.Info().Str("From", gap.From.Format(SourceDateFormat)).Msg("no stored data, backfilling")
	} else {
		subLog.Info().Str("Watermark", watermark.Format(SourceDateFormat)).Msg("fetching missing data")
	}

	var records []*DailyRecord
	if !gap.Empty() {
		pages := c.fetcher.FetchRange(ctx, code, gap.From, gap.To)
		res.Pages = len(pages)
		for _, page := range pages {
			records = append(records, ParseTable(page.Body)...)
		}
	}
	res.Parsed = len(records)

	if len(records) > 0 {
		// pages fetched before a cancellation are still stored
		saved, err := c.store.Upsert(context.WithoutCancel(ctx), code, records)
		if err != nil {
			res.Err = fmt.Errorf("save records: %w", err)
			return res
		}
		res.Saved = saved
	}

	res.AsOf = c.asOf(records, watermark)
	if c.markers != nil && !res.AsOf.IsZero() {
		if err := c.markers.Put(ctx, code, res.AsOf); err != nil {
			res.Err = fmt.Errorf("record as-of marker: %w", err)
			return res
		}
	}

	subLog.Debug().Int("Pages", res.Pages).Int("Saved", res.Saved).Msg("instrument harvested")
	return res
}

// asOf picks the marker day. By default that is today, even when the
// exchange has not yet published today's row.
func (c *Coordinator) asOf(records []*DailyRecord, watermark time.Time) time.Time {
	if !c.cfg.PreciseMarkers {
		return Day(c.Now())
	}

	latest := watermark
	for _, r := range records {
		if r.HasDay() && r.Day.After(latest) {
			latest = r.Day
		}
	}
	return latest
}
