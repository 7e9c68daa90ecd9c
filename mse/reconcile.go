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
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Reconciler re-fetches everything after each instrument's as-of marker to
// pick up rows the exchange published or corrected late.
type Reconciler struct {
	workers int
	fetcher RangeFetcher
	store   RecordStore
	markers MarkerStore

	Now      func() time.Time
	Progress ProgressFunc
}

func NewReconciler(workers int, fetcher RangeFetcher, store RecordStore, markers MarkerStore) *Reconciler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Reconciler{
		workers: workers,
		fetcher: fetcher,
		store:   store,
		markers: markers,
		Now:     time.Now,
	}
}

// RunPending reconciles the markers left by earlier harvests and removes
// the ones that were processed successfully. Without markers it does
// nothing.
func (r *Reconciler) RunPending(ctx context.Context) (*Summary, error) {
	markers, err := r.markers.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load as-of markers: %w", err)
	}
	if len(markers) == 0 {
		log.Info().Msg("no as-of markers, nothing to reconcile")
		return &Summary{}, nil
	}

	summary := r.Run(ctx, markers)

	done := make([]string, 0, summary.Succeeded)
	for _, res := range summary.Results {
		if res.OK() {
			done = append(done, res.Code)
		}
	}
	if err := r.markers.Remove(ctx, done...); err != nil {
		return summary, fmt.Errorf("clear reconciled markers: %w", err)
	}

	return summary, nil
}

// Run reconciles the given markers.
func (r *Reconciler) Run(ctx context.Context, markers Markers) *Summary {
	runID := newRunID()
	subLog := log.With().Str("RunID", runID).Logger()

	codes := make([]string, 0, len(markers))
	for code := range markers {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	subLog.Info().Int("Instruments", len(codes)).Msg("starting reconciliation")
	summary := runPool(ctx, r.workers, codes, r.Progress.tracker(len(codes)), func(ctx context.Context, code string) *Result {
		return r.ReconcileOne(ctx, code, markers[code])
	})
	summary.RunID = runID

	for _, res := range summary.Failures() {
		subLog.Error().Str("Code", res.Code).Err(res.Err).Msg("reconciliation failed for instrument")
	}
	subLog.Info().
		Int("Succeeded", summary.Succeeded).
		Int("Failed", summary.Failed).
		Int("Saved", summary.Saved).
		Dur("Duration", summary.Duration).
		Msg("reconciliation complete")

	return summary
}

// ReconcileOne fetches [asOf+1, today] for code and stores only the rows
// dated strictly after asOf.
func (r *Reconciler) ReconcileOne(ctx context.Context, code string, asOf time.Time) *Result {
	subLog := log.With().Str("Code", code).Str("AsOf", asOf.Format(SourceDateFormat)).Logger()

	gap, _ := GapWindow(asOf, true, r.Now(), 0)
	res := &Result{Code: code, Gap: gap, AsOf: Day(asOf)}
	if gap.Empty() {
		return res
	}

	pages := r.fetcher.FetchRange(ctx, code, gap.From, gap.To)
	res.Pages = len(pages)
	if len(pages) == 0 {
		// the marker is the only record of this gap, keep it for the next run
		res.Err = fmt.Errorf("%w: no window of %s after %s could be fetched", ErrRequestFailed, code, asOf.Format(SourceDateFormat))
		return res
	}

	records := []*DailyRecord{}
	dropped := 0
	for _, page := range pages {
		for _, rec := range ParseTable(page.Body) {
			res.Parsed++
			if !rec.HasDay() || !rec.Day.After(res.AsOf) {
				dropped++
				continue
			}
			records = append(records, rec)
		}
	}
	if dropped > 0 {
		subLog.Warn().Int("Dropped", dropped).Msg("ignoring rows not newer than marker")
	}

	if len(records) > 0 {
		saved, err := r.store.Upsert(context.WithoutCancel(ctx), code, records)
		if err != nil {
			res.Err = fmt.Errorf("save records: %w", err)
			return res
		}
		res.Saved = saved
	}

	return res
}
