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

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc/pool"
)

// DefaultWorkers matches the width the exchange tolerates without throttling.
const DefaultWorkers = 5

// Tracker receives one tick per finished instrument.
type Tracker interface {
	Add(num int) error
}

// ProgressFunc creates a tracker for a run over total instruments.
type ProgressFunc func(total int) Tracker

func (f ProgressFunc) tracker(total int) Tracker {
	if f == nil {
		return nil
	}
	return f(total)
}

// Result is the outcome of one instrument's task.
type Result struct {
	Code     string
	Gap      Window
	Backfill bool
	Pages    int
	Parsed   int
	Saved    int
	AsOf     time.Time
	Err      error
	Duration time.Duration
}

// OK reports whether the task finished without error.
func (r *Result) OK() bool {
	return r.Err == nil
}

// Summary is what a harvest or reconciliation run hands back once every
// task has finished.
type Summary struct {
	RunID     string
	Results   []*Result
	Succeeded int
	Failed    int
	Saved     int
	Duration  time.Duration
}

// Failures returns the results of the tasks that failed.
func (s *Summary) Failures() []*Result {
	failed := []*Result{}
	for _, r := range s.Results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

func newRunID() string {
	return ulid.Make().String()
}

// runPool executes task for every code with at most workers running at
// once and waits for all of them. A task that panics is reported as failed;
// it never takes down its siblings.
func runPool(ctx context.Context, workers int, codes []string, tracker Tracker, task func(ctx context.Context, code string) *Result) *Summary {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	start := time.Now()
	p := pool.NewWithResults[*Result]().WithMaxGoroutines(workers)
	for _, code := range codes {
		code := code
		p.Go(func() (res *Result) {
			taskStart := time.Now()
			defer func() {
				if r := recover(); r != nil {
					res = &Result{Code: code, Err: fmt.Errorf("task panicked: %v", r)}
				}
				if res == nil {
					res = &Result{Code: code, Err: fmt.Errorf("task returned no result")}
				}
				res.Duration = time.Since(taskStart)
				if tracker != nil {
					_ = tracker.Add(1)
				}
			}()
			return task(ctx, code)
		})
	}

	summary := &Summary{Results: p.Wait()}
	for _, r := range summary.Results {
		if r.OK() {
			summary.Succeeded++
			summary.Saved += r.Saved
		} else {
			summary.Failed++
		}
	}
	summary.Duration = time.Since(start)

	return summary
}
