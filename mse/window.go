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

import "time"

// DefaultWindowDays is the widest range the exchange returns on one page.
const DefaultWindowDays = 365

// Day truncates t to midnight UTC of the calendar day t falls on in its own
// location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SplitWindows cuts [from, to) into consecutive windows of at most maxDays
// days. The windows cover the range exactly once, in chronological order.
func SplitWindows(from, to time.Time, maxDays int) []Window {
	if maxDays <= 0 {
		maxDays = DefaultWindowDays
	}

	from = Day(from)
	to = Day(to)

	windows := make([]Window, 0, 1)
	for start := from; start.Before(to); {
		end := start.AddDate(0, 0, maxDays)
		if end.After(to) {
			end = to
		}
		windows = append(windows, Window{From: start, To: end})
		start = end
	}

	return windows
}

// GapWindow returns the range that still has to be fetched for an
// instrument whose newest stored day is watermark, as seen on the day of
// now. Without a watermark the gap reaches backfillDays into the past. The
// current day is always included.
func GapWindow(watermark time.Time, hasWatermark bool, now time.Time, backfillDays int) (gap Window, backfill bool) {
	today := Day(now)
	end := today.AddDate(0, 0, 1)

	if hasWatermark {
		start := Day(watermark).AddDate(0, 0, 1)
		if start.After(end) {
			start = end
		}
		return Window{From: start, To: end}, false
	}

	return Window{From: today.AddDate(0, 0, -backfillDays), To: end}, true
}
