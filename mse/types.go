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
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SourceDateFormat is the day.month.year layout used by the exchange in
// query parameters, result tables and the marker file.
const SourceDateFormat = "02.01.2006"

// StorageDateFormat is the layout dates are stored in so that text order
// matches chronological order.
const StorageDateFormat = "2006-01-02"

var (
	// ErrRequestFailed wraps transport errors and non-2xx responses from
	// the exchange.
	ErrRequestFailed = errors.New("request to exchange failed")

	// ErrNoCodes means neither the directory page nor the store yielded a
	// single instrument code.
	ErrNoCodes = errors.New("no instrument codes found")
)

// DailyRecord is one row of an instrument's symbol history.
type DailyRecord struct {
	Code string `json:"code"`

	// Date is the canonical date text; ISO when the source date parsed,
	// otherwise the trimmed source text.
	Date string `json:"date"`

	// Day is the parsed calendar day, zero when Date is not a date.
	Day time.Time `json:"-"`

	Price         decimal.NullDecimal `json:"price"`
	Max           decimal.NullDecimal `json:"max"`
	Min           decimal.NullDecimal `json:"min"`
	Avg           decimal.NullDecimal `json:"avg"`
	PercentChange decimal.NullDecimal `json:"percentChange"`
	Quantity      decimal.NullDecimal `json:"quantity"`
	BestTurnover  decimal.NullDecimal `json:"bestTurnover"`
	TotalTurnover decimal.NullDecimal `json:"totalTurnover"`
}

// HasDay reports whether the record's date was parsed.
func (r *DailyRecord) HasDay() bool {
	return !r.Day.IsZero()
}

// Page is the raw body returned for one window of an instrument's history.
type Page struct {
	Code   string
	Window Window
	Body   string
}

// Window is a half-open range of calendar days [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Days returns the number of calendar days covered by the window.
func (w Window) Days() int {
	if !w.To.After(w.From) {
		return 0
	}
	return int(w.To.Sub(w.From).Hours() / 24)
}

// Empty is true when the window covers no days.
func (w Window) Empty() bool {
	return w.Days() == 0
}

// LastDay returns the last calendar day included in the window.
func (w Window) LastDay() time.Time {
	return w.To.AddDate(0, 0, -1)
}
