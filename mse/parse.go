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
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// minColumns is the number of cells a history row must carry:
// date, price, max, min, avg, percent change, quantity, best turnover and
// total turnover.
const minColumns = 9

// ParseTable extracts the daily records from a symbol history page. A page
// without a results table yields no records.
func ParseTable(page string) []*DailyRecord {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		log.Warn().Err(err).Msg("could not read history page")
		return nil
	}

	table := doc.Find("table#resultsTable").First()
	if table.Length() == 0 {
		return nil
	}

	records := []*DailyRecord{}
	table.Find("tr").Each(func(idx int, row *goquery.Selection) {
		if idx == 0 {
			// header
			return
		}

		cells := row.Find("td")
		if cells.Length() < minColumns {
			return
		}

		col := make([]string, 0, cells.Length())
		cells.Each(func(_ int, cell *goquery.Selection) {
			col = append(col, cleanText(cell.Text()))
		})

		date, day := ParseDate(col[0])
		records = append(records, &DailyRecord{
			Date:          date,
			Day:           day,
			Price:         NormalizeNumber(col[1]),
			Max:           NormalizeNumber(col[2]),
			Min:           NormalizeNumber(col[3]),
			Avg:           NormalizeNumber(col[4]),
			PercentChange: NormalizeNumber(col[5]),
			Quantity:      NormalizeNumber(col[6]),
			BestTurnover:  NormalizeNumber(col[7]),
			TotalTurnover: NormalizeNumber(col[8]),
		})
	})

	return records
}

// ParseDirectory returns the sorted, de-duplicated instrument codes listed
// in the code selector of a symbol history page.
func ParseDirectory(page string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		log.Warn().Err(err).Msg("could not read directory page")
		return nil
	}

	seen := make(map[string]struct{})
	doc.Find("select#Code option").Each(func(_ int, opt *goquery.Selection) {
		val, ok := opt.Attr("value")
		if !ok {
			return
		}
		val = strings.TrimSpace(val)
		if !IsInstrumentCode(val) {
			return
		}
		seen[strings.ToUpper(val)] = struct{}{}
	})

	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	return codes
}

// IsInstrumentCode reports whether s is a non-empty, letters-only code.
func IsInstrumentCode(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// NormalizeNumber converts a number written with a dot thousands separator
// and a decimal comma (2.140,00) into a decimal. Empty and placeholder
// values, and anything that still fails to parse, are null.
func NormalizeNumber(s string) decimal.NullDecimal {
	s = strings.ReplaceAll(cleanText(s), " ", "")
	switch s {
	case "", "None", "nan", "NaN", "-":
		return decimal.NullDecimal{}
	}

	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// ParseDate reads a day.month.year date. Text that is not a date is handed
// back unchanged with a zero day.
func ParseDate(s string) (string, time.Time) {
	s = cleanText(s)
	dt, err := time.Parse(SourceDateFormat, s)
	if err != nil {
		// try without zero padding, e.g. 2.1.2024
		dt, err = time.Parse("2.1.2006", s)
	}
	if err != nil {
		return s, time.Time{}
	}
	return dt.Format(StorageDateFormat), dt
}

// cleanText trims whitespace including non-breaking spaces.
func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(s)
}
