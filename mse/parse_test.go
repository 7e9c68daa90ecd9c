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
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		valid bool
	}{
		{in: "2.140,00", want: "2140", valid: true},
		{in: "1.234.567", want: "1234567", valid: true},
		{in: "-1,25", want: "-1.25", valid: true},
		{in: "0,00", want: "0", valid: true},
		{in: " 1.000,5 ", want: "1000.5", valid: true},
		{in: "", valid: false},
		{in: "None", valid: false},
		{in: "nan", valid: false},
		{in: "n/a", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeNumber(tt.in)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.True(t, got.Decimal.Equal(decimal.RequireFromString(tt.want)), "got %s", got.Decimal)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	date, d := ParseDate(" 02.01.2024 ")
	assert.Equal(t, "2024-01-02", date)
	assert.Equal(t, day(2024, 1, 2), d)

	date, d = ParseDate("2.1.2024")
	assert.Equal(t, "2024-01-02", date)
	assert.Equal(t, day(2024, 1, 2), d)

	date, d = ParseDate("Вкупно")
	assert.Equal(t, "Вкупно", date)
	assert.True(t, d.IsZero())
}

func TestParseTable(t *testing.T) {
	page := historyPage(
		historyRow("19.01.2024", "2.140,00"),
		"<tr><td>18.01.2024</td><td>1,00</td></tr>",
		historyRow("17.01.2024", ""),
		historyRow("Вкупно", "nan"),
	)

	records := ParseTable(page)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "2024-01-19", first.Date)
	assert.Equal(t, day(2024, 1, 19), first.Day)
	assert.True(t, first.Price.Decimal.Equal(decimal.NewFromInt(2140)))
	assert.True(t, first.Quantity.Decimal.Equal(decimal.NewFromInt(1200)))
	assert.True(t, first.TotalTurnover.Decimal.Equal(decimal.NewFromInt(25680)))
	assert.True(t, first.PercentChange.Valid)

	assert.Equal(t, "2024-01-17", records[1].Date)
	assert.False(t, records[1].Price.Valid)
	assert.True(t, records[1].Quantity.Valid)

	// rows with an unreadable date are kept as they are
	assert.Equal(t, "Вкупно", records[2].Date)
	assert.False(t, records[2].HasDay())
}

func TestParseTableWithoutTable(t *testing.T) {
	assert.Empty(t, ParseTable(`<html><body><p>Нема податоци</p></body></html>`))
	assert.Empty(t, ParseTable(""))
	assert.Empty(t, ParseTable(historyPage()))
}

func TestParseDirectory(t *testing.T) {
	page := directoryPage("ALK", "KMB", "", "---", "ALK", "REPL2", "komb", "TEL")

	codes := ParseDirectory(page)
	assert.Equal(t, []string{"ALK", "KMB", "KOMB", "TEL"}, codes)
}

func TestIsInstrumentCode(t *testing.T) {
	assert.True(t, IsInstrumentCode("ALK"))
	assert.False(t, IsInstrumentCode(""))
	assert.False(t, IsInstrumentCode("AB1"))
	assert.False(t, IsInstrumentCode("A-B"))
}
