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
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// historyRow renders one result table row with all nine columns.
func historyRow(date, price string) string {
	return fmt.Sprintf("<tr><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>0,00</td><td>1.200</td><td>25.680,00</td><td>25.680,00</td></tr>",
		date, price, price, price, price)
}

func historyPage(rows ...string) string {
	return `<html><body><table id="resultsTable"><thead><tr><th>Датум</th><th>Цена на последна трансакција</th><th>Мак.</th><th>Мин.</th><th>Просечна цена</th><th>%пром.</th><th>Количина</th><th>Промет во БЕСТ во денари</th><th>Вкупен промет во денари</th></tr></thead><tbody>` +
		strings.Join(rows, "") + `</tbody></table></body></html>`
}

func directoryPage(values ...string) string {
	opts := make([]string, 0, len(values))
	for _, v := range values {
		opts = append(opts, fmt.Sprintf(`<option value="%s">%s</option>`, v, v))
	}
	return `<html><body><form><select id="Code" name="Code">` + strings.Join(opts, "") + `</select></form></body></html>`
}

// exchangeRequest is one history request seen by the fake exchange.
type exchangeRequest struct {
	Code string
	From time.Time
	To   time.Time
}

// fakeExchange serves symbol history pages for a fixed set of published
// days. With stale set it ignores FromDate and returns everything up to
// ToDate, like a source that keeps resending old rows.
type fakeExchange struct {
	mu        sync.Mutex
	days      map[string][]time.Time
	requests  []exchangeRequest
	failCodes map[string]bool
	stale     bool
	codes     []string
}

func newFakeExchange(t *testing.T) (*fakeExchange, *httptest.Server) {
	t.Helper()

	ex := &fakeExchange{
		days:      map[string][]time.Time{},
		failCodes: map[string]bool{},
	}
	srv := httptest.NewServer(http.HandlerFunc(ex.serve))
	t.Cleanup(srv.Close)
	return ex, srv
}

func (ex *fakeExchange) publish(code string, days ...time.Time) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.days[code] = append(ex.days[code], days...)
	sort.Slice(ex.days[code], func(i, j int) bool { return ex.days[code][i].Before(ex.days[code][j]) })
}

func (ex *fakeExchange) setCodes(codes ...string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.codes = codes
}

func (ex *fakeExchange) setStale(stale bool) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.stale = stale
}

func (ex *fakeExchange) fail(code string) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.failCodes[code] = true
}

func (ex *fakeExchange) requestsFor(code string) []exchangeRequest {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	reqs := []exchangeRequest{}
	for _, r := range ex.requests {
		if r.Code == code {
			reqs = append(reqs, r)
		}
	}
	return reqs
}

func (ex *fakeExchange) serve(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/")
	if code == DefaultDirectoryPath {
		ex.mu.Lock()
		page := directoryPage(ex.codes...)
		ex.mu.Unlock()
		fmt.Fprint(w, page)
		return
	}

	q := r.URL.Query()
	from, err1 := time.Parse(SourceDateFormat, q.Get("FromDate"))
	to, err2 := time.Parse(SourceDateFormat, q.Get("ToDate"))
	if err := errors.Join(err1, err2); err != nil || q.Get("Code") != code {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ex.mu.Lock()
	ex.requests = append(ex.requests, exchangeRequest{Code: code, From: from, To: to})
	fail := ex.failCodes[code]
	published := append([]time.Time(nil), ex.days[code]...)
	stale := ex.stale
	ex.mu.Unlock()

	if fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	rows := []string{}
	for _, d := range published {
		if d.After(to) || (!stale && d.Before(from)) {
			continue
		}
		rows = append(rows, historyRow(d.Format(SourceDateFormat), "2.140,00"))
	}
	fmt.Fprint(w, historyPage(rows...))
}

// memStore is an in-memory RecordStore and CodeStore.
type memStore struct {
	mu        sync.Mutex
	codes     map[string]struct{}
	records   map[string]map[string]*DailyRecord
	failCodes map[string]bool
	upserts   int
}

func newMemStore() *memStore {
	return &memStore{
		codes:     map[string]struct{}{},
		records:   map[string]map[string]*DailyRecord{},
		failCodes: map[string]bool{},
	}
}

func (m *memStore) KnownCodes(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	codes := make([]string, 0, len(m.codes))
	for c := range m.codes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes, nil
}

func (m *memStore) MergeCodes(ctx context.Context, codes []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	added := 0
	for _, c := range codes {
		if _, ok := m.codes[c]; !ok {
			m.codes[c] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (m *memStore) LastDate(ctx context.Context, code string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCodes[code] {
		return time.Time{}, false, errors.New("storage unavailable")
	}

	var last time.Time
	for _, r := range m.records[code] {
		if r.HasDay() && r.Day.After(last) {
			last = r.Day
		}
	}
	return last, !last.IsZero(), nil
}

func (m *memStore) Upsert(ctx context.Context, code string, records []*DailyRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failCodes[code] {
		return 0, errors.New("storage unavailable")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if m.records[code] == nil {
		m.records[code] = map[string]*DailyRecord{}
	}
	for _, r := range records {
		r.Code = code
		m.records[code][r.Date] = r
	}
	m.upserts++
	return len(records), nil
}

func (m *memStore) count(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records[code])
}

func (m *memStore) put(code string, days ...time.Time) {
	recs := make([]*DailyRecord, 0, len(days))
	for _, d := range days {
		recs = append(recs, &DailyRecord{Date: d.Format(StorageDateFormat), Day: d})
	}
	_, _ = m.Upsert(context.Background(), code, recs)
}

// memMarkers is an in-memory MarkerStore.
type memMarkers struct {
	mu      sync.Mutex
	markers Markers
}

func newMemMarkers() *memMarkers {
	return &memMarkers{markers: Markers{}}
}

func (m *memMarkers) Load(ctx context.Context) (Markers, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Markers{}
	for k, v := range m.markers {
		out[k] = v
	}
	return out, nil
}

func (m *memMarkers) Put(ctx context.Context, code string, d time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[code] = Day(d)
	return nil
}

func (m *memMarkers) Remove(ctx context.Context, codes ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range codes {
		delete(m.markers, c)
	}
	return nil
}
