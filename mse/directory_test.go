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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDirectory struct {
	page string
	err  error
}

func (s staticDirectory) FetchDirectory(ctx context.Context) (string, error) {
	return s.page, s.err
}

func TestDirectorySync(t *testing.T) {
	st := newMemStore()
	_, _ = st.MergeCodes(context.Background(), []string{"ALK"})

	dir := NewDirectory(staticDirectory{page: directoryPage("", "ALK", "kmb", "TEL", "MSE10", "TEL")}, st)
	added, err := dir.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	codes, _ := st.KnownCodes(context.Background())
	assert.Equal(t, []string{"ALK", "KMB", "TEL"}, codes)

	added, err = dir.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestDirectorySyncFailures(t *testing.T) {
	cases := []struct {
		name   string
		source staticDirectory
		want   error
	}{
		{"empty listing", staticDirectory{page: directoryPage()}, ErrNoCodes},
		{"no select", staticDirectory{page: "<html><body>maintenance</body></html>"}, ErrNoCodes},
		{"request failed", staticDirectory{err: ErrRequestFailed}, ErrRequestFailed},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			st := newMemStore()
			_, _ = st.MergeCodes(context.Background(), []string{"ALK", "TEL"})

			_, err := NewDirectory(tc.source, st).Sync(context.Background())
			assert.True(t, errors.Is(err, tc.want), "got %v", err)

			codes, _ := st.KnownCodes(context.Background())
			assert.Equal(t, []string{"ALK", "TEL"}, codes)
		})
	}
}

func TestDirectoryMergeFiltersCodes(t *testing.T) {
	st := newMemStore()
	added, err := NewDirectory(nil, st).Merge(context.Background(), []string{"ALK", "", "A1", "KOMB"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	codes, _ := st.KnownCodes(context.Background())
	assert.Equal(t, []string{"ALK", "KOMB"}, codes)
}

func TestDirectoryAgainstExchange(t *testing.T) {
	ex, srv := newFakeExchange(t)
	ex.setCodes("ALK", "KMB")

	st := newMemStore()
	added, err := NewDirectory(newTestFetcher(srv), st).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, added)
}
