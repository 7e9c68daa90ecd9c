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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Markers maps an instrument code to the day its data is believed complete.
type Markers map[string]time.Time

// MarkerStore hands as-of markers from the harvest to the reconciliation
// pass. Delivery is at-least-once: a marker stays until it is removed.
type MarkerStore interface {
	Load(ctx context.Context) (Markers, error)
	Put(ctx context.Context, code string, day time.Time) error
	Remove(ctx context.Context, codes ...string) error
}

// FileMarkers keeps markers in a single file mapping code to a
// day.month.year string. The file is read as YAML, which also accepts
// JSON, and written as JSON unless it has a YAML extension.
type FileMarkers struct {
	Path string

	mu sync.Mutex
}

func NewFileMarkers(path string) *FileMarkers {
	return &FileMarkers{Path: path}
}

// Load returns the stored markers. A missing file means nothing to do.
func (m *FileMarkers) Load(ctx context.Context) (Markers, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read()
}

func (m *FileMarkers) Put(ctx context.Context, code string, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	markers, err := m.read()
	if err != nil {
		return err
	}
	markers[code] = Day(day)
	return m.write(markers)
}

func (m *FileMarkers) Remove(ctx context.Context, codes ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	markers, err := m.read()
	if err != nil {
		return err
	}
	if len(markers) == 0 {
		return nil
	}
	for _, code := range codes {
		delete(markers, code)
	}
	return m.write(markers)
}

func (m *FileMarkers) read() (Markers, error) {
	markers := Markers{}

	data, err := os.ReadFile(m.Path)
	if errors.Is(err, os.ErrNotExist) {
		return markers, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker file: %w", err)
	}

	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse marker file %s: %w", m.Path, err)
	}

	for code, dateStr := range raw {
		day, err := time.Parse(SourceDateFormat, strings.TrimSpace(dateStr))
		if err != nil {
			log.Warn().Str("Code", code).Str("Date", dateStr).Msg("ignoring marker with unreadable date")
			continue
		}
		markers[code] = day
	}

	return markers, nil
}

func (m *FileMarkers) write(markers Markers) error {
	raw := make(map[string]string, len(markers))
	for code, day := range markers {
		raw[code] = day.Format(SourceDateFormat)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(m.Path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(raw)
	default:
		data, err = json.MarshalIndent(raw, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal markers: %w", err)
	}

	if dir := filepath.Dir(m.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create marker directory: %w", err)
		}
	}

	tmp := m.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write marker file: %w", err)
	}
	if err := os.Rename(tmp, m.Path); err != nil {
		return fmt.Errorf("replace marker file: %w", err)
	}

	return nil
}
