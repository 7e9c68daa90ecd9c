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

	"github.com/rs/zerolog/log"
)

// DirectorySource serves the raw page listing instrument codes.
type DirectorySource interface {
	FetchDirectory(ctx context.Context) (string, error)
}

// CodeStore persists the set of known instrument codes.
type CodeStore interface {
	KnownCodes(ctx context.Context) ([]string, error)
	MergeCodes(ctx context.Context, codes []string) (int, error)
}

// Directory keeps the stored code set in step with the exchange listing.
// Codes are only ever added.
type Directory struct {
	source DirectorySource
	store  CodeStore
}

func NewDirectory(source DirectorySource, store CodeStore) *Directory {
	return &Directory{source: source, store: store}
}

// Refresh downloads and parses the current listing.
func (d *Directory) Refresh(ctx context.Context) ([]string, error) {
	page, err := d.source.FetchDirectory(ctx)
	if err != nil {
		return nil, err
	}

	codes := ParseDirectory(page)
	if len(codes) == 0 {
		return nil, ErrNoCodes
	}

	return codes, nil
}

// Merge adds codes to the store and returns how many were new.
func (d *Directory) Merge(ctx context.Context, codes []string) (int, error) {
	valid := make([]string, 0, len(codes))
	for _, code := range codes {
		if IsInstrumentCode(code) {
			valid = append(valid, code)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	added, err := d.store.MergeCodes(ctx, valid)
	if err != nil {
		return 0, fmt.Errorf("merge instrument codes: %w", err)
	}
	return added, nil
}

// Sync refreshes the listing and merges it. When the listing cannot be
// fetched or is empty the stored set is left untouched.
func (d *Directory) Sync(ctx context.Context) (int, error) {
	codes, err := d.Refresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("directory refresh failed, keeping known codes")
		return 0, err
	}

	added, err := d.Merge(ctx, codes)
	if err != nil {
		return 0, err
	}

	log.Info().Int("Listed", len(codes)).Int("Added", added).Msg("instrument directory synced")
	return added, nil
}
