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

// PipelineOptions selects what a pipeline run does.
type PipelineOptions struct {
	SkipDirectory bool
	Reconcile     bool
	Limit         int
}

// PipelineResult collects the outcome of each stage that ran.
type PipelineResult struct {
	CodesAdded int
	Harvest    *Summary
	Reconcile  *Summary
}

// Pipeline runs the stages one after the other. Each stage is also usable
// on its own; none of them triggers another.
type Pipeline struct {
	Directory   *Directory
	Codes       CodeStore
	Coordinator *Coordinator
	Reconciler  *Reconciler
}

func (p *Pipeline) Run(ctx context.Context, opts PipelineOptions) (*PipelineResult, error) {
	result := &PipelineResult{}

	if !opts.SkipDirectory && p.Directory != nil {
		added, err := p.Directory.Sync(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("continuing with previously known codes")
		}
		result.CodesAdded = added
	}

	codes, err := p.Codes.KnownCodes(ctx)
	if err != nil {
		return result, fmt.Errorf("load known codes: %w", err)
	}
	if len(codes) == 0 {
		return result, ErrNoCodes
	}
	if opts.Limit > 0 && opts.Limit < len(codes) {
		codes = codes[:opts.Limit]
	}

	result.Harvest = p.Coordinator.Run(ctx, codes)

	if opts.Reconcile && p.Reconciler != nil {
		summary, err := p.Reconciler.RunPending(ctx)
		result.Reconcile = summary
		if err != nil {
			return result, err
		}
	}

	return result, nil
}
