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

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"go.uber.org/ratelimit"
)

const (
	DefaultBaseURL       = "https://www.mse.mk/mk/stats/symbolhistory/"
	DefaultDirectoryPath = "avk"
)

// SourceConfig describes where and how fast the exchange is queried.
type SourceConfig struct {
	BaseURL       string
	DirectoryPath string
	WindowDays    int
	RateLimit     int // requests per second, 0 disables the limiter
	Timeout       time.Duration
	UserAgent     string
}

// Fetcher downloads symbol history and directory pages from the exchange.
type Fetcher struct {
	cfg     SourceConfig
	client  *resty.Client
	limiter ratelimit.Limiter
}

// NewFetcher builds a fetcher; zero fields of cfg fall back to defaults.
func NewFetcher(cfg SourceConfig) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DirectoryPath == "" {
		cfg.DirectoryPath = DefaultDirectoryPath
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = DefaultWindowDays
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.RateLimit > 0 {
		limiter = ratelimit.New(cfg.RateLimit)
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "text/html")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Fetcher{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
	}
}

// FetchRange requests [from, to) for code one window at a time, oldest
// first. Windows that fail are logged and skipped; they are picked up again
// the next time the gap is computed.
func (f *Fetcher) FetchRange(ctx context.Context, code string, from, to time.Time) []*Page {
	subLog := log.With().Str("Code", code).Logger()
	url := f.cfg.BaseURL + code

	pages := []*Page{}
	for _, window := range SplitWindows(from, to, f.cfg.WindowDays) {
		if ctx.Err() != nil {
			subLog.Warn().Err(ctx.Err()).Msg("fetch cancelled, remaining windows skipped")
			break
		}

		fromStr := window.From.Format(SourceDateFormat)
		toStr := window.LastDay().Format(SourceDateFormat)

		f.limiter.Take()
		subLog.Debug().Str("Url", url).Str("FromDate", fromStr).Str("ToDate", toStr).Msg("loading history window")

		resp, err := f.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"FromDate": fromStr,
				"ToDate":   toStr,
				"Code":     code,
			}).
			Get(url)
		if err != nil {
			subLog.Warn().Str("OriginalError", err.Error()).Str("FromDate", fromStr).Str("ToDate", toStr).Msg("error when requesting history window")
			continue
		}
		if !resp.IsSuccess() {
			subLog.Warn().Int("StatusCode", resp.StatusCode()).Str("FromDate", fromStr).Str("ToDate", toStr).Msg("error when requesting history window")
			continue
		}

		pages = append(pages, &Page{
			Code:   code,
			Window: window,
			Body:   resp.String(),
		})
	}

	return pages
}

// FetchDirectory downloads the page carrying the list of instrument codes.
func (f *Fetcher) FetchDirectory(ctx context.Context) (string, error) {
	url := f.cfg.BaseURL + f.cfg.DirectoryPath

	f.limiter.Take()
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrRequestFailed, url, err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: %s: status %d", ErrRequestFailed, url, resp.StatusCode())
	}

	return resp.String(), nil
}
