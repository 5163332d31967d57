// Copyright (c) Chilsonite Authors. All Rights Reserved.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package geoip implements the thin external geolocation client an Agent
// calls once at startup: a single HTTP call returning {ip, country_code},
// with a short fixed backoff and no further retry during that initial
// step.
package geoip

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/chilsonite/chilsonite/internal/chilerr"
)

// Info is the {ip, country_code} result the external service returns.
type Info struct {
	IP          string `json:"ip"`
	CountryCode string `json:"country_code"`
}

// Client calls the external geolocation endpoint.
type Client struct {
	URL     string
	HTTP    *http.Client
	Backoff time.Duration
}

// NewClient returns a Client with a 5s request timeout and a 500ms fixed
// backoff before its single allowed retry.
func NewClient(url string) *Client {
	return &Client{
		URL:     url,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		Backoff: 500 * time.Millisecond,
	}
}

// Lookup performs the single call, plus on failure one fixed-backoff
// retry.
func (c *Client) Lookup(ctx context.Context) (Info, error) {
	info, err := c.lookupOnce(ctx)
	if err == nil {
		return info, nil
	}

	select {
	case <-time.After(c.Backoff):
	case <-ctx.Done():
		return Info{}, chilerr.Wrap(chilerr.Transient, ctx.Err(), "geoip lookup cancelled during backoff")
	}
	return c.lookupOnce(ctx)
}

func (c *Client) lookupOnce(ctx context.Context) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return Info{}, chilerr.Wrap(chilerr.Transient, err, "build geoip request")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Info{}, chilerr.Wrap(chilerr.Transient, err, "call geoip service")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, chilerr.New(chilerr.Transient, "geoip service returned non-200")
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Info{}, chilerr.Wrap(chilerr.Transient, err, "decode geoip response")
	}
	return info, nil
}
