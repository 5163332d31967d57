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

package agent

import "time"

// Option configures an Agent, mirroring go-nano's Option func(*cluster.Options)
// pattern in options.go.
type Option func(*Agent)

// WithDialTimeout overrides the per-Connect outbound dial timeout. The
// CServer's configured connect timeout is not known to the Agent, so
// this defaults to 30s.
func WithDialTimeout(d time.Duration) Option {
	return func(a *Agent) { a.dialTimeout = d }
}

// WithGeoipURL overrides the external geolocation endpoint used to
// gather public_ip/country_code at startup.
func WithGeoipURL(url string) Option {
	return func(a *Agent) { a.geoipURL = url }
}

// WithOSName overrides the os_name sent at Register time (default:
// runtime.GOOS).
func WithOSName(name string) Option {
	return func(a *Agent) { a.osName = name }
}

// WithMaxBackoff overrides the reconnect backoff cap (default 60s).
func WithMaxBackoff(d time.Duration) Option {
	return func(a *Agent) { a.maxBackoff = d }
}
