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

// Package idgen generates the short opaque identifiers Chilsonite hands
// out to Agents. The generation technique is adapted from go-nano's
// benchmark/io/exponential.go RandString helper (bit-packing a
// math/rand.Source's Int63 output into letter indices); this version
// seeds its own source from crypto/rand instead of taking a caller-
// supplied source, since agent IDs are externally visible identifiers
// rather than a benchmark's throwaway payload.
package idgen

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand"
	"time"
)

const (
	agentIDLength = 13
	alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	idxBits       = 6
	idxMask       = 1<<idxBits - 1
	idxMax        = 63 / idxBits
)

func seededSource() mrand.Source {
	var seed int64
	if n, err := rand.Int(rand.Reader, big.NewInt(1<<62)); err == nil {
		seed = n.Int64()
	} else {
		// crypto/rand is unavailable (shouldn't happen on any real OS);
		// fall back to a timestamp derived seed so callers still get an
		// ID rather than a panic.
		seed = time.Now().UnixNano()
	}
	return mrand.NewSource(seed)
}

// AgentID returns a fresh 13-character URL-safe opaque agent identifier.
func AgentID() string {
	return randString(agentIDLength, seededSource())
}

func randString(n int, src mrand.Source) string {
	b := make([]byte, n)
	for i, cache, remain := n-1, src.Int63(), idxMax; i >= 0; {
		if remain == 0 {
			cache, remain = src.Int63(), idxMax
		}
		if idx := int(cache & idxMask); idx < len(alphabet) {
			b[i] = alphabet[idx]
			i--
		}
		cache >>= idxBits
		remain--
	}
	return string(b)
}
