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

package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	r := New()
	a := &Agent{ID: "abc0123456789", CountryCode: "JP", AttachedAt: time.Now()}
	r.Insert(a)

	got, ok := r.GetByID("abc0123456789")
	require.True(t, ok)
	assert.Equal(t, "JP", got.CountryCode)

	r.Remove("abc0123456789")
	_, ok = r.GetByID("abc0123456789")
	assert.False(t, ok)
}

func TestGetByIDNoPrefixMatch(t *testing.T) {
	r := New()
	r.Insert(&Agent{ID: "abc0123456789", CountryCode: "JP"})
	_, ok := r.GetByID("abc")
	assert.False(t, ok)
}

// TestAgentUniqueness covers the §8.1 invariant under concurrent inserts
// of distinct IDs: the registry never ends up with more entries than
// distinct IDs inserted.
func TestAgentUniqueness(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Insert(&Agent{ID: string(rune('a' + i%26))})
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Len(), 26)
}

func TestPickByCountriesMiss(t *testing.T) {
	r := New()
	r.Insert(&Agent{ID: "jp0000000000a", CountryCode: "JP"})
	_, err := r.PickByCountries(map[string]struct{}{"DE": {}})
	require.Error(t, err)
}

// TestPickByCountriesFairness covers the §8.5/E2E-scenario-2 property:
// over many repeated picks across two online agents, both are chosen
// with no starvation.
func TestPickByCountriesFairness(t *testing.T) {
	r := New()
	r.Insert(&Agent{ID: "jp0000000000a", CountryCode: "JP"})
	r.Insert(&Agent{ID: "us0000000000a", CountryCode: "US"})

	counts := map[string]int{}
	codes := map[string]struct{}{"JP": {}, "US": {}}
	const n = 2000
	for i := 0; i < n; i++ {
		a, err := r.PickByCountries(codes)
		require.NoError(t, err)
		counts[a.ID]++
	}

	for id, c := range counts {
		assert.Greaterf(t, c, n/10, "agent %s starved: %d/%d picks", id, c, n)
	}
}

func TestPickByCountriesResamples(t *testing.T) {
	r := New()
	r.Insert(&Agent{ID: "jp0000000000a", CountryCode: "JP"})
	codes := map[string]struct{}{"JP": {}}

	a, err := r.PickByCountries(codes)
	require.NoError(t, err)
	assert.Equal(t, "jp0000000000a", a.ID)

	r.Remove("jp0000000000a")
	_, err = r.PickByCountries(codes)
	assert.Error(t, err, "removed agent must not be selectable, proving no caching of the candidate set")
}
