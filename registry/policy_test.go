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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicyByID(t *testing.T) {
	p, err := ParsePolicy("agent_abc0123456789")
	require.NoError(t, err)
	assert.True(t, p.IsByID())
	assert.Equal(t, "abc0123456789", p.AgentID)
}

func TestParsePolicyByCountries(t *testing.T) {
	p, err := ParsePolicy("country_jpus")
	require.NoError(t, err)
	assert.False(t, p.IsByID())
	_, hasJP := p.Countries["JP"]
	_, hasUS := p.Countries["US"]
	assert.True(t, hasJP)
	assert.True(t, hasUS)
	assert.Len(t, p.Countries, 2)
}

func TestParsePolicyRejectsOddLength(t *testing.T) {
	_, err := ParsePolicy("country_jpu")
	assert.Error(t, err)
}

func TestParsePolicyRejectsNonLetters(t *testing.T) {
	_, err := ParsePolicy("country_j1")
	assert.Error(t, err)
}

func TestParsePolicyRejectsUnknownGrammar(t *testing.T) {
	_, err := ParsePolicy("bogus_whatever")
	assert.Error(t, err)
}

func TestParsePolicyEmptyAgentID(t *testing.T) {
	_, err := ParsePolicy("agent_")
	assert.Error(t, err)
}
