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

package tokengate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPValidatorAccepts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user_id":"11111111-1111-1111-1111-111111111111"}`))
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL)
	userID, ok, err := v.Validate(context.Background(), "good-token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", userID)
}

func TestHTTPValidatorRejectsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL)
	_, ok, err := v.Validate(context.Background(), "unknown-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPValidatorRejectsExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL)
	_, ok, err := v.Validate(context.Background(), "expired-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPValidatorErrorsOnUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL)
	_, ok, err := v.Validate(context.Background(), "any-token")
	assert.Error(t, err)
	assert.False(t, ok)
}

type countingValidator struct {
	calls int
}

func (c *countingValidator) Validate(ctx context.Context, token string) (string, bool, error) {
	c.calls++
	return "user-1", true, nil
}

func TestCachingValidatorCachesWithinTTL(t *testing.T) {
	inner := &countingValidator{}
	cached := NewCachingValidator(inner, 100*time.Millisecond)

	for i := 0; i < 5; i++ {
		userID, ok, err := cached.Validate(context.Background(), "tok")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "user-1", userID)
	}

	assert.Equal(t, 1, inner.calls, "repeated validations within TTL must hit the cache, not the inner validator")
}
