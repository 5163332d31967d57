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

// Package tokengate implements the token gate: a pure predicate
// capability the core consumes to validate a SOCKS5 password against the
// external token store, with an optional short-TTL cache in front of it.
//
// The "core depends on an injected capability, not a concrete
// implementation" shape mirrors go-nano's rpcHandler func(...) and
// session/lifetime.go's LifetimeHandler callback registration: Chilsonite
// never reaches into a database itself, it calls whatever Validator it
// was constructed with.
package tokengate

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/chilsonite/chilsonite/internal/chilerr"
)

// Validator is the single capability the core requires:
// validate(token) -> Option<user_id>.
type Validator interface {
	Validate(ctx context.Context, token string) (userID string, ok bool, err error)
}

// HTTPValidator calls the external token store's HTTP interface:
// validate(token) -> {user_id} | NotFound | Expired.
type HTTPValidator struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPValidator returns an HTTPValidator with a sane default client
// timeout; external-collaborator latency must never block the SOCKS5
// handshake deadline indefinitely.
func NewHTTPValidator(baseURL string) *HTTPValidator {
	return &HTTPValidator{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type validateResponse struct {
	UserID string `json:"user_id"`
}

// Validate implements Validator.
func (v *HTTPValidator) Validate(ctx context.Context, token string) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.BaseURL+"/validate", nil)
	if err != nil {
		return "", false, chilerr.Wrap(chilerr.Transient, err, "build token validation request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.Client.Do(req)
	if err != nil {
		return "", false, chilerr.Wrap(chilerr.Transient, err, "call token store")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body validateResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", false, chilerr.Wrap(chilerr.Transient, err, "decode token store response")
		}
		return body.UserID, true, nil
	case http.StatusNotFound, http.StatusGone:
		return "", false, nil
	default:
		return "", false, chilerr.New(chilerr.Transient, "token store returned unexpected status")
	}
}

// CachingValidator decorates a Validator with a short-TTL cache (e.g.
// 30s); callers may also pass the inner Validator through unwrapped.
type CachingValidator struct {
	next  Validator
	cache *cache.Cache
}

type cachedResult struct {
	userID string
	ok     bool
}

// NewCachingValidator wraps next with a cache of the given TTL.
func NewCachingValidator(next Validator, ttl time.Duration) *CachingValidator {
	return &CachingValidator{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Validate implements Validator, consulting the cache before the wrapped
// Validator.
func (c *CachingValidator) Validate(ctx context.Context, token string) (string, bool, error) {
	if v, found := c.cache.Get(token); found {
		r := v.(cachedResult)
		return r.userID, r.ok, nil
	}

	userID, ok, err := c.next.Validate(ctx, token)
	if err != nil {
		return "", false, err
	}
	c.cache.SetDefault(token, cachedResult{userID: userID, ok: ok})
	return userID, ok, nil
}
