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
	"strings"

	"github.com/chilsonite/chilsonite/internal/chilerr"
)

// Policy is a SOCKS5 session's agent-selection policy: either a specific
// agent ID or a set of acceptable country codes.
type Policy struct {
	AgentID   string              // set when kind is ById
	Countries map[string]struct{} // set when kind is ByCountries
}

// ByID returns an agent-ID selection policy.
func ByID(id string) Policy { return Policy{AgentID: id} }

// ByCountries returns a country-set selection policy.
func ByCountries(codes map[string]struct{}) Policy { return Policy{Countries: codes} }

// IsByID reports whether this policy selects a single named agent.
func (p Policy) IsByID() bool { return p.AgentID != "" }

// ParsePolicy derives a selection policy from the SOCKS5 username:
//
//	agent_<id>           -> ById(id)
//	country_<CC>(<CC>)*  -> ByCountries({CC, ...}), uppercased
//
// Any other shape, or a malformed country_ suffix (odd length or
// non-letter), is an AuthFailure: reject rather than attempt a
// best-effort parse.
func ParsePolicy(username string) (Policy, error) {
	switch {
	case strings.HasPrefix(username, "agent_"):
		id := strings.TrimPrefix(username, "agent_")
		if id == "" {
			return Policy{}, chilerr.New(chilerr.AuthFailure, "empty agent id in username")
		}
		return ByID(id), nil

	case strings.HasPrefix(username, "country_"):
		codes := strings.ToUpper(strings.TrimPrefix(username, "country_"))
		if codes == "" || len(codes)%2 != 0 {
			return Policy{}, chilerr.New(chilerr.AuthFailure, "malformed country code list in username")
		}
		set := make(map[string]struct{}, len(codes)/2)
		for i := 0; i < len(codes); i += 2 {
			cc := codes[i : i+2]
			if !isAlpha(cc[0]) || !isAlpha(cc[1]) {
				return Policy{}, chilerr.New(chilerr.AuthFailure, "non-letter country code in username")
			}
			set[cc] = struct{}{}
		}
		return ByCountries(set), nil

	default:
		return Policy{}, chilerr.New(chilerr.AuthFailure, "unrecognized username grammar")
	}
}

func isAlpha(b byte) bool {
	return b >= 'A' && b <= 'Z'
}
