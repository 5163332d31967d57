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

// Package registry implements the Agent registry: the online set of
// Agents, a secondary index by country code, and the selection policies a
// SOCKS5 session picks an Agent with.
//
// The shape is lifted from go-nano's Node (cluster/node.go): a
// sync.RWMutex-guarded map plus storeSession/removeSession/findSession,
// and LocalHandler's remoteServices map[string][]*MemberInfo secondary
// index (cluster/handler.go) — here the secondary index is keyed by
// country code instead of service name.
package registry

import (
	"math/rand"
	"sync"
	"time"

	"github.com/chilsonite/chilsonite/internal/chilerr"
)

// Agent is the registry's record for one online Agent.
type Agent struct {
	ID          string
	CountryCode string
	PublicIP    string
	OSName      string
	AttachedAt  time.Time
}

// Registry is the concurrent agent_id -> Agent map plus a country_code
// secondary index. Liveness derives purely from presence in this map:
// there is no separate heartbeat table, so the registry is the single
// source of truth for which Agents are online.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*Agent
	byCountry map[string]map[string]struct{} // country -> set of agent IDs
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byID:      make(map[string]*Agent),
		byCountry: make(map[string]map[string]struct{}),
	}
}

// Insert adds a newly-registered Agent. Caller guarantees ID uniqueness;
// Insert overwrites any pre-existing entry with the same ID, which can
// only happen if a stale Remove was missed.
func (r *Registry) Insert(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[a.ID] = a
	set, ok := r.byCountry[a.CountryCode]
	if !ok {
		set = make(map[string]struct{})
		r.byCountry[a.CountryCode] = set
	}
	set[a.ID] = struct{}{}
}

// Remove drops an Agent from the registry, cascading from link
// destruction.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if set, ok := r.byCountry[a.CountryCode]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byCountry, a.CountryCode)
		}
	}
}

// GetByID is an exact match on the full agent ID; no prefix matching.
func (r *Registry) GetByID(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// PickByCountries uniformly selects one currently-online agent whose
// country code is in codes, re-sampling the live set on every call (spec
// forbids caching the candidate list). Returns PolicyMiss if no agent
// matches.
func (r *Registry) PickByCountries(codes map[string]struct{}) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*Agent
	for cc := range codes {
		for id := range r.byCountry[cc] {
			candidates = append(candidates, r.byID[id])
		}
	}
	if len(candidates) == 0 {
		return nil, chilerr.New(chilerr.PolicyMiss, "no online agent matches requested country set")
	}
	return candidates[rand.Intn(len(candidates))], nil
}

// Snapshot returns the current online agents, for introspection/tests.
func (r *Registry) Snapshot() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Agent, 0, len(r.byID))
	for _, a := range r.byID {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// Len reports the number of currently-online agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
