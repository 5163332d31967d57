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

import (
	"context"
	"net/url"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/chilsonite/chilsonite/geoip"
	"github.com/chilsonite/chilsonite/internal/chilerr"
	"github.com/chilsonite/chilsonite/internal/log"
	"github.com/chilsonite/chilsonite/protocol"
)

const (
	defaultDialTimeout = 30 * time.Second
	defaultMaxBackoff  = 60 * time.Second
	registerTimeout    = 10 * time.Second
)

// Agent is one Chilsonite Agent process: it connects to a CServer,
// registers, and serves Connect/Data/CloseWrite/Close frames for as long
// as the link survives, reconnecting with backoff on loss.
type Agent struct {
	cserverURL string
	geoipURL   string
	osName     string

	dialTimeout time.Duration
	maxBackoff  time.Duration

	// agentID is the most recently assigned ID; forgotten and replaced on
	// every reconnect.
	agentID string
}

// New constructs an Agent that will dial cserverURL (e.g.
// "ws://127.0.0.1:3005").
func New(cserverURL string, opts ...Option) *Agent {
	a := &Agent{
		cserverURL:  cserverURL,
		osName:      runtime.GOOS,
		dialTimeout: defaultDialTimeout,
		maxBackoff:  defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run gathers metadata once, then connects and serves indefinitely,
// reconnecting with exponential backoff (1s, 2s, 4s, ..., capped at
// maxBackoff) on every link loss. It returns only when ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	publicIP, countryCode := a.gatherMetadata(ctx)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.MaxInterval = a.maxBackoff
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // retry indefinitely
	bctx := backoff.WithContext(bo, ctx)

	operation := func() error {
		err := a.connectAndServe(ctx, publicIP, countryCode)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		log.Warnf("agent: link attempt failed (%v), retrying in %s", err, wait)
	}

	err := backoff.RetryNotify(operation, bctx, notify)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (a *Agent) gatherMetadata(ctx context.Context) (publicIP, countryCode string) {
	if a.geoipURL == "" {
		return "", ""
	}
	client := geoip.NewClient(a.geoipURL)
	info, err := client.Lookup(ctx)
	if err != nil {
		log.Warnf("agent: geoip lookup failed, registering without location: %v", err)
		return "", ""
	}
	return info.IP, info.CountryCode
}

// connectAndServe performs one full connection lifecycle: dial, Register,
// await Registered, then serve until the link dies. A returned error is
// always retryable by the caller's backoff loop.
func (a *Agent) connectAndServe(ctx context.Context, publicIP, countryCode string) error {
	u, err := url.Parse(a.cserverURL)
	if err != nil {
		return chilerr.Wrap(chilerr.ConfigError, err, "parse cserver url")
	}

	dialer := websocket.Dialer{HandshakeTimeout: a.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return chilerr.Wrap(chilerr.LinkLost, err, "dial cserver")
	}

	if err := conn.WriteJSON(protocol.Register(countryCode, publicIP, a.osName)); err != nil {
		conn.Close()
		return chilerr.Wrap(chilerr.LinkLost, err, "send register frame")
	}

	_ = conn.SetReadDeadline(time.Now().Add(registerTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return chilerr.Wrap(chilerr.LinkLost, err, "read registered frame")
	}
	_ = conn.SetReadDeadline(time.Time{})

	e, err := protocol.Decode(data)
	if err != nil || e.Type != protocol.TypeRegistered {
		conn.Close()
		return chilerr.New(chilerr.ProtocolViolation, "expected registered frame from cserver")
	}

	a.agentID = e.AgentID
	log.Printf("agent: registered as %s with cserver %s", a.agentID, a.cserverURL)

	l := newLink(a.agentID, conn, a.dialTimeout)
	l.serve()

	// A fresh agent_id is assigned on every reconnect; the caller's
	// backoff loop will call connectAndServe again.
	a.agentID = ""
	return chilerr.New(chilerr.LinkLost, "link to cserver closed")
}
