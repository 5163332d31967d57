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
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// sessionState mirrors server.sessionState but from the Agent's side of
// the link: "server" below always means the CServer side of the tunnel,
// "local" and "agent" mean this process's own outbound socket.
type sessionState int32

const (
	sessionOpen sessionState = iota
	sessionServerHalf // CServer sent CloseWrite: server->agent direction closed
	sessionLocalHalf  // our outbound socket hit EOF: agent->server direction closed
	sessionClosed
)

// session is the Agent-side half of one Chilsonite virtual session: one
// outbound TCP socket dialed on behalf of a Connect frame, relayed
// to/from the CServer link.
type session struct {
	ID     uuid.UUID
	Conn   net.Conn
	link   *link

	stateMu sync.Mutex
	state   sessionState

	inbound   chan []byte // server->agent Data, drained into Conn
	die       chan struct{}
	closeOnce sync.Once

	seq uint64 // atomic, agent->server Data seq counter
}

func newSession(id uuid.UUID, conn net.Conn, l *link) *session {
	return &session{
		ID:      id,
		Conn:    conn,
		link:    l,
		inbound: make(chan []byte, sessionBufferCap),
		die:     make(chan struct{}),
	}
}

// sessionBufferCap bounds the server->agent in-flight queue, mirroring
// server.sessionBufferCap's ~1MiB backpressure budget.
const sessionBufferCap = 32

func (s *session) nextSeq() uint64 {
	return atomic.AddUint64(&s.seq, 1)
}

// deliverData is invoked by the link's dispatch loop on an incoming Data
// frame for this session.
func (s *session) deliverData(b []byte) {
	s.stateMu.Lock()
	blocked := s.state == sessionServerHalf || s.state == sessionClosed
	s.stateMu.Unlock()
	if blocked {
		return
	}
	select {
	case s.inbound <- b:
	case <-s.die:
	}
}

// deliverCloseWrite marks the server->agent direction closed: CServer
// will send no more Data for this session. Shuts down the dialed
// socket's write side if supported, otherwise defers to full close.
func (s *session) deliverCloseWrite() {
	full := false
	s.stateMu.Lock()
	switch s.state {
	case sessionOpen:
		s.state = sessionServerHalf
	case sessionLocalHalf:
		full = true
	default:
		s.stateMu.Unlock()
		return
	}
	s.stateMu.Unlock()

	if full {
		s.teardown()
		return
	}
	if hc, ok := s.Conn.(interface{ CloseWrite() error }); ok {
		_ = hc.CloseWrite()
	} else {
		s.teardown()
	}
	close(s.inbound)
}

// deliverClose fully tears the session down on a received Close frame.
func (s *session) deliverClose() {
	s.teardown()
}

// halfCloseFromLocal is called by the reader pumping bytes off Conn on
// EOF: sends CloseWrite upstream and transitions state.
func (s *session) halfCloseFromLocal() {
	full := false
	s.stateMu.Lock()
	switch s.state {
	case sessionOpen:
		s.state = sessionLocalHalf
	case sessionServerHalf:
		full = true
	default:
		s.stateMu.Unlock()
		return
	}
	s.stateMu.Unlock()

	if full {
		s.teardown()
		return
	}
	_ = s.link.sendCloseWrite(s.ID)
}

func (s *session) teardown() {
	s.closeOnce.Do(func() {
		s.stateMu.Lock()
		s.state = sessionClosed
		s.stateMu.Unlock()
		close(s.die)
		s.Conn.Close()
		s.link.removeSession(s.ID)
	})
}
