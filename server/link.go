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

// Package server implements the CServer side of Chilsonite: the
// WebSocket Agent link (C2), the SOCKS5 front-end (C5), and the session
// relay (C6).
//
// Link is modeled directly on go-nano's agent struct in cluster/agent.go:
// a gorilla/websocket connection, a buffered outbound channel drained by a
// single writer goroutine (so only one goroutine ever calls
// conn.WriteJSON, which gorilla/websocket requires), an atomic liveness
// timestamp checked against a ticker, and a "die" channel broadcasting
// teardown to every dependent goroutine. Unlike go-nano's agent (which
// owns exactly one client session), a Link multiplexes many Sessions
// behind one WebSocket.
package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/chilsonite/chilsonite/internal/chilerr"
	"github.com/chilsonite/chilsonite/internal/log"
	"github.com/chilsonite/chilsonite/protocol"
)

const (
	linkSendBacklog     = 256
	defaultPingInterval = 10 * time.Second
	pongDeadline        = 30 * time.Second
)

// Link owns one persistent WebSocket to one Agent. All live sessions for
// the Agent are reachable only through this Link; Link destruction
// cascades to every owned Session.
type Link struct {
	AgentID string

	conn         *websocket.Conn
	server       *Server
	pingInterval time.Duration

	send chan *protocol.Envelope
	die  chan struct{}

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	pending  map[uuid.UUID]chan *protocol.Envelope // one-shot ConnectResult rendezvous, keyed by session_id

	lastPongUnix int64 // atomic
	closeOnce    sync.Once
}

func newLink(agentID string, conn *websocket.Conn, srv *Server) *Link {
	return &Link{
		AgentID:      agentID,
		conn:         conn,
		server:       srv,
		pingInterval: srv.pingInterval,
		send:         make(chan *protocol.Envelope, linkSendBacklog),
		die:          make(chan struct{}),
		sessions:     make(map[uuid.UUID]*Session),
		pending:      make(map[uuid.UUID]chan *protocol.Envelope),
		lastPongUnix: time.Now().Unix(),
	}
}

// Send enqueues an Envelope to the single writer goroutine. It blocks
// until there is room in the send backlog or the link dies: a sustained
// slow Agent eventually blocks whichever pump is producing Data frames
// for it.
func (l *Link) Send(e *protocol.Envelope) error {
	select {
	case l.send <- e:
		return nil
	case <-l.die:
		return chilerr.New(chilerr.LinkLost, "link closed")
	}
}

func (l *Link) sendCloseWrite(sid uuid.UUID) error {
	return l.Send(protocol.CloseWrite(sid))
}

func (l *Link) sendClose(sid uuid.UUID, reason string) error {
	return l.Send(protocol.Close(sid, reason))
}

// writeLoop is the single goroutine allowed to call conn.WriteJSON,
// matching go-nano's agent.write() shape: drain the outbound channel,
// and on a fixed tick send a liveness Ping and check the Pong deadline.
func (l *Link) writeLoop() {
	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()
	defer l.teardown("write loop exit")

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(-pongDeadline).Unix()
			if atomic.LoadInt64(&l.lastPongUnix) < deadline {
				log.Warnf("agent %s: pong deadline exceeded, closing link", l.AgentID)
				return
			}
			if err := l.conn.WriteJSON(protocol.Ping()); err != nil {
				log.Warnf("agent %s: ping write failed: %v", l.AgentID, err)
				return
			}

		case e, ok := <-l.send:
			if !ok {
				return
			}
			if err := l.conn.WriteJSON(e); err != nil {
				log.Warnf("agent %s: write failed: %v", l.AgentID, err)
				return
			}

		case <-l.die:
			return
		}
	}
}

// readLoop receives frames and demultiplexes them to sessions. It is the
// link's single dispatcher task: all session-table mutation driven by
// received frames happens here, sequentially, so no lock is needed to
// serialize two frames against each other.
func (l *Link) readLoop() {
	defer l.teardown("read loop exit")

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			log.Warnf("agent %s: read failed: %v", l.AgentID, err)
			return
		}

		e, err := protocol.Decode(data)
		if err != nil {
			log.Warnf("agent %s: %v", l.AgentID, err)
			continue
		}

		l.dispatch(e)
	}
}

func (l *Link) dispatch(e *protocol.Envelope) {
	switch e.Type {
	case protocol.TypeData:
		s, ok := l.getSession(e.SessionID)
		if !ok {
			_ = l.sendClose(e.SessionID, "no-session")
			return
		}
		s.addAgentToClient(len(e.Data))
		// deliverData runs on the read loop itself, so Data frames reach
		// s.inbound in arrival order. When the session's bounded inbound
		// queue is full it blocks this loop until the client-write pump
		// drains it or the session is torn down.
		s.deliverData(e.Data)

	case protocol.TypeCloseWrite:
		if s, ok := l.getSession(e.SessionID); ok {
			s.deliverCloseWrite()
		}

	case protocol.TypeClose:
		if s, ok := l.getSession(e.SessionID); ok {
			s.deliverClose()
		}

	case protocol.TypeConnectResult:
		l.completePending(e)

	case protocol.TypePong:
		atomic.StoreInt64(&l.lastPongUnix, time.Now().Unix())

	case protocol.TypePing:
		_ = l.Send(protocol.Pong())

	default:
		log.Warnf("agent %s: unexpected frame type %q on established link", l.AgentID, e.Type)
	}
}

func (l *Link) registerSession(s *Session) {
	l.mu.Lock()
	l.sessions[s.ID] = s
	l.mu.Unlock()
}

func (l *Link) removeSession(id uuid.UUID) {
	l.mu.Lock()
	delete(l.sessions, id)
	l.mu.Unlock()
}

func (l *Link) getSession(id uuid.UUID) (*Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	return s, ok
}

// awaitConnectResult registers a one-shot rendezvous slot for sid and
// blocks until a matching ConnectResult arrives, the timeout elapses, or
// the link dies. The slot is a single-shot channel keyed by session_id,
// scoped to this Link rather than a global map.
func (l *Link) awaitConnectResult(sid uuid.UUID, timeout time.Duration) (*protocol.Envelope, error) {
	ch := make(chan *protocol.Envelope, 1)
	l.mu.Lock()
	l.pending[sid] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, sid)
		l.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e := <-ch:
		return e, nil
	case <-timer.C:
		return nil, chilerr.New(chilerr.AgentDialFailure, "connect timed out waiting for agent")
	case <-l.die:
		return nil, chilerr.New(chilerr.LinkLost, "link closed while awaiting connect result")
	}
}

func (l *Link) completePending(e *protocol.Envelope) {
	l.mu.Lock()
	ch, ok := l.pending[e.SessionID]
	l.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- e:
	default:
	}
}

// teardown destroys the link: it removes the Agent from the registry,
// aborts every owned session, and closes the underlying socket. Safe to
// call more than once (both the read and write loops call it on exit).
func (l *Link) teardown(reason string) {
	l.closeOnce.Do(func() {
		close(l.die)

		l.server.registry.Remove(l.AgentID)
		l.server.removeLink(l.AgentID)

		l.mu.Lock()
		sessions := make([]*Session, 0, len(l.sessions))
		for _, s := range l.sessions {
			sessions = append(sessions, s)
		}
		l.mu.Unlock()

		for _, s := range sessions {
			s.teardown(true)
		}

		_ = l.conn.Close()
		log.Printf("agent %s link closed: %s", l.AgentID, reason)
	})
}
