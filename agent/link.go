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

// Package agent implements the Agent side of Chilsonite: a single
// persistent WebSocket to one CServer, the Connect dialer, and the
// reconnect loop.
//
// link mirrors server.Link's shape (single writer goroutine draining a
// buffered send channel, single dispatch goroutine owning the session
// table) but plays the symmetric role: it dials outbound TCP sockets on
// Connect instead of accepting SOCKS5 clients.
package agent

import (
	"net"
	"strconv"
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
	linkSendBacklog = 256
	pingInterval    = 10 * time.Second
	pongDeadline    = 30 * time.Second
)

// link owns the one WebSocket this Agent process holds open to CServer,
// plus every outbound session dialed on its behalf.
type link struct {
	agentID        string
	conn           *websocket.Conn
	connectTimeout time.Duration

	send chan *protocol.Envelope
	die  chan struct{}

	mu       sync.Mutex
	sessions map[uuid.UUID]*session

	lastPongUnix int64
	closeOnce    sync.Once
}

func newLink(agentID string, conn *websocket.Conn, connectTimeout time.Duration) *link {
	return &link{
		agentID:        agentID,
		conn:           conn,
		connectTimeout: connectTimeout,
		send:           make(chan *protocol.Envelope, linkSendBacklog),
		die:            make(chan struct{}),
		sessions:       make(map[uuid.UUID]*session),
		lastPongUnix:   time.Now().Unix(),
	}
}

func (l *link) Send(e *protocol.Envelope) error {
	select {
	case l.send <- e:
		return nil
	case <-l.die:
		return chilerr.New(chilerr.LinkLost, "link closed")
	}
}

func (l *link) sendCloseWrite(sid uuid.UUID) error {
	return l.Send(protocol.CloseWrite(sid))
}

func (l *link) sendClose(sid uuid.UUID, reason string) error {
	return l.Send(protocol.Close(sid, reason))
}

// serve runs the link until it dies (read/write failure, pong timeout,
// or an explicit stop), blocking the caller. Grounded in go-nano
// cluster/agent.go's write()-goroutine-plus-ticker shape, reused here for
// the Agent's own outbound connection rather than a CServer-accepted one.
func (l *link) serve() {
	go l.writeLoop()
	l.readLoop()
}

func (l *link) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer l.teardown("write loop exit")

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(-pongDeadline).Unix()
			if atomic.LoadInt64(&l.lastPongUnix) < deadline {
				log.Warnf("link: pong deadline exceeded, closing")
				return
			}
			if err := l.conn.WriteJSON(protocol.Ping()); err != nil {
				log.Warnf("link: ping write failed: %v", err)
				return
			}

		case e, ok := <-l.send:
			if !ok {
				return
			}
			if err := l.conn.WriteJSON(e); err != nil {
				log.Warnf("link: write failed: %v", err)
				return
			}

		case <-l.die:
			return
		}
	}
}

func (l *link) readLoop() {
	defer l.teardown("read loop exit")

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			log.Warnf("link: read failed: %v", err)
			return
		}

		e, err := protocol.Decode(data)
		if err != nil {
			log.Warnf("link: %v", err)
			continue
		}

		l.dispatch(e)
	}
}

func (l *link) dispatch(e *protocol.Envelope) {
	switch e.Type {
	case protocol.TypeConnect:
		go l.handleConnect(e.SessionID, e.Host, e.Port)

	case protocol.TypeData:
		s, ok := l.getSession(e.SessionID)
		if !ok {
			_ = l.sendClose(e.SessionID, "no-session")
			return
		}
		// deliverData runs on the read loop itself, so Data frames reach
		// s.inbound in arrival order. When the session's bounded inbound
		// queue is full it blocks this loop until the dialed socket's
		// write pump drains it or the session is torn down.
		s.deliverData(e.Data)

	case protocol.TypeCloseWrite:
		if s, ok := l.getSession(e.SessionID); ok {
			s.deliverCloseWrite()
		}

	case protocol.TypeClose:
		if s, ok := l.getSession(e.SessionID); ok {
			s.deliverClose()
		}

	case protocol.TypePong:
		atomic.StoreInt64(&l.lastPongUnix, time.Now().Unix())

	case protocol.TypePing:
		_ = l.Send(protocol.Pong())

	default:
		log.Warnf("link: unexpected frame type %q on established link", e.Type)
	}
}

// handleConnect dials with the configured timeout, replies ConnectResult,
// and on success starts the relay pumps for the new session.
func (l *link) handleConnect(sid uuid.UUID, host string, port uint16) {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	conn, err := net.DialTimeout("tcp", addr, l.connectTimeout)
	if err != nil {
		_ = l.Send(protocol.ConnectResultErr(sid, err.Error()))
		return
	}

	s := newSession(sid, conn, l)
	l.registerSession(s)

	if err := l.Send(protocol.ConnectResultOK(sid, conn.LocalAddr().String())); err != nil {
		s.teardown()
		return
	}

	startRelay(s)
}

func (l *link) registerSession(s *session) {
	l.mu.Lock()
	l.sessions[s.ID] = s
	l.mu.Unlock()
}

func (l *link) removeSession(id uuid.UUID) {
	l.mu.Lock()
	delete(l.sessions, id)
	l.mu.Unlock()
}

func (l *link) getSession(id uuid.UUID) (*session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[id]
	return s, ok
}

// teardown aborts every owned session on link loss and closes the
// socket. Safe to call more than once.
func (l *link) teardown(reason string) {
	l.closeOnce.Do(func() {
		close(l.die)

		l.mu.Lock()
		sessions := make([]*session, 0, len(l.sessions))
		for _, s := range l.sessions {
			sessions = append(sessions, s)
		}
		l.mu.Unlock()

		for _, s := range sessions {
			s.teardown()
		}

		_ = l.conn.Close()
		log.Printf("link to cserver closed: %s", reason)
	})
}
