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

package server

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// sessionState is the relay's half-close state machine: either side may
// close its write direction independently before the session fully
// tears down.
type sessionState int32

const (
	sessionOpen sessionState = iota
	sessionClientHalf                 // client sent CloseWrite: client->agent direction closed
	sessionAgentHalf                  // agent sent CloseWrite: agent->client direction closed
	sessionClosed
)

// sessionBufferCap bounds the agent->client in-flight channel to roughly
// a 1MiB backpressure budget, sized in protocol.ChunkSize units rather
// than bytes, which is simpler to enforce with a Go channel.
const sessionBufferCap = 32 // * protocol.ChunkSize (32KiB) ~= 1MiB

// Session is the virtual bidirectional byte stream bound to one client
// TCP socket and relayed through one Link to one Agent-side outbound
// socket.
type Session struct {
	ID      uuid.UUID
	AgentID string
	Client  net.Conn
	link    *Link

	stateMu sync.Mutex // guards state transitions; halfCloseFromClient (client-read
	state   sessionState // goroutine) and deliverCloseWrite/deliverClose (link's single
	aborted int32        // demux goroutine) run concurrently and must linearize here

	bytesClientToAgent uint64 // atomic
	bytesAgentToClient uint64 // atomic

	inbound chan []byte // agent->client data, drained by relayAgentToClient
	die     chan struct{}
	closeOnce sync.Once

	seq uint64 // atomic, client->agent Data seq counter
}

func newSession(id uuid.UUID, agentID string, client net.Conn, link *Link) *Session {
	return &Session{
		ID:      id,
		AgentID: agentID,
		Client:  client,
		link:    link,
		inbound: make(chan []byte, sessionBufferCap),
		die:     make(chan struct{}),
	}
}

func (s *Session) State() sessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Aborted reports whether the session was torn down by link loss or error
// rather than a clean double half-close.
func (s *Session) Aborted() bool {
	return atomic.LoadInt32(&s.aborted) == 1
}

func (s *Session) addClientToAgent(n int) {
	atomic.AddUint64(&s.bytesClientToAgent, uint64(n))
}

func (s *Session) addAgentToClient(n int) {
	atomic.AddUint64(&s.bytesAgentToClient, uint64(n))
}

// BytesClientToAgent / BytesAgentToClient expose the running byte
// counters for this session, used by byte-preservation tests.
func (s *Session) BytesClientToAgent() uint64 { return atomic.LoadUint64(&s.bytesClientToAgent) }
func (s *Session) BytesAgentToClient() uint64 { return atomic.LoadUint64(&s.bytesAgentToClient) }

func (s *Session) nextSeq() uint64 {
	return atomic.AddUint64(&s.seq, 1)
}

// deliverData is called by the Link's demultiplex loop when a Data frame
// for this session arrives. It blocks (bounded by sessionBufferCap) to
// apply backpressure rather than growing an unbounded queue.
func (s *Session) deliverData(b []byte) {
	s.stateMu.Lock()
	blocked := s.state == sessionAgentHalf || s.state == sessionClosed
	s.stateMu.Unlock()
	if blocked {
		// Agent already declared it is done sending, or the session is
		// torn down; any further Data frame is a protocol violation we
		// drop rather than panic on a closed channel.
		return
	}
	select {
	case s.inbound <- b:
	case <-s.die:
	}
}

// deliverCloseWrite marks the agent->client direction closed: the agent
// will send no more data. Shuts down the client socket's write side if
// supported, otherwise defers to full close.
func (s *Session) deliverCloseWrite() {
	full := false
	s.stateMu.Lock()
	switch s.state {
	case sessionOpen:
		s.state = sessionAgentHalf
	case sessionClientHalf:
		full = true
	default:
		s.stateMu.Unlock()
		return
	}
	s.stateMu.Unlock()

	if full {
		s.teardown(false)
		return
	}
	if hc, ok := s.Client.(interface{ CloseWrite() error }); ok {
		_ = hc.CloseWrite()
	} else {
		s.teardown(false)
	}
	close(s.inbound)
}

// deliverClose fully tears the session down immediately (peer Close or
// error), marking it Aborted.
func (s *Session) deliverClose() {
	s.teardown(true)
}

// teardown removes the session from its link's table and closes the
// client socket. It sends no Close frame to the Agent; the relay pumps
// send one themselves before tearing down on a client read or write
// error. Safe to call more than once.
func (s *Session) teardown(aborted bool) {
	s.closeOnce.Do(func() {
		if aborted {
			atomic.StoreInt32(&s.aborted, 1)
		}
		s.stateMu.Lock()
		s.state = sessionClosed
		s.stateMu.Unlock()
		close(s.die)
		s.Client.Close()
		s.link.removeSession(s.ID)
	})
}

// halfCloseFromClient is called by the client->agent pump on client EOF:
// sends CloseWrite to the agent and transitions the session's half-close
// state.
func (s *Session) halfCloseFromClient() {
	full := false
	s.stateMu.Lock()
	switch s.state {
	case sessionOpen:
		s.state = sessionClientHalf
	case sessionAgentHalf:
		full = true
	default:
		s.stateMu.Unlock()
		return
	}
	s.stateMu.Unlock()

	if full {
		s.teardown(false)
		return
	}
	_ = s.link.sendCloseWrite(s.ID)
}
