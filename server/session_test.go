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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilsonite/chilsonite/protocol"
)

// fakeConn is a minimal net.Conn double that records Close/CloseWrite
// calls without opening a real socket, used to exercise the Session
// state machine in isolation from the network.
type fakeConn struct {
	net.Conn
	mu         sync.Mutex
	closed     bool
	closeWrote bool
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) CloseWrite() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeWrote = true
	return nil
}

func (f *fakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestLink() *Link {
	return &Link{
		AgentID:  "test-agent",
		sessions: make(map[uuid.UUID]*Session),
		pending:  make(map[uuid.UUID]chan *protocol.Envelope),
		send:     make(chan *protocol.Envelope, 16),
		die:      make(chan struct{}),
	}
}

func newTestSession() (*Session, *fakeConn) {
	conn := &fakeConn{}
	sid := uuid.Must(uuid.NewRandom())
	link := newTestLink()
	s := newSession(sid, link.AgentID, conn, link)
	link.registerSession(s)
	return s, conn
}

func TestSessionDataDeliveryAndByteCounters(t *testing.T) {
	s, _ := newTestSession()

	s.addAgentToClient(5)
	s.deliverData([]byte("hello"))

	select {
	case b := <-s.inbound:
		assert.Equal(t, "hello", string(b))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered data")
	}
	assert.Equal(t, uint64(5), s.BytesAgentToClient())
}

func TestSessionSimultaneousHalfCloseReachesFullTeardown(t *testing.T) {
	s, conn := newTestSession()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.halfCloseFromClient()
	}()
	go func() {
		defer wg.Done()
		s.deliverCloseWrite()
	}()
	wg.Wait()

	require.Eventually(t, conn.Closed, time.Second, time.Millisecond,
		"simultaneous half-close from both directions must reach full teardown")
	assert.Equal(t, sessionClosed, s.State())
}

func TestSessionDeliverDataAfterAgentHalfCloseIsDropped(t *testing.T) {
	s, _ := newTestSession()

	s.deliverCloseWrite() // agent declares done sending; closes s.inbound

	assert.NotPanics(t, func() {
		s.deliverData([]byte("late frame"))
	})
}

func TestSessionTeardownIsIdempotent(t *testing.T) {
	s, conn := newTestSession()

	assert.NotPanics(t, func() {
		s.teardown(true)
		s.teardown(true)
		s.teardown(false)
	})
	assert.True(t, conn.Closed())
	assert.True(t, s.Aborted())
}

func TestHalfCloseFromClientSendsCloseWriteUpstream(t *testing.T) {
	s, _ := newTestSession()
	s.halfCloseFromClient()
	assert.Equal(t, sessionClientHalf, s.State())

	select {
	case e := <-s.link.send:
		assert.Equal(t, protocol.TypeCloseWrite, e.Type)
		assert.Equal(t, s.ID, e.SessionID)
	default:
		t.Fatal("halfCloseFromClient queued no CloseWrite frame on the link")
	}
}

func TestDeliverCloseWriteHalfClosesClientSocket(t *testing.T) {
	s, conn := newTestSession()

	s.deliverCloseWrite()

	assert.True(t, conn.closeWrote, "deliverCloseWrite must half-close the client socket's write side")
	assert.Equal(t, sessionAgentHalf, s.State())
}
