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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chilsonite/chilsonite/protocol"
)

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

func newTestLink() *link {
	return &link{
		sessions: make(map[uuid.UUID]*session),
		send:     make(chan *protocol.Envelope, 16),
		die:      make(chan struct{}),
	}
}

func newTestSession() (*session, *fakeConn) {
	conn := &fakeConn{}
	l := newTestLink()
	s := newSession(uuid.Must(uuid.NewRandom()), conn, l)
	l.registerSession(s)
	return s, conn
}

func TestSessionDeliverDataAndCloseWrite(t *testing.T) {
	s, _ := newTestSession()

	s.deliverData([]byte("payload"))
	select {
	case b := <-s.inbound:
		assert.Equal(t, "payload", string(b))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered data")
	}

	s.deliverCloseWrite()
	_, ok := <-s.inbound
	assert.False(t, ok, "inbound channel must be closed after deliverCloseWrite")
}

func TestSessionSimultaneousHalfCloseReachesFullTeardown(t *testing.T) {
	s, conn := newTestSession()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.halfCloseFromLocal()
	}()
	go func() {
		defer wg.Done()
		s.deliverCloseWrite()
	}()
	wg.Wait()

	require.Eventually(t, conn.Closed, time.Second, time.Millisecond)
}

func TestDeliverCloseWriteHalfClosesDialedSocket(t *testing.T) {
	s, conn := newTestSession()

	s.deliverCloseWrite()

	assert.True(t, conn.closeWrote, "deliverCloseWrite must half-close the dialed socket's write side")
	assert.Equal(t, sessionServerHalf, s.state)
}

func TestSessionTeardownIdempotent(t *testing.T) {
	s, conn := newTestSession()
	assert.NotPanics(t, func() {
		s.teardown()
		s.teardown()
	})
	assert.True(t, conn.Closed())
}
