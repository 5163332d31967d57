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
	"io"

	"github.com/chilsonite/chilsonite/internal/log"
	"github.com/chilsonite/chilsonite/protocol"
)

// startRelay launches the two byte pumps for a session: client->agent
// (reads the client socket, frames Data messages onto the link) and
// agent->client (drains the session's inbound channel,
// written to by the link's single demultiplex goroutine, into the client
// socket). Each pump is its own goroutine so a slow client cannot stall
// the other direction, mirroring go-nano's split between the read loop
// (cluster/handler.go handle()) and the dedicated write goroutine
// (cluster/agent.go write()) for one connection.
func startRelay(s *Session) {
	go relayClientToAgent(s)
	go relayAgentToClient(s)
}

func relayClientToAgent(s *Session) {
	buf := make([]byte, protocol.ChunkSize)
	for {
		n, err := s.Client.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.addClientToAgent(n)
			if sendErr := s.link.Send(protocol.Data(s.ID, s.nextSeq(), chunk)); sendErr != nil {
				s.teardown(true)
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				s.halfCloseFromClient()
			} else {
				log.Warnf("session %s: client read error: %v", s.ID, err)
				_ = s.link.sendClose(s.ID, "client read error")
				s.teardown(true)
			}
			return
		}
	}
}

func relayAgentToClient(s *Session) {
	for chunk := range s.inbound {
		if _, err := s.Client.Write(chunk); err != nil {
			log.Warnf("session %s: client write error: %v", s.ID, err)
			_ = s.link.sendClose(s.ID, "client write error")
			s.teardown(true)
			return
		}
	}
}
