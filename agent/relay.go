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
	"io"

	"github.com/chilsonite/chilsonite/internal/log"
	"github.com/chilsonite/chilsonite/protocol"
)

// startRelay launches the two byte pumps for a dialed session: local->
// server (reads the dialed socket, frames Data messages upstream) and
// server->local (drains the session's inbound channel into the dialed
// socket).
func startRelay(s *session) {
	go relayLocalToServer(s)
	go relayServerToLocal(s)
}

func relayLocalToServer(s *session) {
	buf := make([]byte, protocol.ChunkSize)
	for {
		n, err := s.Conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if sendErr := s.link.Send(protocol.Data(s.ID, s.nextSeq(), chunk)); sendErr != nil {
				s.teardown()
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				s.halfCloseFromLocal()
			} else {
				log.Warnf("session %s: outbound read error: %v", s.ID, err)
				_ = s.link.sendClose(s.ID, "outbound read error")
				s.teardown()
			}
			return
		}
	}
}

func relayServerToLocal(s *session) {
	for chunk := range s.inbound {
		if _, err := s.Conn.Write(chunk); err != nil {
			log.Warnf("session %s: outbound write error: %v", s.ID, err)
			_ = s.link.sendClose(s.ID, "outbound write error")
			s.teardown()
			return
		}
	}
}
