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

// socks5.go implements the SOCKS5 front-end: greeting, username/password
// authentication, request parsing, agent selection, and session
// establishment. Uses the usual minimal hand-rolled SOCKS5 request parser
// shape (read fixed header, branch on ATYP, build "host:port"), adapted
// here to require USERNAME/PASSWORD auth and to dial out through an
// Agent link instead of a local net.Dial.
package server

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/chilsonite/chilsonite/internal/chilerr"
	"github.com/chilsonite/chilsonite/internal/log"
	"github.com/chilsonite/chilsonite/protocol"
	"github.com/chilsonite/chilsonite/registry"
)

const (
	socks5Version = 0x05

	methodUserPass       = 0x02
	methodNoneAcceptable = 0xFF

	authVersion = 0x01
	authSuccess = 0x00
	authFailure = 0x01

	cmdConnect = 0x01

	atypIPv4   = 0x01
	atypDomain = 0x03
	atypIPv6   = 0x04

	repSuccess             = 0x00
	repHostUnreachable     = 0x04
	repConnectionRefused   = 0x05
	repCommandNotSupported = 0x07
)

// handshakeTimeout bounds the full SOCKS5 negotiation: 10s overall
// between accept and reaching the OPEN state.
const handshakeTimeout = 10 * time.Second

func (s *Server) handleSocks5Conn(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("socks5: panic handling %s: %v", conn.RemoteAddr(), r)
			conn.Close()
		}
	}()

	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))

	if err := s.socks5Greet(conn); err != nil {
		log.Warnf("socks5 %s: greeting failed: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	policy, err := s.socks5Authenticate(conn)
	if err != nil {
		log.Warnf("socks5 %s: auth failed: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	host, port, err := s.socks5ReadRequest(conn)
	if err != nil {
		log.Warnf("socks5 %s: request failed: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	link, err := s.selectLink(policy)
	if err != nil {
		_ = writeSocks5Reply(conn, repHostUnreachable)
		conn.Close()
		return
	}

	session, err := s.connectSession(link, conn, host, port)
	if err != nil {
		_ = writeSocks5Reply(conn, repConnectionRefused)
		conn.Close()
		return
	}

	if err := writeSocks5Reply(conn, repSuccess); err != nil {
		session.teardown(true)
		return
	}

	// Relay runs indefinitely: clear the handshake deadline now that we
	// have reached OPEN.
	_ = conn.SetDeadline(time.Time{})
	startRelay(session)
}

func (s *Server) socks5Greet(conn net.Conn) error {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return chilerr.Wrap(chilerr.ProtocolViolation, err, "read greeting header")
	}
	if hdr[0] != socks5Version {
		return chilerr.New(chilerr.ProtocolViolation, "unsupported socks version")
	}

	methods := make([]byte, hdr[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return chilerr.Wrap(chilerr.ProtocolViolation, err, "read method list")
	}

	offered := false
	for _, m := range methods {
		if m == methodUserPass {
			offered = true
			break
		}
	}
	if !offered {
		conn.Write([]byte{socks5Version, methodNoneAcceptable})
		return chilerr.New(chilerr.ProtocolViolation, "client did not offer username/password auth")
	}

	_, err := conn.Write([]byte{socks5Version, methodUserPass})
	return err
}

func (s *Server) socks5Authenticate(conn net.Conn) (registry.Policy, error) {
	hdr := make([]byte, 2)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return registry.Policy{}, chilerr.Wrap(chilerr.ProtocolViolation, err, "read auth version/ulen")
	}
	if hdr[0] != authVersion {
		return registry.Policy{}, chilerr.New(chilerr.ProtocolViolation, "unsupported auth subnegotiation version")
	}

	uname := make([]byte, hdr[1])
	if _, err := io.ReadFull(conn, uname); err != nil {
		return registry.Policy{}, chilerr.Wrap(chilerr.ProtocolViolation, err, "read username")
	}

	plen := make([]byte, 1)
	if _, err := io.ReadFull(conn, plen); err != nil {
		return registry.Policy{}, chilerr.Wrap(chilerr.ProtocolViolation, err, "read password length")
	}
	passwd := make([]byte, plen[0])
	if _, err := io.ReadFull(conn, passwd); err != nil {
		return registry.Policy{}, chilerr.Wrap(chilerr.ProtocolViolation, err, "read password")
	}

	policy, err := registry.ParsePolicy(string(uname))
	if err != nil {
		conn.Write([]byte{authVersion, authFailure})
		return registry.Policy{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	_, ok, err := s.validator.Validate(ctx, string(passwd))
	if err != nil || !ok {
		conn.Write([]byte{authVersion, authFailure})
		return registry.Policy{}, chilerr.New(chilerr.AuthFailure, "token rejected")
	}

	if _, err := conn.Write([]byte{authVersion, authSuccess}); err != nil {
		return registry.Policy{}, chilerr.Wrap(chilerr.ProtocolViolation, err, "write auth success")
	}
	return policy, nil
}

func (s *Server) socks5ReadRequest(conn net.Conn) (string, uint16, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(conn, hdr); err != nil {
		return "", 0, chilerr.Wrap(chilerr.ProtocolViolation, err, "read request header")
	}
	if hdr[0] != socks5Version {
		return "", 0, chilerr.New(chilerr.ProtocolViolation, "unsupported socks version in request")
	}
	if hdr[1] != cmdConnect {
		writeSocks5Reply(conn, repCommandNotSupported)
		return "", 0, chilerr.New(chilerr.ProtocolViolation, "only CONNECT is supported")
	}

	var host string
	switch hdr[3] {
	case atypIPv4:
		ip := make([]byte, 4)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return "", 0, chilerr.Wrap(chilerr.ProtocolViolation, err, "read ipv4 address")
		}
		host = net.IP(ip).String()

	case atypDomain:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return "", 0, chilerr.Wrap(chilerr.ProtocolViolation, err, "read domain length")
		}
		domain := make([]byte, lenBuf[0])
		if _, err := io.ReadFull(conn, domain); err != nil {
			return "", 0, chilerr.Wrap(chilerr.ProtocolViolation, err, "read domain")
		}
		host = string(domain)

	case atypIPv6:
		ip := make([]byte, 16)
		if _, err := io.ReadFull(conn, ip); err != nil {
			return "", 0, chilerr.Wrap(chilerr.ProtocolViolation, err, "read ipv6 address")
		}
		host = net.IP(ip).String()

	default:
		return "", 0, chilerr.New(chilerr.ProtocolViolation, "unsupported address type")
	}

	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return "", 0, chilerr.Wrap(chilerr.ProtocolViolation, err, "read port")
	}
	port := binary.BigEndian.Uint16(portBuf)

	return host, port, nil
}

// writeSocks5Reply writes a SOCKS5 reply with BND.ADDR=0.0.0.0, BND.PORT=0.
// Chilsonite never surfaces the Agent's real bound address to the client.
func writeSocks5Reply(conn net.Conn, rep byte) error {
	_, err := conn.Write([]byte{socks5Version, rep, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0})
	return err
}

func (s *Server) selectLink(policy registry.Policy) (*Link, error) {
	var agentID string
	if policy.IsByID() {
		agent, ok := s.registry.GetByID(policy.AgentID)
		if !ok {
			return nil, chilerr.New(chilerr.PolicyMiss, "agent id not online")
		}
		agentID = agent.ID
	} else {
		agent, err := s.registry.PickByCountries(policy.Countries)
		if err != nil {
			return nil, err
		}
		agentID = agent.ID
	}

	link, ok := s.getLink(agentID)
	if !ok {
		return nil, chilerr.New(chilerr.PolicyMiss, "agent link vanished after selection")
	}
	return link, nil
}

// connectSession opens a virtual session on link: registers the session,
// sends Connect, and awaits ConnectResult within the configured connect
// timeout.
func (s *Server) connectSession(link *Link, client net.Conn, host string, port uint16) (*Session, error) {
	sid, err := uuid.NewV7()
	if err != nil {
		return nil, chilerr.Wrap(chilerr.Transient, err, "generate session id")
	}

	session := newSession(sid, link.AgentID, client, link)
	link.registerSession(session)

	if err := link.Send(protocol.Connect(sid, host, port)); err != nil {
		link.removeSession(sid)
		return nil, chilerr.Wrap(chilerr.AgentDialFailure, err, "send connect frame")
	}

	result, err := link.awaitConnectResult(sid, s.connectTimeout)
	if err != nil {
		link.removeSession(sid)
		_ = link.sendClose(sid, "connect timeout")
		return nil, err
	}
	if !result.OK {
		link.removeSession(sid)
		return nil, chilerr.New(chilerr.AgentDialFailure, fmt.Sprintf("agent dial failed: %s", result.ErrorMsg))
	}

	return session, nil
}
