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

// server.go wires the CServer process together: the WebSocket Agent
// gate (upgrade + Register handshake), the SOCKS5 listener, and the
// signal-driven graceful shutdown. The overall run/shutdown shape is
// lifted from go-nano's Listen/Shutdown pair in nano.go — a package-level
// blocking entry point that waits on a signal channel and then tears
// everything down — generalized here into a *Server value so a process
// can (in principle) run more than one.
package server

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chilsonite/chilsonite/internal/chilerr"
	"github.com/chilsonite/chilsonite/internal/config"
	"github.com/chilsonite/chilsonite/internal/idgen"
	"github.com/chilsonite/chilsonite/internal/log"
	"github.com/chilsonite/chilsonite/protocol"
	"github.com/chilsonite/chilsonite/registry"
	"github.com/chilsonite/chilsonite/tokengate"
)

// registerTimeout bounds how long a freshly-accepted WebSocket connection
// has to send its Register frame before CServer gives up on it.
const registerTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server is one Chilsonite coordinator process: the Agent registry, the
// token gate, every live Agent Link, and the two listeners (WebSocket
// gate, SOCKS5 front-end) that feed them.
type Server struct {
	cfg            config.CServer
	registry       *registry.Registry
	validator      tokengate.Validator
	connectTimeout time.Duration
	pingInterval   time.Duration

	mu    sync.Mutex
	links map[string]*Link

	httpSrv    *http.Server
	socksLn    net.Listener
	shutdownMu sync.Once
}

// New constructs a Server. validator is the token-gate capability the
// SOCKS5 front-end consults; reg is normally a fresh registry.New() but
// is accepted as a parameter so tests can inspect it.
func New(cfg config.CServer, reg *registry.Registry, validator tokengate.Validator, opts ...Option) *Server {
	s := &Server{
		cfg:            cfg,
		registry:       reg,
		validator:      validator,
		connectTimeout: cfg.ConnectTimeout(),
		pingInterval:   defaultPingInterval,
		links:          make(map[string]*Link),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListenAndServe starts both listeners and blocks until SIGINT/SIGTERM or
// ctx is cancelled, then shuts down gracefully. Mirrors the
// signal-channel-select shape of go-nano's Listen in nano.go.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleAgentUpgrade)
	s.httpSrv = &http.Server{Addr: s.cfg.WebsocketAddr(), Handler: mux}

	wsLn, err := net.Listen("tcp", s.cfg.WebsocketAddr())
	if err != nil {
		return chilerr.Wrap(chilerr.ConfigError, err, "listen websocket gate")
	}

	socksLn, err := net.Listen("tcp", s.cfg.Socks5Addr())
	if err != nil {
		wsLn.Close()
		return chilerr.Wrap(chilerr.ConfigError, err, "listen socks5")
	}
	s.socksLn = socksLn

	go func() {
		if err := s.httpSrv.Serve(wsLn); err != nil && err != http.ErrServerClosed {
			log.Errorf("websocket gate stopped: %v", err)
		}
	}()
	go s.serveSocks5()

	log.Printf("chilsonite cserver listening: websocket=%s socks5=%s",
		s.cfg.WebsocketAddr(), s.cfg.Socks5Addr())

	sg := make(chan os.Signal, 1)
	signal.Notify(sg, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sg:
		log.Printf("chilsonite cserver got signal %v, shutting down", sig)
	case <-ctx.Done():
		log.Print("chilsonite cserver context cancelled, shutting down")
	}

	return s.Shutdown()
}

// Shutdown stops both listeners. Already-established links and sessions
// are left to drain on their own; Chilsonite has no notion of a
// coordinated connection drain beyond simply refusing new ones.
func (s *Server) Shutdown() error {
	var err error
	s.shutdownMu.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.httpSrv != nil {
			err = s.httpSrv.Shutdown(ctx)
		}
		if s.socksLn != nil {
			_ = s.socksLn.Close()
		}
	})
	return err
}

func (s *Server) serveSocks5() {
	for {
		conn, err := s.socksLn.Accept()
		if err != nil {
			log.Warnf("socks5 accept: %v", err)
			return
		}
		go s.handleSocks5Conn(conn)
	}
}

// handleAgentUpgrade upgrades the HTTP connection and performs the
// mandatory Register handshake: the first frame received must be
// Register, within registerTimeout, or the connection is closed without
// ever entering the registry.
func (s *Server) handleAgentUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(registerTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		log.Warnf("agent gate %s: failed to read register frame: %v", r.RemoteAddr, err)
		conn.Close()
		return
	}

	e, err := protocol.Decode(data)
	if err != nil || e.Type != protocol.TypeRegister {
		log.Warnf("agent gate %s: first frame was not register", r.RemoteAddr)
		conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	agentID := idgen.AgentID()
	s.registry.Insert(&registry.Agent{
		ID:          agentID,
		CountryCode: e.CountryCode,
		PublicIP:    e.PublicIP,
		OSName:      e.OSName,
		AttachedAt:  time.Now(),
	})

	if err := conn.WriteJSON(protocol.Registered(agentID)); err != nil {
		log.Warnf("agent gate %s: failed to ack register: %v", r.RemoteAddr, err)
		s.registry.Remove(agentID)
		conn.Close()
		return
	}

	link := newLink(agentID, conn, s)
	s.addLink(link)

	log.Printf("agent %s attached from %s (country=%s)", agentID, r.RemoteAddr, e.CountryCode)

	go link.writeLoop()
	link.readLoop()
}

func (s *Server) addLink(l *Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[l.AgentID] = l
}

func (s *Server) removeLink(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, agentID)
}

func (s *Server) getLink(agentID string) (*Link, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[agentID]
	return l, ok
}
