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

// Package config loads the CServer TOML configuration file. The struct
// shape mirrors go-nano's flat Options/WebsocketOptions pattern
// (cluster/node.go): one struct, documented defaults applied after
// decode, validated before the server starts.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chilsonite/chilsonite/internal/chilerr"
)

// CServer holds the on-disk configuration for the coordinator process.
type CServer struct {
	WebsocketPort         uint16 `toml:"websocket_port"`
	Socks5Port            uint16 `toml:"socks5_port"`
	BindAddress           string `toml:"bind_address"`
	ConnectTimeoutSeconds uint32 `toml:"connect_timeout_seconds"`
}

// Defaults applied when a field is left unset in the TOML file.
const (
	DefaultWebsocketPort         = 3005
	DefaultSocks5Port            = 1080
	DefaultBindAddress           = "0.0.0.0"
	DefaultConnectTimeoutSeconds = 30
)

// ConnectTimeout returns ConnectTimeoutSeconds as a time.Duration.
func (c CServer) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// WebsocketAddr returns the bind_address:websocket_port listen address.
func (c CServer) WebsocketAddr() string {
	return joinHostPort(c.BindAddress, c.WebsocketPort)
}

// Socks5Addr returns the bind_address:socks5_port listen address.
func (c CServer) Socks5Addr() string {
	return joinHostPort(c.BindAddress, c.Socks5Port)
}

func joinHostPort(host string, port uint16) string {
	return net.JoinHostPort(host, strconv.Itoa(int(port)))
}

// Default returns a CServer config populated with documented defaults.
func Default() CServer {
	return CServer{
		WebsocketPort:         DefaultWebsocketPort,
		Socks5Port:            DefaultSocks5Port,
		BindAddress:           DefaultBindAddress,
		ConnectTimeoutSeconds: DefaultConnectTimeoutSeconds,
	}
}

// Load reads and decodes a TOML config file at path, applying defaults to
// any field left zero-valued. A malformed file is a ConfigError, which
// callers should treat as fatal at startup.
func Load(path string) (CServer, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return CServer{}, chilerr.Wrap(chilerr.ConfigError, err, "decode config file "+path)
	}
	if cfg.WebsocketPort == 0 {
		cfg.WebsocketPort = DefaultWebsocketPort
	}
	if cfg.Socks5Port == 0 {
		cfg.Socks5Port = DefaultSocks5Port
	}
	if cfg.BindAddress == "" {
		cfg.BindAddress = DefaultBindAddress
	}
	if cfg.ConnectTimeoutSeconds == 0 {
		cfg.ConnectTimeoutSeconds = DefaultConnectTimeoutSeconds
	}
	if cfg.WebsocketPort == cfg.Socks5Port {
		return CServer{}, chilerr.New(chilerr.ConfigError, "websocket_port and socks5_port must differ")
	}
	return cfg, nil
}
