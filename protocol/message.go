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

// Package protocol implements the wire codec: the JSON-tagged message
// variants exchanged over the CServer↔Agent WebSocket, and the base64
// chunk framing for session payload bytes.
//
// Every frame is a JSON object discriminated by a "type" field. This
// mirrors go-nano's internal/message concept of one typed envelope
// travelling over the link (see cluster/handler.go's packet.Data case,
// which decodes a message.Message off the wire), reworked from go-nano's
// binary length-prefixed framing to JSON text framing for cross-language
// fleet compatibility. Payload bytes live in Go []byte fields, which
// encoding/json already marshals to/from standard-alphabet base64 with
// no line breaks, so no separate base64 step is needed anywhere in this
// package.
package protocol

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/chilsonite/chilsonite/internal/chilerr"
)

// Type discriminates the message variants exchanged over the link.
type Type string

const (
	TypeRegister      Type = "register"
	TypeRegistered    Type = "registered"
	TypeConnect       Type = "connect"
	TypeConnectResult Type = "connect_result"
	TypeData          Type = "data"
	TypeCloseWrite    Type = "close_write"
	TypeClose         Type = "close"
	TypePing          Type = "ping"
	TypePong          Type = "pong"
)

// Envelope is the outer JSON object written to and read from the
// WebSocket. Only the fields relevant to Type are populated; the rest
// are zero-valued and omitted on the wire, except session_id, which is
// always written (as the nil UUID when unset).
type Envelope struct {
	Type Type `json:"type"`

	// Register (A->S)
	CountryCode string `json:"country_code,omitempty"`
	PublicIP    string `json:"public_ip,omitempty"`
	OSName      string `json:"os_name,omitempty"`

	// Registered (S->A)
	AgentID string `json:"agent_id,omitempty"`

	// Connect (S->A), ConnectResult (A->S), Data/CloseWrite/Close (both)
	SessionID uuid.UUID `json:"session_id,omitempty"`
	Host      string    `json:"host,omitempty"`
	Port      uint16    `json:"port,omitempty"`

	OK        bool   `json:"ok,omitempty"`
	BoundAddr string `json:"bound_addr,omitempty"`
	ErrorMsg  string `json:"error,omitempty"`

	Seq  uint64 `json:"seq,omitempty"`
	Data []byte `json:"data,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// Encode marshals an Envelope to a single JSON text frame.
func Encode(e *Envelope) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, chilerr.Wrap(chilerr.ProtocolViolation, err, "encode envelope")
	}
	return b, nil
}

// Decode unmarshals a single JSON text frame into an Envelope.
func Decode(b []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, chilerr.Wrap(chilerr.ProtocolViolation, err, "decode envelope")
	}
	if e.Type == "" {
		return nil, chilerr.New(chilerr.ProtocolViolation, "envelope missing type")
	}
	return &e, nil
}

// Register builds an A->S Register frame.
func Register(countryCode, publicIP, osName string) *Envelope {
	return &Envelope{Type: TypeRegister, CountryCode: countryCode, PublicIP: publicIP, OSName: osName}
}

// Registered builds an S->A Registered frame.
func Registered(agentID string) *Envelope {
	return &Envelope{Type: TypeRegistered, AgentID: agentID}
}

// Connect builds an S->A Connect frame.
func Connect(sessionID uuid.UUID, host string, port uint16) *Envelope {
	return &Envelope{Type: TypeConnect, SessionID: sessionID, Host: host, Port: port}
}

// ConnectResultOK builds an A->S successful ConnectResult frame.
func ConnectResultOK(sessionID uuid.UUID, boundAddr string) *Envelope {
	return &Envelope{Type: TypeConnectResult, SessionID: sessionID, OK: true, BoundAddr: boundAddr}
}

// ConnectResultErr builds an A->S failed ConnectResult frame.
func ConnectResultErr(sessionID uuid.UUID, errMsg string) *Envelope {
	return &Envelope{Type: TypeConnectResult, SessionID: sessionID, OK: false, ErrorMsg: errMsg}
}

// Data builds a Data frame carrying a chunk of session payload.
func Data(sessionID uuid.UUID, seq uint64, data []byte) *Envelope {
	return &Envelope{Type: TypeData, SessionID: sessionID, Seq: seq, Data: data}
}

// CloseWrite builds a CloseWrite frame: sender will send no more data.
func CloseWrite(sessionID uuid.UUID) *Envelope {
	return &Envelope{Type: TypeCloseWrite, SessionID: sessionID}
}

// Close builds a full-teardown Close frame.
func Close(sessionID uuid.UUID, reason string) *Envelope {
	return &Envelope{Type: TypeClose, SessionID: sessionID, Reason: reason}
}

// Ping/Pong builds liveness frames.
func Ping() *Envelope { return &Envelope{Type: TypePing} }
func Pong() *Envelope { return &Envelope{Type: TypePong} }

// ChunkSize is the recommended pre-base64 chunk size for Data frames
// (16-64 KiB target).
const ChunkSize = 32 * 1024
