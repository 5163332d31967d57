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

// Package chilerr implements Chilsonite's error taxonomy. Every error
// that crosses a package boundary is one of these kinds, so callers can
// decide propagation (close a socket, abort a session, abort a link, or
// fail process startup) by a type switch instead of string matching.
package chilerr

import (
	"github.com/pingcap/errors"
)

// Kind classifies an error into Chilsonite's error taxonomy.
type Kind string

const (
	// ProtocolViolation: bad SOCKS5 version, pre-Register frame. Close
	// the offending socket.
	ProtocolViolation Kind = "protocol_violation"
	// AuthFailure: unknown token, malformed username. SOCKS5 auth
	// reject, close.
	AuthFailure Kind = "auth_failure"
	// PolicyMiss: no agent matches the requested selection policy.
	// SOCKS5 HOST UNREACHABLE, close.
	PolicyMiss Kind = "policy_miss"
	// AgentDialFailure: target unreachable from the Agent. SOCKS5
	// CONNECTION REFUSED, close session.
	AgentDialFailure Kind = "agent_dial_failure"
	// LinkLost: the WebSocket to an Agent dropped. Abort all dependent
	// sessions; the Agent reconnects on its own.
	LinkLost Kind = "link_lost"
	// Transient: a transient send-buffer error scoped to one session.
	// Abort only that session.
	Transient Kind = "transient"
	// ConfigError: missing or invalid configuration. Fail process
	// startup.
	ConfigError Kind = "config_error"
)

// Error wraps a Kind with a traced cause.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a Kind-tagged error, tracing the call site via pingcap/errors.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, cause: errors.New(msg)}
}

// Wrap annotates an existing error with a Kind and a stack trace.
func Wrap(kind Kind, cause error, msg string) *Error {
	if cause == nil {
		return New(kind, msg)
	}
	return &Error{Kind: kind, cause: errors.Annotate(cause, msg)}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
