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

// Package log is the process-wide logging seam used by every other
// package in Chilsonite. It mirrors the SetLogger/functional-option
// pattern go-nano exposes through options.WithLogger, but backs it with
// logrus instead of a bespoke writer.
package log

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the minimal surface the rest of the codebase depends on.
// A caller may substitute their own implementation via SetLogger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Printf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

var (
	mu  sync.RWMutex
	cur Logger = newDefault()
)

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLogger overrides the package-level logger.
func SetLogger(l Logger) {
	mu.Lock()
	cur = l
	mu.Unlock()
}

// SetDebug raises the default logger to debug level. Has no effect if a
// custom Logger was installed with SetLogger.
func SetDebug(debug bool) {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := cur.(*logrus.Logger); ok {
		if debug {
			l.SetLevel(logrus.DebugLevel)
		} else {
			l.SetLevel(logrus.InfoLevel)
		}
	}
}

func get() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return cur
}

func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }
func Printf(format string, args ...interface{}) { get().Printf(format, args...) }
func Warnf(format string, args ...interface{})  { get().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }
func Fatalf(format string, args ...interface{}) { get().Fatalf(format, args...) }

// Print and Fatal mirror go-nano's log.Print/log.Fatal call shape for
// single-argument and variadic messages.
func Print(args ...interface{}) {
	get().Printf("%s", fmtArgs(args))
}

func Fatal(args ...interface{}) {
	get().Fatalf("%s", fmtArgs(args))
}

func fmtArgs(args []interface{}) string {
	if len(args) == 1 {
		if s, ok := args[0].(string); ok {
			return s
		}
	}
	msg := ""
	for i, a := range args {
		if i > 0 {
			msg += " "
		}
		if s, ok := a.(string); ok {
			msg += s
		} else {
			msg += toString(a)
		}
	}
	return msg
}

func toString(a interface{}) string {
	type stringer interface{ String() string }
	if s, ok := a.(stringer); ok {
		return s.String()
	}
	if err, ok := a.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%+v", a)
}
