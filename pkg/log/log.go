// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log provides the process-wide logging sink used by every other
// package. Call sites use the same level-gated Logf(level, msg, args...)
// convention as pkg/fuzzer.Fuzzer.Logf; the underlying sink is zap.
package log

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	mu       sync.Mutex
	sugar    *zap.SugaredLogger
	verbose  atomic.Int32
	debugOut atomic.Bool
)

// Init installs the process-wide logger. level controls the verbosity
// threshold passed to Logf; debug additionally enables zap's Debug level.
func Init(level int, debug bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose.Store(int32(level))
	debugOut.Store(debug)

	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		// Logging must never be the reason the fuzzer fails to start.
		logger = zap.NewNop()
	}
	sugar = logger.Sugar()
}

func ensure() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	return sugar
}

// Logf logs msg if level is within the configured verbosity.
func Logf(level int, msg string, args ...interface{}) {
	if int32(level) > verbose.Load() {
		return
	}
	ensure().Infof(msg, args...)
}

// Errorf always logs, regardless of verbosity.
func Errorf(msg string, args ...interface{}) {
	ensure().Errorf(msg, args...)
}

// Fatalf logs and terminates the process, mirroring syzkaller's
// log.Fatalf used throughout syz-fuzzer for unrecoverable protocol errors.
func Fatalf(msg string, args ...interface{}) {
	ensure().Fatalf(msg, args...)
}

// Warnf logs a warning-level message, used for the lifecycle "proceed
// with a logged warning" cases (pipe capacity, core dump disabling).
func Warnf(msg string, args ...interface{}) {
	ensure().Warnf(msg, args...)
}

// Sync flushes any buffered log entries. Safe to call even if Init was
// never called.
func Sync() {
	mu.Lock()
	s := sugar
	mu.Unlock()
	if s != nil {
		_ = s.Sync()
	}
}

// String is a small helper for building the "k=v" debug lines used
// throughout the agent and executor packages.
func String(k string, v interface{}) string {
	return fmt.Sprintf("%s=%v", k, v)
}
