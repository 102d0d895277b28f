// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2017 Datadog, Inc.

// Package ddlog provides the leveled logger shared by every package in the
// agent. It wraps seelog the way the DataDog agent lineage always has,
// instead of each package calling the standard library's log.Println.
package ddlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/cihub/seelog"
)

var (
	mu     sync.RWMutex
	logger seelog.LoggerInterface = seelog.Disabled
)

const defaultConfig = `
<seelog minlevel="info">
	<outputs formatid="main">
		<console/>
	</outputs>
	<formats>
		<format id="main" format="%Date(2006-01-02 15:04:05) [%LEVEL] %Msg%n"/>
	</formats>
</seelog>
`

// Configure installs the package logger from a seelog XML config string.
// Passing an empty string installs console-only, info-level logging.
func Configure(xmlConfig string) error {
	if xmlConfig == "" {
		xmlConfig = defaultConfig
	}
	l, err := seelog.LoggerFromConfigAsString(xmlConfig)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

func current() seelog.LoggerInterface {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debugf(format string, args ...interface{}) { current().Debugf(format, args...) }
func Infof(format string, args ...interface{})  { current().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { current().Warn(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...interface{}) { current().Error(fmt.Sprintf(format, args...)) }

// Flush blocks until buffered log records are written out. Call on shutdown.
func Flush() { current().Flush() }

// Limiter rate-limits a warning per key so a single misbehaving file can't
// flood the log (spec: truncation warnings are rate-limited).
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

// NewLimiter returns a Limiter that allows at most one message per key per interval.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{interval: interval, last: make(map[string]time.Time)}
}

// Allow reports whether a message keyed by key may be logged now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.last[key] = now
	return true
}
