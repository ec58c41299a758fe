// Package testutil provides shared test utilities and fixtures.
//
// This package centralises deterministic random sources and log capture
// used across the generator test suites.
package testutil

import (
	"bytes"
	"io"
	"sync"
)

// ScriptedUniform replays a fixed sequence of variates, cycling when it
// reaches the end. It counts every draw.
type ScriptedUniform struct {
	mu     sync.Mutex
	values []float64
	next   int
	draws  int
}

// NewScriptedUniform returns a source replaying values. An empty script
// always returns 0.5.
func NewScriptedUniform(values ...float64) *ScriptedUniform {
	if len(values) == 0 {
		values = []float64{0.5}
	}
	return &ScriptedUniform{values: values}
}

// Float64 returns the next scripted variate.
func (s *ScriptedUniform) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.next]
	s.next = (s.next + 1) % len(s.values)
	s.draws++
	return v
}

// Draws returns the number of variates handed out so far.
func (s *ScriptedUniform) Draws() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draws
}

// SyncBuffer is a bytes.Buffer safe for concurrent writers, used to
// capture log output from goroutines.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*SyncBuffer)(nil)
