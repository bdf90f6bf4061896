// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nextion

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of the link statistics
type Counters struct {
	StartTime     time.Time
	LastFrameTime time.Time

	// Outgoing
	CommandsSent  uint64
	CommandsGated uint64
	WriteErrors   uint64

	// Incoming
	TotalFrames   uint64
	ButtonFrames  uint64
	ValueFrames   uint64
	DecodeErrors  uint64
	UnknownFrames uint64
	Resyncs       uint64
	Overflows     uint64
	ValueTimeouts uint64
}

// Statistics tracks traffic in both directions and frame error rates.
// It is safe for concurrent use.
type Statistics struct {
	mu      sync.Mutex
	c       Counters
	lastErr error
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{c: Counters{StartTime: time.Now()}}
}

// RecordFrame counts one assembled frame and its decode result
func (s *Statistics) RecordFrame(f Frame, decodeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.TotalFrames++
	s.c.LastFrameTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrUnknownCategory) || errors.Is(decodeErr, ErrUnknownControl) {
			s.c.UnknownFrames++
		} else {
			s.c.DecodeErrors++
		}
		return
	}

	switch f.Kind {
	case FrameButton:
		s.c.ButtonFrames++
	case FrameValue:
		s.c.ValueFrames++
	}
}

// RecordAssembly counts bytes discarded by the assembler
func (s *Statistics) RecordAssembly(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case errors.Is(err, ErrFrameOverflow):
		s.c.Overflows++
	case errors.Is(err, ErrFrameResync):
		s.c.Resyncs++
	}
}

// RecordCommand counts one outgoing command
func (s *Statistics) RecordCommand(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.c.WriteErrors++
		s.lastErr = err
		return
	}
	s.c.CommandsSent++
}

func (s *Statistics) recordGated() {
	s.mu.Lock()
	s.c.CommandsGated++
	s.mu.Unlock()
}

func (s *Statistics) recordValueTimeout() {
	s.mu.Lock()
	s.c.ValueTimeouts++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.mu.Lock()
	c, lastErr := s.c, s.lastErr
	s.mu.Unlock()

	elapsed := time.Since(c.StartTime)

	var frameRate, errorRate float64
	if secs := elapsed.Seconds(); secs > 0 {
		frameRate = float64(c.TotalFrames) / secs
		errorRate = float64(c.DecodeErrors+c.UnknownFrames+c.Overflows+c.Resyncs) / secs
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Commands Sent:   %8d\n", c.CommandsSent)
	if c.CommandsGated > 0 {
		result += fmt.Sprintf("Commands Gated:  %8d\n", c.CommandsGated)
	}
	if c.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d (last: %v)\n", c.WriteErrors, lastErr)
	}
	result += fmt.Sprintf("Frames:          %8d\n", c.TotalFrames)
	result += fmt.Sprintf("  Buttons:       %8d\n", c.ButtonFrames)
	result += fmt.Sprintf("  Values:        %8d\n", c.ValueFrames)
	if c.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", c.DecodeErrors)
	}
	if c.UnknownFrames > 0 {
		result += fmt.Sprintf("Unknown Frames:  %8d\n", c.UnknownFrames)
	}
	if c.Overflows > 0 {
		result += fmt.Sprintf("Overflows:       %8d\n", c.Overflows)
	}
	if c.Resyncs > 0 {
		result += fmt.Sprintf("Resyncs:         %8d\n", c.Resyncs)
	}
	if c.ValueTimeouts > 0 {
		result += fmt.Sprintf("Value Timeouts:  %8d\n", c.ValueTimeouts)
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", frameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", errorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = Counters{StartTime: time.Now()}
	s.lastErr = nil
}
