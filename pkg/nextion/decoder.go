// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nextion

import (
	"errors"
	"fmt"
	"time"
)

// Assembler errors
var (
	ErrFrameOverflow = errors.New("frame exceeds buffer capacity")
	ErrFrameResync   = errors.New("stale partial frame discarded")
)

// Decode errors
var (
	ErrEmptyFrame      = errors.New("empty frame")
	ErrUnknownCategory = errors.New("unknown frame category")
	ErrUnknownControl  = errors.New("unknown control selector")
	ErrShortFrame      = errors.New("frame too short")
	ErrInvalidKey      = errors.New("invalid key digit")
)

// Assembler splits the incoming byte stream into frames.
//
// A frame ends after three consecutive terminator bytes. A partial frame is
// discarded when the line stays silent for longer than the resync gap, and a
// frame that outgrows the buffer is dropped up to its terminator.
type Assembler struct {
	buf      []byte
	run      int
	skipping bool
	gap      time.Duration
	last     time.Time

	// Statistics
	resyncs   uint64
	overflows uint64
}

// NewAssembler creates an assembler holding at most capacity bytes per frame,
// terminator included. Zero values select the defaults; a negative gap
// disables resynchronisation.
func NewAssembler(capacity int, gap time.Duration) *Assembler {
	if capacity <= terminatorRun {
		capacity = DefaultBufferSize
	}
	if gap == 0 {
		gap = DefaultResyncGap
	}
	return &Assembler{
		buf: make([]byte, 0, capacity),
		gap: gap,
	}
}

// Push feeds one byte received at the given time.
//
// It returns the frame content without terminator when b completes a frame.
// The returned slice is owned by the caller. A non-nil error reports that
// buffered bytes were discarded; it never accompanies a frame.
func (a *Assembler) Push(b byte, at time.Time) ([]byte, error) {
	var err error

	if a.gap > 0 && !a.last.IsZero() && at.Sub(a.last) > a.gap && (len(a.buf) > 0 || a.skipping) {
		a.reset()
		a.resyncs++
		err = ErrFrameResync
	}
	a.last = at

	if b == TerminatorByte {
		a.run++
	} else {
		a.run = 0
	}

	if a.skipping {
		if a.run == terminatorRun {
			a.reset()
		}
		return nil, err
	}

	if len(a.buf) == cap(a.buf) {
		a.overflows++
		a.buf = a.buf[:0]
		a.skipping = a.run < terminatorRun
		if !a.skipping {
			a.run = 0
		}
		return nil, ErrFrameOverflow
	}

	a.buf = append(a.buf, b)
	if a.run < terminatorRun {
		return nil, err
	}

	out := make([]byte, len(a.buf)-terminatorRun)
	copy(out, a.buf)
	a.reset()
	return out, nil
}

// Pending returns the number of buffered bytes
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// Resyncs returns the number of partial frames dropped after a silent gap
func (a *Assembler) Resyncs() uint64 {
	return a.resyncs
}

// Overflows returns the number of frames dropped for exceeding the buffer
func (a *Assembler) Overflows() uint64 {
	return a.overflows
}

// Reset discards any partial frame
func (a *Assembler) Reset() {
	a.reset()
	a.last = time.Time{}
}

func (a *Assembler) reset() {
	a.buf = a.buf[:0]
	a.run = 0
	a.skipping = false
}

// FrameKind classifies a decoded frame
type FrameKind int

// Frame kinds
const (
	FrameButton FrameKind = iota
	FrameValue
)

// String returns the frame kind name
func (k FrameKind) String() string {
	switch k {
	case FrameButton:
		return "BUTTON"
	case FrameValue:
		return "VALUE"
	default:
		return "UNKNOWN"
	}
}

// Frame is a decoded panel event
type Frame struct {
	Kind   FrameKind
	Button ButtonEvent
	Key    int   // 1-based station key, only for ButtonKey
	Value  int16 // only for FrameValue
	Raw    []byte
}

// DecodeFrame interprets the content of one assembled frame
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}

	f := Frame{Raw: data}

	switch data[0] {
	case CategoryButtonReleased:
		if len(data) < 2 {
			return f, fmt.Errorf("%w: button frame has %d bytes", ErrShortFrame, len(data))
		}
		event, ok := controlEvents[data[1]]
		if !ok {
			return f, fmt.Errorf("%w: 0x%02X", ErrUnknownControl, data[1])
		}
		f.Kind = FrameButton
		f.Button = event

		if event == ButtonKey {
			if len(data) <= keyIndexOffset {
				return f, fmt.Errorf("%w: key frame has %d bytes", ErrShortFrame, len(data))
			}
			digit := data[keyIndexOffset]
			if digit < '0' || digit > '9' {
				return f, fmt.Errorf("%w: 0x%02X", ErrInvalidKey, digit)
			}
			f.Key = int(digit - '0')
		}
		return f, nil

	case CategoryValue:
		if len(data) < 3 {
			return f, fmt.Errorf("%w: value frame has %d bytes", ErrShortFrame, len(data))
		}
		f.Kind = FrameValue
		f.Value = int16(uint16(data[1]) | uint16(data[2])<<8)
		return f, nil

	default:
		return f, fmt.Errorf("%w: 0x%02X", ErrUnknownCategory, data[0])
	}
}
