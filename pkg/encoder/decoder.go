// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package encoder decodes a quadrature rotary encoder with push switch into
// discrete user events.
//
// The Handle* methods are called from line event handlers (the equivalent of
// interrupt context): they never block, never allocate and only touch atomic
// cells. EventStatus is called from a single polling loop.
package encoder

import (
	"sync/atomic"
	"time"
)

// Event is one decoded user action
type Event int

// Event values
const (
	EventNone Event = iota
	EventClick
	EventLongClick
	EventTurnLeft
	EventTurnRight
)

// String returns the event name
func (e Event) String() string {
	switch e {
	case EventNone:
		return "NONE"
	case EventClick:
		return "CLICK"
	case EventLongClick:
		return "LONG_CLICK"
	case EventTurnLeft:
		return "TURN_LEFT"
	case EventTurnRight:
		return "TURN_RIGHT"
	default:
		return "UNKNOWN"
	}
}

// stepsPerDetent is the number of valid quarter transitions in one detent
const stepsPerDetent = 4

// transitions maps (previous<<2 | current) to a quarter step.
// Invalid or bouncing transitions map to 0.
var transitions = [16]int8{
	0,  // 00 -> 00
	-1, // 00 -> 01  dt goes high
	1,  // 00 -> 10
	0,  // 00 -> 11
	1,  // 01 -> 00  dt goes low
	0,  // 01 -> 01
	0,  // 01 -> 10
	-1, // 01 -> 11  clk goes high
	-1, // 10 -> 00  clk goes low
	0,  // 10 -> 01
	0,  // 10 -> 10
	1,  // 10 -> 11  dt goes high
	0,  // 11 -> 00
	1,  // 11 -> 01  clk goes low
	-1, // 11 -> 10  dt goes high
	0,  // 11 -> 11
}

// Step returns the quarter step for a transition between two 2-bit line states
func Step(previous, current uint8) int8 {
	return transitions[(previous&0x03)<<2|current&0x03]
}

// Decoder holds the rotation accumulator, the switch debounce state and the
// published one-shot events.
type Decoder struct {
	debounce  time.Duration
	longPress time.Duration

	// turn handler state
	previous    atomic.Uint32
	accumulator atomic.Int32

	// switch handler state
	pressed    atomic.Bool
	lastAccept atomic.Int64

	// published events
	click     atomic.Bool
	longClick atomic.Bool
	rotation  atomic.Int32

	// poll side
	ticks atomic.Int32
}

// NewDecoder creates a decoder with the given debounce window and long press
// threshold. Zero values select the defaults.
func NewDecoder(debounce, longPress time.Duration) *Decoder {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if longPress <= 0 {
		longPress = DefaultLongPress
	}
	d := &Decoder{
		debounce:  debounce,
		longPress: longPress,
	}
	d.previous.Store(0x01)
	// Accept the very first switch sample regardless of its timestamp
	d.lastAccept.Store(int64(-debounce))
	return d
}

// Seed sets the resting line levels read before the first edge and clears
// any partial detent.
func (d *Decoder) Seed(clk, dt bool) {
	d.previous.Store(lineBits(clk, dt))
	d.accumulator.Store(0)
}

func lineBits(clk, dt bool) uint32 {
	var bits uint32
	if clk {
		bits |= 0x02
	}
	if dt {
		bits |= 0x01
	}
	return bits
}

// HandleTurn processes an edge on either rotation line.
// clk and dt are the current line levels (true = high).
func (d *Decoder) HandleTurn(clk, dt bool) {
	current := lineBits(clk, dt)
	previous := d.previous.Swap(current)

	acc := d.accumulator.Add(int32(transitions[(previous<<2|current)&0x0F]))
	if acc >= stepsPerDetent {
		d.accumulator.Store(0)
		d.rotation.Add(1)
	} else if acc <= -stepsPerDetent {
		d.accumulator.Store(0)
		d.rotation.Add(-1)
	}
}

// HandleSwitch processes an edge on the switch line.
// pressed is true while the knob is held down; at is a monotonic timestamp.
func (d *Decoder) HandleSwitch(pressed bool, at time.Duration) {
	last := time.Duration(d.lastAccept.Load())
	held := at - last
	if held < d.debounce {
		return
	}
	if pressed != d.pressed.Load() {
		d.pressed.Store(pressed)
		if !pressed {
			if held >= d.longPress {
				d.longClick.Store(true)
			} else {
				d.click.Store(true)
			}
		}
	}
	d.lastAccept.Store(int64(at))
}

// EventStatus returns and clears exactly one pending event.
// Click has priority over long click, long click over rotation.
func (d *Decoder) EventStatus() Event {
	if d.click.Swap(false) {
		return EventClick
	}
	if d.longClick.Swap(false) {
		return EventLongClick
	}
	detents := d.rotation.Swap(0)
	if detents == 0 {
		return EventNone
	}
	d.ticks.Add(detents)
	if detents < 0 {
		return EventTurnLeft
	}
	return EventTurnRight
}

// Ticks returns the signed detents drained by EventStatus since the last call
// and clears the counter.
func (d *Decoder) Ticks() int {
	return int(d.ticks.Swap(0))
}

// Accumulator returns the current sub-detent progress
func (d *Decoder) Accumulator() int {
	return int(d.accumulator.Load())
}

// Inject publishes an event as if it had been decoded from the lines.
// Used by keyboard emulation; EventNone clears everything.
func (d *Decoder) Inject(e Event) {
	switch e {
	case EventNone:
		d.Reset()
	case EventClick:
		d.click.Store(true)
	case EventLongClick:
		d.longClick.Store(true)
	case EventTurnLeft:
		d.rotation.Add(-1)
	case EventTurnRight:
		d.rotation.Add(1)
	}
}

// Reset clears all pending state unconditionally
func (d *Decoder) Reset() {
	d.click.Store(false)
	d.longClick.Store(false)
	d.rotation.Store(0)
	d.accumulator.Store(0)
	d.ticks.Store(0)
}
