// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package nextion implements the wire protocol of the radio's serial touch
// panel.
//
// The panel is driven by ASCII commands ("page 2", `title.txt="..."`) and
// answers with binary event frames. Both directions end every frame with the
// terminator FF FF FF. This package provides command builders, an incoming
// frame assembler and decoder, UTF-8 to ISO-8859-15 transcoding and the
// Panel engine that tracks the active page.
package nextion

import "time"

// Terminator ends every frame in both directions
var Terminator = []byte{0xFF, 0xFF, 0xFF}

// TerminatorByte is the byte repeated to form the terminator
const TerminatorByte = 0xFF

// terminatorRun is the number of consecutive TerminatorByte ending a frame
const terminatorRun = 3

// Incoming frame categories (byte 0)
const (
	CategoryButtonReleased = 0x70
	CategoryValue          = 0x71
)

// Control selectors of a button frame (byte 1). The panel sends the
// control's name, so these are the first letters of pKey1..5, pPrevious,
// pNext, pDarker, pBrighter, pLeft, pMiddle, pRight and pFuelLimits.
const (
	ControlKey      = 0x4B // 'K'
	ControlPrevious = 0x50 // 'P'
	ControlNext     = 0x4E // 'N'
	ControlDarker   = 0x44 // 'D'
	ControlBrighter = 0x42 // 'B'
	ControlLeft     = 0x4C // 'L'
	ControlMiddle   = 0x4D // 'M'
	ControlRight    = 0x52 // 'R'
	ControlLimits   = 0x46 // 'F'
)

// keyIndexOffset is the position of the ASCII key digit in a key frame:
// 70 4B 65 79 33 = "pKey3"
const keyIndexOffset = 4

// Page identifies a panel screen
type Page int

// Panel pages. Page 4 holds the fuel limit dialog and is only reached
// from the panel itself.
const (
	PageDebug    Page = 0
	PagePlayer   Page = 1
	PageClock    Page = 2
	PageFuel     Page = 3
	PageDownload Page = 5
)

// String returns the page name
func (p Page) String() string {
	switch p {
	case PageDebug:
		return "DEBUG"
	case PagePlayer:
		return "PLAYER"
	case PageClock:
		return "CLOCK"
	case PageFuel:
		return "FUEL"
	case PageDownload:
		return "DOWNLOAD"
	default:
		return "UNKNOWN"
	}
}

// ParsePage maps a page name or number to a Page
func ParsePage(s string) (Page, bool) {
	switch s {
	case "debug", "DEBUG", "0":
		return PageDebug, true
	case "player", "PLAYER", "1":
		return PagePlayer, true
	case "clock", "CLOCK", "2":
		return PageClock, true
	case "fuel", "FUEL", "3":
		return PageFuel, true
	case "download", "DOWNLOAD", "5":
		return PageDownload, true
	}
	return PageDebug, false
}

// ButtonEvent is a control released on the panel
type ButtonEvent int

// Button event values
const (
	ButtonNone ButtonEvent = iota
	ButtonKey
	ButtonPrevious
	ButtonNext
	ButtonLeft
	ButtonRight
	ButtonDark
	ButtonBright
	ButtonMiddle
	ButtonLimits
)

// String returns the button event name
func (b ButtonEvent) String() string {
	switch b {
	case ButtonNone:
		return "NONE"
	case ButtonKey:
		return "KEY"
	case ButtonPrevious:
		return "PREVIOUS"
	case ButtonNext:
		return "NEXT"
	case ButtonLeft:
		return "LEFT"
	case ButtonRight:
		return "RIGHT"
	case ButtonDark:
		return "DARK"
	case ButtonBright:
		return "BRIGHT"
	case ButtonMiddle:
		return "MIDDLE"
	case ButtonLimits:
		return "LIMITS"
	default:
		return "UNKNOWN"
	}
}

// controlEvents maps a control selector byte to its button event
var controlEvents = map[byte]ButtonEvent{
	ControlKey:      ButtonKey,
	ControlPrevious: ButtonPrevious,
	ControlNext:     ButtonNext,
	ControlDarker:   ButtonDark,
	ControlBrighter: ButtonBright,
	ControlLeft:     ButtonLeft,
	ControlMiddle:   ButtonMiddle,
	ControlRight:    ButtonRight,
	ControlLimits:   ButtonLimits,
}

// ValueKind selects a global panel variable that can be requested
type ValueKind int

// Requestable values
const (
	ValueLimitDiesel ValueKind = iota
	ValueLimitSuper
)

// FuelKind selects a fuel price field
type FuelKind int

// Fuel kinds
const (
	FuelDiesel FuelKind = iota
	FuelSuper
)

// Global variable and control names on the panel
const (
	globalLimitDiesel = "currentLimitDiesel"
	globalLimitSuper  = "currentLimitSuper"
	fieldPriceDiesel  = "priceDiesel"
	fieldPriceSuper   = "priceSuper"
)

// Station key background colors (RGB565)
const (
	ColorKeyActive   = 396
	ColorKeyInactive = 19049
)

// Brightness limits
const (
	BrightnessMin = 0
	BrightnessMax = 100
)

// Defaults
const (
	DefaultBaudRate       = 9600
	DefaultBufferSize     = 32
	DefaultDebugLines     = 8
	DefaultBrightnessStep = 5
	DefaultResyncGap      = 250 * time.Millisecond
	DefaultValueTimeout   = 2 * time.Second
	MaxTextLength         = 255
)
