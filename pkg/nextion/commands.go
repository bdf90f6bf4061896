// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nextion

import (
	"fmt"
	"strconv"
)

// Command builder functions return complete wire frames: the ASCII command
// followed by the terminator. Text arguments are transcoded and escaped with
// ToDisplayCharset before being quoted.

// frame appends the terminator to an ASCII command
func frame(cmd string) []byte {
	out := make([]byte, 0, len(cmd)+len(Terminator))
	out = append(out, cmd...)
	return append(out, Terminator...)
}

// quoted builds field.txt="text" style commands from raw display bytes
func quoted(prefix string, text []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(text)+2+len(Terminator))
	out = append(out, prefix...)
	out = append(out, '"')
	out = append(out, text...)
	out = append(out, '"')
	return append(out, Terminator...)
}

// NewPageCommand selects a page: "page N"
func NewPageCommand(page Page) []byte {
	return frame("page " + strconv.Itoa(int(page)))
}

// NewTextCommand sets a text field: field.txt="text"
func NewTextCommand(field, text string) []byte {
	return quoted(field+".txt=", ToDisplayCharset(text))
}

// NewAppendTextCommand appends to a text field: field.txt+="text"
func NewAppendTextCommand(field, text string) []byte {
	return quoted(field+".txt+=", ToDisplayCharset(text))
}

// NewValueCommand sets a numeric field: field.val=N
func NewValueCommand(field string, value int) []byte {
	return frame(fmt.Sprintf("%s.val=%d", field, value))
}

// NewColorCommand sets a control's background color: field.bco=N
func NewColorCommand(field string, color int) []byte {
	return frame(fmt.Sprintf("%s.bco=%d", field, color))
}

// NewGlobalCommand sets a global panel variable: name=N
func NewGlobalCommand(name string, value int) []byte {
	return frame(fmt.Sprintf("%s=%d", name, value))
}

// NewDimCommand sets the backlight brightness: dim=N
func NewDimCommand(brightness int) []byte {
	return frame("dim=" + strconv.Itoa(brightness))
}

// NewClickCommand issues a virtual press (1) or release (0) on a control:
// click name,N
func NewClickCommand(control string, press bool) []byte {
	state := '0'
	if press {
		state = '1'
	}
	return frame(fmt.Sprintf("click %s,%c", control, state))
}

// NewGetCommand requests a field's current value: get name
func NewGetCommand(name string) []byte {
	return frame("get " + name)
}

// NewRawCommand frames an arbitrary ASCII command
func NewRawCommand(cmd string) []byte {
	return frame(cmd)
}

// valueName returns the global variable behind a ValueKind
func valueName(kind ValueKind) (string, error) {
	switch kind {
	case ValueLimitDiesel:
		return globalLimitDiesel, nil
	case ValueLimitSuper:
		return globalLimitSuper, nil
	}
	return "", fmt.Errorf("unknown value kind %d", kind)
}

// priceField returns the price control behind a FuelKind
func priceField(kind FuelKind) (string, error) {
	switch kind {
	case FuelDiesel:
		return fieldPriceDiesel, nil
	case FuelSuper:
		return fieldPriceSuper, nil
	}
	return "", fmt.Errorf("unknown fuel kind %d", kind)
}
