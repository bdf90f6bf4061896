// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nextion

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatFrame formats a decoded frame into a human-readable line
func FormatFrame(f Frame, at time.Time) string {
	timestamp := at.Format("15:04:05.000")

	var detail string
	switch f.Kind {
	case FrameButton:
		detail = f.Button.String()
		if f.Button == ButtonKey {
			detail += fmt.Sprintf(" key=%d", f.Key)
		}
	case FrameValue:
		detail = fmt.Sprintf("value=%d", f.Value)
	}

	return fmt.Sprintf("[%s] %s %s  %s\n", timestamp, f.Kind, detail, FormatHex(f.Raw))
}

// FormatCommand renders an outgoing command frame for logs: printable ASCII
// is shown as is, everything else as \xNN, the terminator is stripped.
func FormatCommand(cmd []byte) string {
	body := cmd
	if len(body) >= len(Terminator) && string(body[len(body)-len(Terminator):]) == string(Terminator) {
		body = body[:len(body)-len(Terminator)]
	}

	var sb strings.Builder
	for _, b := range body {
		if b >= 0x20 && b < 0x7F {
			sb.WriteByte(b)
		} else {
			fmt.Fprintf(&sb, "\\x%02X", b)
		}
	}
	return sb.String()
}

// FormatHex renders bytes as space-separated hex
func FormatHex(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// ParseHex parses space-separated hex bytes ("70 4B 65 79 33")
func ParseHex(s string) ([]byte, error) {
	fields := strings.Fields(s)
	out := make([]byte, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
		b, err := strconv.ParseUint(field, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid hex byte %q: %w", field, err)
		}
		out = append(out, byte(b))
	}
	return out, nil
}
