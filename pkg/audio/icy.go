// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package audio

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// icyReader strips SHOUTcast/Icecast metadata blocks from a stream. Every
// metaInt audio bytes the server inserts one length byte (in units of 16)
// followed by that many bytes of metadata.
type icyReader struct {
	r       io.Reader
	metaInt int
	remain  int
	meta    []byte
	onTitle func(string)
}

func newICYReader(r io.Reader, metaInt int, onTitle func(string)) io.Reader {
	if metaInt <= 0 {
		return r
	}
	return &icyReader{
		r:       r,
		metaInt: metaInt,
		remain:  metaInt,
		meta:    make([]byte, 255*16),
		onTitle: onTitle,
	}
}

func (ir *icyReader) Read(p []byte) (int, error) {
	if ir.remain == 0 {
		if err := ir.readMeta(); err != nil {
			return 0, err
		}
		ir.remain = ir.metaInt
	}
	if len(p) > ir.remain {
		p = p[:ir.remain]
	}
	n, err := ir.r.Read(p)
	ir.remain -= n
	return n, err
}

func (ir *icyReader) readMeta() error {
	var length [1]byte
	if _, err := io.ReadFull(ir.r, length[:]); err != nil {
		return err
	}
	size := int(length[0]) * 16
	if size == 0 {
		return nil
	}
	block := ir.meta[:size]
	if _, err := io.ReadFull(ir.r, block); err != nil {
		return fmt.Errorf("short metadata block: %w", err)
	}
	if title, ok := ParseStreamTitle(block); ok && ir.onTitle != nil {
		ir.onTitle(title)
	}
	return nil
}

// ParseStreamTitle extracts StreamTitle from an ICY metadata block such as
// "StreamTitle='Artist - Song';StreamUrl='';". Titles that are not valid
// UTF-8 are read as Latin-1.
func ParseStreamTitle(block []byte) (string, bool) {
	block = bytes.TrimRight(block, "\x00")

	const key = "StreamTitle='"
	start := bytes.Index(block, []byte(key))
	if start < 0 {
		return "", false
	}
	value := block[start+len(key):]

	// The title itself may contain quotes; the field ends at "';"
	end := bytes.Index(value, []byte("';"))
	if end < 0 {
		end = bytes.LastIndexByte(value, '\'')
		if end < 0 {
			end = len(value)
		}
	}
	value = value[:end]

	if !utf8.Valid(value) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(value)
		if err != nil {
			return "", false
		}
		value = decoded
	}
	return strings.TrimSpace(string(value)), true
}
