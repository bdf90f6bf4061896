// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package settings persists the values the radio restores after a restart:
// the current station, panel brightness, volume and the fuel price limits.
//
// File layout: CBOR map with integer keys, followed by a big-endian
// CRC-16-CCITT of the CBOR bytes.
package settings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Errors
var (
	ErrCorrupt = errors.New("settings file corrupt")
)

// Defaults
const (
	NoStation          = -1
	DefaultBrightness  = 100
	DefaultVolume      = 16
	DefaultLimitDiesel = 180 // cents
	DefaultLimitSuper  = 190 // cents

	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
	crcSize       = 2
)

// Settings is the persisted state
type Settings struct {
	Station     int `cbor:"1,keyasint"`
	Brightness  int `cbor:"2,keyasint"`
	Volume      int `cbor:"3,keyasint"`
	LimitDiesel int `cbor:"4,keyasint"`
	LimitSuper  int `cbor:"5,keyasint"`
}

// Defaults returns the settings of a fresh device
func Defaults() Settings {
	return Settings{
		Station:     NoStation,
		Brightness:  DefaultBrightness,
		Volume:      DefaultVolume,
		LimitDiesel: DefaultLimitDiesel,
		LimitSuper:  DefaultLimitSuper,
	}
}

// StationOr returns the stored station, or def when none was stored
func (s Settings) StationOr(def int) int {
	if s.Station < 0 {
		return def
	}
	return s.Station
}

// Marshal encodes settings in file format
func Marshal(s Settings) ([]byte, error) {
	data, err := cbor.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}
	return binary.BigEndian.AppendUint16(data, calculateCRC(data)), nil
}

// Unmarshal decodes a settings file. Fields missing from the file keep
// their defaults.
func Unmarshal(data []byte) (Settings, error) {
	s := Defaults()
	if len(data) <= crcSize {
		return s, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}

	payload := data[:len(data)-crcSize]
	got := binary.BigEndian.Uint16(data[len(data)-crcSize:])
	if want := calculateCRC(payload); got != want {
		return Defaults(), fmt.Errorf("%w: crc 0x%04X, want 0x%04X", ErrCorrupt, got, want)
	}
	if err := cbor.Unmarshal(payload, &s); err != nil {
		return Defaults(), fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return s, nil
}

func calculateCRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for range 8 {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Store reads and writes the settings file. Writes are skipped when the
// value did not change.
type Store struct {
	path string
	log  *slog.Logger

	mu   sync.Mutex
	last Settings
}

// Open loads the settings file at path. A missing file is created with the
// defaults; a corrupt file is replaced by the defaults and reported.
func Open(path string, log *slog.Logger) (*Store, Settings, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	st := &Store{
		path: path,
		log:  log.With(slog.String("component", "settings")),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		st.log.Info("no settings file, writing defaults", slog.String("path", path))
		s := Defaults()
		if err := st.write(s); err != nil {
			return nil, s, err
		}
		st.last = s
		return st, s, nil

	case err != nil:
		return nil, Defaults(), fmt.Errorf("failed to read settings: %w", err)
	}

	s, err := Unmarshal(data)
	st.last = s
	if err != nil {
		st.log.Warn("settings reset to defaults", slog.Any("error", err))
		if werr := st.write(s); werr != nil {
			return st, s, errors.Join(err, werr)
		}
		return st, s, err
	}
	return st, s, nil
}

// Current returns the last stored settings
func (st *Store) Current() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.last
}

// Update applies fn to the stored settings and writes the file if anything
// changed
func (st *Store) Update(fn func(*Settings)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := st.last
	fn(&next)
	if next == st.last {
		return nil
	}
	if err := st.write(next); err != nil {
		return err
	}
	st.last = next
	return nil
}

// SetStation stores the current station index
func (st *Store) SetStation(index int) error {
	return st.Update(func(s *Settings) { s.Station = index })
}

// SetBrightness stores the panel brightness
func (st *Store) SetBrightness(v int) error {
	return st.Update(func(s *Settings) { s.Brightness = v })
}

// SetVolume stores the volume
func (st *Store) SetVolume(v int) error {
	return st.Update(func(s *Settings) { s.Volume = v })
}

// SetFuelLimits stores the fuel price limits in cents
func (st *Store) SetFuelLimits(diesel, super int) error {
	return st.Update(func(s *Settings) {
		s.LimitDiesel = diesel
		s.LimitSuper = super
	})
}

// write replaces the file atomically
func (st *Store) write(s Settings) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(st.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), st.path); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}

	st.log.Debug("settings written", slog.Int("station", s.Station),
		slog.Int("brightness", s.Brightness), slog.Int("volume", s.Volume))
	return nil
}
