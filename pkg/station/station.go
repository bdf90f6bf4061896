// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package station holds the radio station list and the station memory keys.
package station

import (
	"fmt"
)

// NumberOfKeys is the number of key slots; slot 0 means "not on a key", so
// the panel shows keys 1..NumberOfKeys-1
const NumberOfKeys = 6

// NoStation is returned for a key without a station
const NoStation = -1

// Station is one web radio station
type Station struct {
	Name    string // full name shown while playing
	KeyName string // short label for the station key
	Key     int    // memory key 1..NumberOfKeys-1, 0 if not on a key
	URL     string // stream URL
}

// List is the ordered station list
type List struct {
	stations     []Station
	defaultIndex int
}

// NewList creates a list. An out-of-range default index selects station 0.
func NewList(stations []Station, defaultIndex int) *List {
	l := &List{stations: append([]Station(nil), stations...)}
	if defaultIndex >= 0 && defaultIndex < len(stations) {
		l.defaultIndex = defaultIndex
	}
	return l
}

// Len returns the number of stations
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.stations)
}

// DefaultIndex returns the station played when nothing was stored
func (l *List) DefaultIndex() int {
	return l.defaultIndex
}

// Lookup returns station i. An out-of-range index yields station 0 and
// false; an empty list yields a zero Station and false.
func (l *List) Lookup(i int) (Station, bool) {
	if l.Len() == 0 {
		return Station{}, false
	}
	if i < 0 || i >= len(l.stations) {
		return l.stations[0], false
	}
	return l.stations[i], true
}

// Get returns station i, degrading to station 0 when out of range
func (l *List) Get(i int) Station {
	s, _ := l.Lookup(i)
	return s
}

// All returns a copy of the stations
func (l *List) All() []Station {
	if l == nil {
		return nil
	}
	return append([]Station(nil), l.stations...)
}

// Keys maps memory keys to station indices
type Keys [NumberOfKeys]int

// NewKeys returns a key map with every key unassigned
func NewKeys() Keys {
	var k Keys
	for i := range k {
		k[i] = NoStation
	}
	return k
}

// KeysFor builds the key map from the stations' Key fields. When two
// stations claim the same key the later one wins.
func KeysFor(l *List) Keys {
	k := NewKeys()
	for i, s := range l.All() {
		if s.Key > 0 && s.Key < NumberOfKeys {
			k[s.Key] = i
		}
	}
	return k
}

// Set assigns a station index to a key
func (k *Keys) Set(key, index int) error {
	if key < 1 || key >= NumberOfKeys {
		return fmt.Errorf("station key %d out of range 1..%d", key, NumberOfKeys-1)
	}
	k[key] = index
	return nil
}

// StationIndex returns the station on key, or NoStation
func (k Keys) StationIndex(key int) int {
	if key < 1 || key >= NumberOfKeys {
		return NoStation
	}
	return k[key]
}

// KeyOf returns the key a station index is stored on, or 0
func (k Keys) KeyOf(index int) int {
	for key := 1; key < NumberOfKeys; key++ {
		if k[key] == index {
			return key
		}
	}
	return 0
}
