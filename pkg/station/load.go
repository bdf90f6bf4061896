// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoStations is returned for a station file without stations
var ErrNoStations = errors.New("station list is empty")

// fileFormat mirrors stations.json:
//
//	{"DefaultStationIndex": 0,
//	 "StationList": [{"name": "...", "key": "...", "mem": 1, "url": "..."}]}
type fileFormat struct {
	DefaultStationIndex int `json:"DefaultStationIndex"`
	StationList         []struct {
		Name string `json:"name"`
		Key  string `json:"key"`
		Mem  int    `json:"mem"`
		URL  string `json:"url"`
	} `json:"StationList"`
}

// Decode reads a station list in stations.json format
func Decode(r io.Reader) (*List, error) {
	var f fileFormat
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode station list: %w", err)
	}
	if len(f.StationList) == 0 {
		return nil, ErrNoStations
	}

	stations := make([]Station, 0, len(f.StationList))
	for i, s := range f.StationList {
		url := strings.TrimSpace(s.URL)
		if url == "" {
			return nil, fmt.Errorf("station %d (%q) has no url", i, s.Name)
		}
		if s.Mem < 0 || s.Mem >= NumberOfKeys {
			return nil, fmt.Errorf("station %d (%q) has key %d, want 0..%d", i, s.Name, s.Mem, NumberOfKeys-1)
		}
		name := s.Name
		if name == "" {
			name = url
		}
		stations = append(stations, Station{
			Name:    name,
			KeyName: s.Key,
			Key:     s.Mem,
			URL:     url,
		})
	}
	return NewList(stations, f.DefaultStationIndex), nil
}

// Load reads a station file
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open station file: %w", err)
	}
	defer f.Close()

	l, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}
