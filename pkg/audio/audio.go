// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package audio is the beep backed audio engine of the radio. It plays MP3
// network streams with ICY title metadata, local audio files and speech
// fetched from a text-to-speech URL.
package audio

import (
	"errors"
	"math"
	"time"

	"github.com/gopxl/beep/v2"
)

// Errors
var (
	ErrUnavailable       = errors.New("audio output not available in this build")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptyPlaylist     = errors.New("playlist has no stream entries")
)

// Defaults
const (
	DefaultSampleRate    = beep.SampleRate(44100)
	DefaultBufferTime    = 100 * time.Millisecond
	DefaultConnectTime   = 10 * time.Second
	DefaultMaxVolume     = 21
	DefaultSpeechURL     = "https://translate.google.com/translate_tts?ie=UTF-8&client=tw-ob"
	DefaultUserAgent     = "radiocore/1.0"
	DefaultResampleLevel = 4

	// volumeSpan is the attenuation in powers of two between level 1 and
	// full scale
	volumeSpan = 6.0
)

// Config holds the engine settings
type Config struct {
	SampleRate  beep.SampleRate
	BufferTime  time.Duration
	ConnectTime time.Duration
	MaxVolume   int
	SpeechURL   string
	UserAgent   string
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		SampleRate:  DefaultSampleRate,
		BufferTime:  DefaultBufferTime,
		ConnectTime: DefaultConnectTime,
		MaxVolume:   DefaultMaxVolume,
		SpeechURL:   DefaultSpeechURL,
		UserAgent:   DefaultUserAgent,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.BufferTime <= 0 {
		c.BufferTime = def.BufferTime
	}
	if c.ConnectTime <= 0 {
		c.ConnectTime = def.ConnectTime
	}
	if c.MaxVolume <= 0 {
		c.MaxVolume = def.MaxVolume
	}
	if c.SpeechURL == "" {
		c.SpeechURL = def.SpeechURL
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	return c
}

// Gain maps a volume level 0..max onto the exponent of an effects.Volume
// with base 2. Level 0 is silent; max is unity gain.
func Gain(level, max int) (volume float64, silent bool) {
	if level <= 0 || max <= 0 {
		return 0, true
	}
	if level >= max {
		return 0, false
	}
	return -volumeSpan * float64(max-level) / float64(max-1), false
}

// Decibels returns the attenuation of a level in dB, for display
func Decibels(level, max int) float64 {
	v, silent := Gain(level, max)
	if silent {
		return math.Inf(-1)
	}
	return 20 * v * math.Log10(2)
}
