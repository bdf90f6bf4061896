// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build (linux && cgo) || windows || darwin

package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	"github.com/samber/lo"

	"github.com/Thermoquad/radiocore/pkg/player"
)

// Available reports whether this build has audio output
const Available = true

var _ player.AudioEngine = (*Engine)(nil)

// Engine plays one source at a time through the speaker
type Engine struct {
	cfg   Config
	log   *slog.Logger
	fetch *fetcher

	mu          sync.Mutex
	initialized bool
	level       int
	volume      *effects.Volume
	source      beep.StreamSeekCloser
	cancel      context.CancelFunc
	gen         uint64

	// Written from the speaker goroutine; never guarded by mu
	ended   atomic.Uint64
	titleMu sync.Mutex
	title   string
	fresh   bool
}

// NewEngine creates an engine. The speaker is initialized on first use.
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		cfg:   cfg,
		log:   log.With(slog.String("component", "audio")),
		fetch: newFetcher(cfg),
	}
}

// OpenStream connects to an MP3 stream. The current source keeps playing
// until the new one is ready.
func (e *Engine) OpenStream(url string) error {
	ctx, cancel := context.WithCancel(context.Background())

	e.setTitle("", false)
	s, err := e.fetch.open(ctx, url, func(title string) { e.setTitle(title, true) })
	if err != nil {
		cancel()
		return err
	}
	switch s.contentType {
	case "audio/aac", "audio/aacp", "audio/ogg", "application/ogg", "audio/flac":
		s.Close()
		cancel()
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, s.contentType)
	}

	dec, format, err := mp3.Decode(s)
	if err != nil {
		s.Close()
		cancel()
		return fmt.Errorf("failed to decode stream %s: %w", url, err)
	}
	e.log.Debug("stream open", slog.String("url", url), slog.Int("rate", int(format.SampleRate)))
	return e.play(dec, format, cancel)
}

// OpenFile plays a local MP3 or WAV file
func (e *Engine) OpenFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}

	var (
		dec    beep.StreamSeekCloser
		format beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		dec, format, err = mp3.Decode(f)
	case ".wav":
		dec, format, err = wav.Decode(f)
	default:
		f.Close()
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return e.play(dec, format, func() {})
}

// OpenSpeech speaks text in lang using the configured speech service
func (e *Engine) OpenSpeech(text, lang string) error {
	u, err := speechURL(e.cfg.SpeechURL, text, lang)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s, err := e.fetch.open(ctx, u, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("speech: %w", err)
	}
	dec, format, err := mp3.Decode(s)
	if err != nil {
		s.Close()
		cancel()
		return fmt.Errorf("failed to decode speech: %w", err)
	}
	return e.play(dec, format, cancel)
}

func (e *Engine) play(dec beep.StreamSeekCloser, format beep.Format, cancel context.CancelFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		if err := speaker.Init(e.cfg.SampleRate, e.cfg.SampleRate.N(e.cfg.BufferTime)); err != nil {
			dec.Close()
			cancel()
			return fmt.Errorf("failed to initialize speaker: %w", err)
		}
		e.initialized = true
	}

	e.stopLocked()
	e.gen++
	gen := e.gen

	var s beep.Streamer = dec
	if format.SampleRate != e.cfg.SampleRate {
		s = beep.Resample(DefaultResampleLevel, format.SampleRate, e.cfg.SampleRate, dec)
	}
	v, silent := Gain(e.level, e.cfg.MaxVolume)
	e.volume = &effects.Volume{Streamer: s, Base: 2, Volume: v, Silent: silent}
	e.source = dec
	e.cancel = cancel

	speaker.Play(beep.Seq(e.volume, beep.Callback(func() {
		e.ended.Store(gen)
		if err := dec.Err(); err != nil {
			e.log.Warn("source ended with error", slog.Any("error", err))
		}
	})))
	return nil
}

// SetVolume sets the output level 0..MaxVolume
func (e *Engine) SetVolume(level int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.level = lo.Clamp(level, 0, e.cfg.MaxVolume)
	if e.volume == nil {
		return
	}
	v, silent := Gain(e.level, e.cfg.MaxVolume)
	speaker.Lock()
	e.volume.Volume = v
	e.volume.Silent = silent
	speaker.Unlock()
}

// Stop closes the current source
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if e.initialized {
		speaker.Clear()
	}
	if e.source != nil {
		if err := e.source.Close(); err != nil {
			e.log.Debug("close source", slog.Any("error", err))
		}
		e.source = nil
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.volume = nil
}

// Title returns the stream title if it changed since the last call
func (e *Engine) Title() (string, bool) {
	e.titleMu.Lock()
	defer e.titleMu.Unlock()
	fresh := e.fresh
	e.fresh = false
	return e.title, fresh
}

func (e *Engine) setTitle(title string, fresh bool) {
	e.titleMu.Lock()
	defer e.titleMu.Unlock()
	if title == e.title && fresh {
		return
	}
	e.title = title
	e.fresh = fresh
}

// Finished reports once that the current source played to its end
func (e *Engine) Finished() bool {
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()
	return gen != 0 && e.ended.CompareAndSwap(gen, 0)
}

// Close stops playback and releases the speaker
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	if e.initialized {
		speaker.Close()
		e.initialized = false
	}
	return nil
}
