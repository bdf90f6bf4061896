// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"log/slog"

	"github.com/Thermoquad/radiocore/pkg/player"
)

// Available reports whether this build has audio output.
// Audio output on Linux requires cgo for ALSA.
const Available = false

var _ player.AudioEngine = (*Engine)(nil)

// Engine is a silent engine for builds without cgo. Every source fails to
// open, so the player stays stopped but the rest of the radio works.
type Engine struct {
	log *slog.Logger
}

// NewEngine creates a silent engine
func NewEngine(cfg Config, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{log: log.With(slog.String("component", "audio"))}
}

func (e *Engine) OpenStream(url string) error        { return ErrUnavailable }
func (e *Engine) OpenFile(path string) error         { return ErrUnavailable }
func (e *Engine) OpenSpeech(text, lang string) error { return ErrUnavailable }
func (e *Engine) SetVolume(level int)                {}
func (e *Engine) Stop()                              {}
func (e *Engine) Title() (string, bool)              { return "", false }
func (e *Engine) Finished() bool                     { return false }
func (e *Engine) Close() error                       { return nil }
