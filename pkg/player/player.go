// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package player implements the playback state machine of the radio.
//
// The Player decides which audio source is active; an AudioEngine does the
// decoding and output. A Player has a single owner (the control loop) and is
// not safe for concurrent use.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/Thermoquad/radiocore/pkg/station"
)

// Errors
var (
	ErrNotInitialized = errors.New("player not initialized")
	ErrAlreadyStopped = errors.New("player already stopped")
	ErrNotPlaying     = errors.New("player is not playing a station")
	ErrUnknownKey     = errors.New("no station on key")
	ErrNoStations     = errors.New("station list is empty")
	ErrStationIndex   = errors.New("station index out of range")
	ErrSwitchFailed   = errors.New("station switch failed")
)

// State is a position of the playback state machine
type State int

// Player states
const (
	StateUninitialized State = iota
	StateReady
	StatePlaying
	StatePlayingFile
	StatePlayingSpeech
	StateSwitching
	StateStopped
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateReady:
		return "READY"
	case StatePlaying:
		return "PLAYING"
	case StatePlayingFile:
		return "PLAYING_FILE"
	case StatePlayingSpeech:
		return "PLAYING_SPEECH"
	case StateSwitching:
		return "SWITCHING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// interjection reports whether s plays a file or speech
func (s State) interjection() bool {
	return s == StatePlayingFile || s == StatePlayingSpeech
}

// AudioEngine decodes and outputs one source at a time
type AudioEngine interface {
	// OpenStream replaces the current source with a network stream. On
	// error the previous source keeps playing.
	OpenStream(url string) error
	// OpenFile replaces the current source with a local audio file
	OpenFile(path string) error
	// OpenSpeech replaces the current source with synthesized speech
	OpenSpeech(text, lang string) error
	// SetVolume sets the output level 0..MaxVolume
	SetVolume(volume int)
	// Stop closes the current source
	Stop()
	// Title returns the stream title if it changed since the last call
	Title() (string, bool)
	// Finished reports once that a file or speech source has ended
	Finished() bool
}

// Volume limits
const (
	DefaultMaxVolume     = 21
	DefaultVolume        = 16
	DefaultTitleLength   = 96
	DefaultSpeechLang    = "de"
	DefaultInterjectFile = "gong.mp3"
)

// Config holds the player settings
type Config struct {
	MaxVolume      int
	Volume         int
	TitleLength    int
	SpeechLanguage string
}

// DefaultConfig returns the player defaults
func DefaultConfig() Config {
	return Config{
		MaxVolume:      DefaultMaxVolume,
		Volume:         DefaultVolume,
		TitleLength:    DefaultTitleLength,
		SpeechLanguage: DefaultSpeechLang,
	}
}

// Player is the playback state machine
type Player struct {
	cfg    Config
	log    *slog.Logger
	engine AudioEngine

	stations *station.List
	keys     station.Keys

	state      State
	lastState  State
	switchFrom State
	beforeJoin State

	current int
	next    int
	volume  int
	title   string

	stationChanged   bool
	interjectionDone bool
	speechPending    bool
}

// New creates an uninitialized player
func New(cfg Config, engine AudioEngine, log *slog.Logger) *Player {
	def := DefaultConfig()
	if cfg.MaxVolume <= 0 {
		cfg.MaxVolume = def.MaxVolume
	}
	if cfg.TitleLength <= 0 {
		cfg.TitleLength = def.TitleLength
	}
	if cfg.SpeechLanguage == "" {
		cfg.SpeechLanguage = def.SpeechLanguage
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Player{
		cfg:     cfg,
		log:     log.With(slog.String("component", "player")),
		engine:  engine,
		keys:    station.NewKeys(),
		current: station.NoStation,
		volume:  lo.Clamp(cfg.Volume, 0, cfg.MaxVolume),
	}
}

// Begin installs the station list and key map and mutes the engine:
// Uninitialized -> Ready
func (p *Player) Begin(stations *station.List, keys station.Keys) {
	p.stations = stations
	p.keys = keys
	p.title = ""
	p.engine.SetVolume(0)
	if p.state == StateUninitialized {
		p.setState(StateReady)
	}
}

// SetStations replaces the station list, keeping the current station if it
// still exists
func (p *Player) SetStations(stations *station.List, keys station.Keys) {
	p.stations = stations
	p.keys = keys
	if p.current >= stations.Len() {
		p.log.Warn("current station no longer in list", slog.Int("index", p.current))
		p.current = 0
		p.stationChanged = true
	}
}

// Stations returns the station list
func (p *Player) Stations() *station.List {
	return p.stations
}

// Keys returns the station key map
func (p *Player) Keys() station.Keys {
	return p.keys
}

// State returns the current state
func (p *Player) State() State {
	return p.state
}

// IsPlaying reports whether a station plays or is being switched to
func (p *Player) IsPlaying() bool {
	return p.state == StatePlaying || p.state == StateSwitching
}

// CurrentStation returns the index of the current station, or -1
func (p *Player) CurrentStation() int {
	return p.current
}

// SetCurrentStation selects the station without playing it
func (p *Player) SetCurrentStation(index int) error {
	if index < 0 || index >= p.stations.Len() {
		return fmt.Errorf("%w: %d of %d", ErrStationIndex, index, p.stations.Len())
	}
	p.current = index
	return nil
}

func (p *Player) setState(s State) {
	p.state = s
}

// ============================================================
// Commands
// ============================================================

// Play requests station index. Playing the current station again is a
// no-op; during a switch or an interjection the request is ignored.
func (p *Player) Play(index int) error {
	if index == p.current && p.IsPlaying() {
		return nil
	}

	switch p.state {
	case StateReady, StateStopped, StatePlaying:
		if p.stations.Len() == 0 {
			return ErrNoStations
		}
		if index < 0 || index >= p.stations.Len() {
			p.log.Warn("station index out of range, playing first station",
				slog.Int("index", index), slog.Int("stations", p.stations.Len()))
			index = 0
		}
		p.next = index
		p.switchFrom = p.state
		p.setState(StateSwitching)
		return nil

	case StateUninitialized:
		p.log.Warn("play called before Begin")
		return ErrNotInitialized

	default:
		return nil
	}
}

// PlayKey plays the station stored on a memory key
func (p *Player) PlayKey(key int) error {
	index := p.keys.StationIndex(key)
	p.log.Debug("play key", slog.Int("key", key), slog.Int("index", index))
	if index == station.NoStation {
		return fmt.Errorf("%w %d", ErrUnknownKey, key)
	}
	return p.Play(index)
}

// PlayStation opens station index immediately, bypassing the switch state
func (p *Player) PlayStation(index int) error {
	if p.state == StateUninitialized {
		return ErrNotInitialized
	}
	s, ok := p.stations.Lookup(index)
	if p.stations.Len() == 0 {
		return ErrNoStations
	}
	if !ok {
		p.log.Warn("station index out of range, playing first station", slog.Int("index", index))
		index = 0
	}

	p.engine.SetVolume(0)
	p.title = ""
	if err := p.engine.OpenStream(s.URL); err != nil {
		p.engine.Stop()
		p.setState(StateStopped)
		p.stationChanged = true
		return fmt.Errorf("%w: %s: %w", ErrSwitchFailed, s.Name, err)
	}

	p.current = index
	p.engine.SetVolume(p.volume)
	p.setState(StatePlaying)
	p.stationChanged = true
	p.log.Info("playing", slog.Int("index", index), slog.String("station", s.Name))
	return nil
}

// PlayFile interrupts playback with a local audio file
func (p *Player) PlayFile(path string) error {
	return p.interject(StatePlayingFile, func() error {
		return p.engine.OpenFile(path)
	})
}

// PlaySpeech interrupts playback with spoken text
func (p *Player) PlaySpeech(text string) error {
	return p.interject(StatePlayingSpeech, func() error {
		return p.engine.OpenSpeech(text, p.cfg.SpeechLanguage)
	})
}

func (p *Player) interject(target State, open func() error) error {
	if p.state == StateUninitialized {
		return ErrNotInitialized
	}
	// Chained interjections keep the state from before the first one
	if !p.state.interjection() {
		p.beforeJoin = p.state
	}
	_ = p.Stop()

	p.interjectionDone = false
	if err := open(); err != nil {
		p.log.Warn("interjection failed", slog.String("state", target.String()), slog.Any("error", err))
		return err
	}
	p.engine.SetVolume(p.volume)
	p.setState(target)
	return nil
}

// ResumeAfterFileOrSpeech restarts the station that played before the
// interjection. It reports false when nothing was playing; the finished
// source is then closed and the player is left stopped.
func (p *Player) ResumeAfterFileOrSpeech() (bool, error) {
	if p.beforeJoin != StatePlaying {
		if p.state.interjection() {
			_ = p.Stop()
		}
		return false, nil
	}
	p.beforeJoin = StateStopped
	return true, p.PlayStation(p.current)
}

// HasInterjectionEnded reports once that a file or speech source finished
func (p *Player) HasInterjectionEnded() bool {
	ended := p.interjectionDone
	p.interjectionDone = false
	return ended
}

// Stop mutes and closes the current source
func (p *Player) Stop() error {
	switch p.state {
	case StateSwitching, StatePlaying, StatePlayingFile, StatePlayingSpeech:
		p.engine.SetVolume(0)
		p.engine.Stop()
		p.stationChanged = true
		p.setState(StateStopped)
		return nil

	case StateReady, StateStopped:
		return ErrAlreadyStopped

	default:
		p.log.Warn("stop called before Begin")
		return ErrNotInitialized
	}
}

// Next plays the following station, wrapping at the end
func (p *Player) Next() error {
	return p.step(1)
}

// Previous plays the preceding station, wrapping at the start
func (p *Player) Previous() error {
	return p.step(-1)
}

func (p *Player) step(delta int) error {
	if !p.IsPlaying() {
		return ErrNotPlaying
	}
	n := p.stations.Len()
	if n == 0 {
		return ErrNoStations
	}
	current := max(p.current, 0)
	return p.Play(((current+delta)%n + n) % n)
}

// Run advances the state machine; call it once per control loop iteration.
// A failed switch keeps the previous source and is only logged.
func (p *Player) Run() {
	if p.state != p.lastState {
		p.log.Debug("state", slog.String("from", p.lastState.String()), slog.String("to", p.state.String()))
		p.lastState = p.state
	}

	switch p.state {
	case StatePlaying:
		if title, ok := p.engine.Title(); ok {
			p.SetTitleText(title)
		}

	case StatePlayingFile, StatePlayingSpeech:
		if p.engine.Finished() {
			p.interjectionDone = true
		}

	case StateSwitching:
		p.switchStation()
	}
}

func (p *Player) switchStation() {
	s, ok := p.stations.Lookup(p.next)
	if !ok {
		// The list shrank while switching
		p.next = 0
	}

	p.engine.SetVolume(0)
	p.title = ""
	err := p.engine.OpenStream(s.URL)
	if err == nil {
		p.current = p.next
		p.stationChanged = true
		p.setState(StatePlaying)
		p.engine.SetVolume(p.volume)
		p.log.Info("playing", slog.Int("index", p.current), slog.String("station", s.Name))
		return
	}

	p.log.LogAttrs(context.Background(), slog.LevelWarn, ErrSwitchFailed.Error(),
		slog.Int("index", p.next),
		slog.String("station", s.Name),
		slog.Int("current", p.current),
		slog.Any("error", err))

	if p.switchFrom == StatePlaying {
		// Previous source is still open
		p.setState(StatePlaying)
		p.engine.SetVolume(p.volume)
		return
	}
	p.setState(p.switchFrom)
}

// ============================================================
// Volume
// ============================================================

// SetVolume sets the user volume, clamped to 0..MaxVolume
func (p *Player) SetVolume(volume int) {
	p.volume = lo.Clamp(volume, 0, p.cfg.MaxVolume)
	p.log.Debug("volume", slog.Int("volume", p.volume))
	if p.state != StateSwitching {
		p.engine.SetVolume(p.volume)
	}
}

// ChangeVolume steps the volume by one
func (p *Player) ChangeVolume(up bool) {
	p.SetVolume(p.volume + lo.Ternary(up, 1, -1))
}

// Volume returns the user volume
func (p *Player) Volume() int {
	return p.volume
}

// MaxVolume returns the upper volume bound
func (p *Player) MaxVolume() int {
	return p.cfg.MaxVolume
}

// ============================================================
// Notifications
// ============================================================

// HasStationChanged reports once that the station or play state changed
func (p *Player) HasStationChanged() bool {
	changed := p.stationChanged
	p.stationChanged = false
	return changed
}

// TitleText returns the current stream title
func (p *Player) TitleText() string {
	return p.title
}

// SetTitleText stores a stream title, truncated to TitleLength bytes on a
// character boundary
func (p *Player) SetTitleText(title string) {
	if len(title) > p.cfg.TitleLength {
		cut := p.cfg.TitleLength
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	p.title = title
}

// SetSpeechPending marks that a speech announcement is waiting
func (p *Player) SetSpeechPending(pending bool) {
	p.speechPending = pending
}

// SpeechPending reports whether a speech announcement is waiting
func (p *Player) SpeechPending() bool {
	return p.speechPending
}
