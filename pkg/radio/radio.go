// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package radio ties the encoder, the panel, the clock and the player
// together into the control loop of the radio.
package radio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Thermoquad/radiocore/pkg/clock"
	"github.com/Thermoquad/radiocore/pkg/encoder"
	"github.com/Thermoquad/radiocore/pkg/nextion"
	"github.com/Thermoquad/radiocore/pkg/player"
	"github.com/Thermoquad/radiocore/pkg/settings"
	"github.com/Thermoquad/radiocore/pkg/station"
)

// Defaults
const (
	DefaultLoopInterval      = 10 * time.Millisecond
	DefaultBrightnessWhenOff = 10
	DefaultStartPage         = nextion.PageClock
)

// Config holds the control loop settings
type Config struct {
	LoopInterval      time.Duration
	StartPage         nextion.Page
	BrightnessWhenOff int
	ValueTimeout      time.Duration
	// ChimeFile is played at every full hour while a station plays; empty
	// disables the chime
	ChimeFile string
	Version   string
}

// DefaultConfig returns the control loop defaults
func DefaultConfig() Config {
	return Config{
		LoopInterval:      DefaultLoopInterval,
		StartPage:         DefaultStartPage,
		BrightnessWhenOff: DefaultBrightnessWhenOff,
		ValueTimeout:      nextion.DefaultValueTimeout,
	}
}

// Parts are the components the radio drives. Store and Stations are
// optional.
type Parts struct {
	Encoder  *encoder.Decoder
	Panel    *nextion.Panel
	Clock    *clock.Clock
	Player   *player.Player
	Store    *settings.Store
	Stations <-chan *station.List
}

// Status is a snapshot of the radio for observers on other goroutines
type Status struct {
	State      player.State
	Station    string
	StationIdx int
	Title      string
	Volume     int
	Page       nextion.Page
	Brightness int
	Time       time.Time
	Stats      nextion.Counters
	Stations   *station.List
}

// Radio is the control loop. Step and Run must be called from a single
// goroutine; Status, Speak and Select may be called from any goroutine.
type Radio struct {
	cfg Config
	log *slog.Logger

	enc      *encoder.Decoder
	panel    *nextion.Panel
	clock    *clock.Clock
	player   *player.Player
	store    *settings.Store
	stations <-chan *station.List

	speech   chan string
	requests chan int

	brightness  int
	lastTitle   string
	clockSynced bool
	lastChime   int

	statusMu sync.Mutex
	status   Status
}

// New creates the radio
func New(cfg Config, parts Parts, log *slog.Logger) *Radio {
	def := DefaultConfig()
	if cfg.LoopInterval <= 0 {
		cfg.LoopInterval = def.LoopInterval
	}
	if cfg.ValueTimeout <= 0 {
		cfg.ValueTimeout = def.ValueTimeout
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Radio{
		cfg:       cfg,
		log:       log.With(slog.String("component", "radio")),
		enc:       parts.Encoder,
		panel:     parts.Panel,
		clock:     parts.Clock,
		player:    parts.Player,
		store:     parts.Store,
		stations:  parts.Stations,
		speech:    make(chan string, 4),
		requests:  make(chan int, 1),
		lastChime: -1,
	}
}

// Start brings the panel up, restores the stored settings and shows the
// start page. The player must have been given its station list.
func (r *Radio) Start() error {
	if err := r.panel.Start(); err != nil {
		return fmt.Errorf("failed to start panel: %w", err)
	}

	debug := r.panel.Debug()
	debug.Printf("radiocore %s", r.cfg.Version)
	debug.Printf("%d stations", r.player.Stations().Len())

	s := settings.Defaults()
	if r.store != nil {
		s = r.store.Current()
	}

	r.brightness = s.Brightness
	if _, err := r.panel.SetBrightness(min(r.cfg.BrightnessWhenOff, s.Brightness)); err != nil {
		return err
	}
	if err := r.panel.SetFuelLimits(s.LimitDiesel, s.LimitSuper); err != nil {
		return err
	}
	r.player.SetVolume(s.Volume)

	index := s.StationOr(r.player.Stations().DefaultIndex())
	if err := r.player.SetCurrentStation(index); err != nil {
		r.log.Warn("stored station not in list", slog.Int("index", index))
		_ = r.player.SetCurrentStation(r.player.Stations().DefaultIndex())
	}
	debug.Printf("station %d: %s", r.player.CurrentStation(), r.player.Stations().Get(r.player.CurrentStation()).Name)

	if err := r.showPage(r.cfg.StartPage); err != nil {
		return err
	}
	r.publish()
	return nil
}

// Run steps the loop until ctx is cancelled, then shuts the parts down
func (r *Radio) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.LoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return nil
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

func (r *Radio) shutdown() {
	if r.player.IsPlaying() {
		_ = r.player.Stop()
	}
	r.clock.Off()
	r.panel.Off()
	r.log.Info("radio off")
}

// Speak queues a speech announcement. It reports false if the queue is full.
func (r *Radio) Speak(text string) bool {
	select {
	case r.speech <- text:
		return true
	default:
		return false
	}
}

// Select queues playing station index. It reports false if a request is
// already pending.
func (r *Radio) Select(index int) bool {
	select {
	case r.requests <- index:
		return true
	default:
		return false
	}
}

// Status returns the latest snapshot
func (r *Radio) Status() Status {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()
	return r.status
}

// Step runs one iteration of the control loop
func (r *Radio) Step(ctx context.Context) {
	r.handleEncoder()
	r.handleButton(ctx)
	r.handleClock()
	r.handleStations()
	r.handleRequest()
	r.handleSpeech()
	r.handlePlayer()
	r.publish()
}

// ============================================================
// Inputs
// ============================================================

func (r *Radio) handleEncoder() {
	switch ev := r.enc.EventStatus(); ev {
	case encoder.EventClick:
		r.togglePlay()

	case encoder.EventLongClick:
		r.announceTime()

	case encoder.EventTurnLeft, encoder.EventTurnRight:
		up := ev == encoder.EventTurnRight
		ticks := r.enc.Ticks()
		for range max(1, lo.Ternary(ticks < 0, -ticks, ticks)) {
			if r.player.IsPlaying() {
				r.player.ChangeVolume(up)
			} else {
				r.adjustBrightness(up)
			}
		}
		if r.player.IsPlaying() {
			r.saveSetting("volume", func(st *settings.Store) error { return st.SetVolume(r.player.Volume()) })
		}
	}
}

func (r *Radio) handleButton(ctx context.Context) {
	ev, key := r.panel.ButtonEventStatus()
	if ev == nextion.ButtonNone {
		return
	}
	r.log.Debug("panel button", slog.String("event", ev.String()), slog.Int("key", key))

	switch ev {
	case nextion.ButtonKey:
		if err := r.player.PlayKey(key); err != nil {
			r.log.Warn("key not playable", slog.Int("key", key), slog.Any("error", err))
			return
		}
		r.dim(false)
		_ = r.showPage(nextion.PagePlayer)

	case nextion.ButtonPrevious, nextion.ButtonNext:
		var err error
		if ev == nextion.ButtonNext {
			err = r.player.Next()
		} else {
			err = r.player.Previous()
		}
		if errors.Is(err, player.ErrNotPlaying) {
			r.log.Debug("station step ignored while stopped")
		}

	case nextion.ButtonDark, nextion.ButtonBright:
		r.adjustBrightness(ev == nextion.ButtonBright)

	case nextion.ButtonLeft, nextion.ButtonRight:
		r.cyclePage(ev == nextion.ButtonRight)

	case nextion.ButtonMiddle:
		r.togglePlay()

	case nextion.ButtonLimits:
		r.readFuelLimits(ctx)
	}
}

func (r *Radio) handleClock() {
	if r.clock.SourceRefreshEvent() {
		r.clock.ForceUpdate()
		r.clockSynced = false
	}
	if r.clock.DataRefreshEvent() {
		// Keep the panel globals in step after a panel reset
		s := r.currentSettings()
		if err := r.panel.SetFuelLimits(s.LimitDiesel, s.LimitSuper); err != nil {
			r.log.Warn("fuel limits not sent", slog.Any("error", err))
		}
	}
	if !r.clock.SecondEvent() {
		return
	}

	r.updateClockPage()

	if r.cfg.ChimeFile != "" && r.clock.Minute() == 0 && r.clock.Second() == 0 &&
		r.clock.Hour() != r.lastChime && r.player.State() == player.StatePlaying {
		r.lastChime = r.clock.Hour()
		if err := r.player.PlayFile(r.cfg.ChimeFile); err != nil {
			r.log.Warn("chime failed", slog.Any("error", err))
			r.resume()
		}
	}
}

func (r *Radio) handleStations() {
	if r.stations == nil {
		return
	}
	select {
	case l := <-r.stations:
		r.player.SetStations(l, station.KeysFor(l))
		r.panel.Debug().Printf("%d stations reloaded", l.Len())
		r.refreshPlayerPage()
	default:
	}
}

func (r *Radio) handleRequest() {
	select {
	case index := <-r.requests:
		if err := r.player.Play(index); err != nil {
			r.log.Warn("station not playable", slog.Int("index", index), slog.Any("error", err))
			return
		}
		r.dim(false)
		_ = r.showPage(nextion.PagePlayer)
	default:
	}
}

func (r *Radio) handleSpeech() {
	select {
	case text := <-r.speech:
		r.player.SetSpeechPending(true)
		if err := r.player.PlaySpeech(text); err != nil {
			r.log.Warn("speech failed", slog.Any("error", err))
			r.player.SetSpeechPending(false)
			r.resume()
		}
	default:
	}
}

func (r *Radio) handlePlayer() {
	r.player.Run()

	if r.player.HasInterjectionEnded() {
		r.player.SetSpeechPending(false)
		r.resume()
	}

	if r.player.HasStationChanged() {
		r.refreshPlayerPage()
		if r.player.State() == player.StatePlaying {
			r.saveSetting("station", func(st *settings.Store) error { return st.SetStation(r.player.CurrentStation()) })
		}
	}

	if title := r.player.TitleText(); title != r.lastTitle {
		r.lastTitle = title
		if err := r.panel.Player().SetTitle(title); err != nil && !errors.Is(err, nextion.ErrPageInactive) {
			r.log.Warn("title not shown", slog.Any("error", err))
		}
	}
}

// ============================================================
// Actions
// ============================================================

func (r *Radio) togglePlay() {
	if r.player.IsPlaying() {
		if err := r.player.Stop(); err != nil {
			r.log.Warn("stop failed", slog.Any("error", err))
		}
		_ = r.showPage(nextion.PageClock)
		r.dim(true)
		return
	}

	if err := r.player.Play(max(r.player.CurrentStation(), 0)); err != nil {
		r.log.Warn("play failed", slog.Any("error", err))
		return
	}
	r.dim(false)
	_ = r.showPage(nextion.PagePlayer)
}

func (r *Radio) resume() {
	resumed, err := r.player.ResumeAfterFileOrSpeech()
	if err != nil {
		r.log.Warn("resume failed", slog.Any("error", err))
	}
	r.log.Debug("interjection over", slog.Bool("resumed", resumed))
}

func (r *Radio) announceTime() {
	text := fmt.Sprintf("Es ist %d Uhr %d", r.clock.Hour(), r.clock.Minute())
	if !r.Speak(text) {
		r.log.Debug("speech queue full")
	}
}

func (r *Radio) adjustBrightness(up bool) {
	v, err := r.panel.AdjustBrightness(up)
	if err != nil {
		r.log.Warn("brightness not set", slog.Any("error", err))
		return
	}
	r.brightness = v
	r.saveSetting("brightness", func(st *settings.Store) error { return st.SetBrightness(v) })
}

// dim lowers the panel while the radio is off and restores it afterwards
func (r *Radio) dim(off bool) {
	target := lo.Ternary(off, min(r.cfg.BrightnessWhenOff, r.brightness), r.brightness)
	if target == r.panel.Brightness() {
		return
	}
	if _, err := r.panel.SetBrightness(target); err != nil {
		r.log.Warn("brightness not set", slog.Any("error", err))
	}
}

func (r *Radio) readFuelLimits(ctx context.Context) {
	diesel, err := r.requestValue(ctx, nextion.ValueLimitDiesel)
	if err != nil {
		r.log.Warn("diesel limit not received", slog.Any("error", err))
		return
	}
	super, err := r.requestValue(ctx, nextion.ValueLimitSuper)
	if err != nil {
		r.log.Warn("super limit not received", slog.Any("error", err))
		return
	}
	r.log.Info("fuel limits", slog.Int("diesel", diesel), slog.Int("super", super))
	r.saveSetting("fuel limits", func(st *settings.Store) error { return st.SetFuelLimits(diesel, super) })
}

func (r *Radio) requestValue(ctx context.Context, kind nextion.ValueKind) (int, error) {
	if err := r.panel.RequestValue(kind); err != nil {
		return 0, err
	}
	v, err := r.panel.ReceivedValue(ctx, r.cfg.ValueTimeout)
	return int(v), err
}

var pageCycle = []nextion.Page{nextion.PageClock, nextion.PagePlayer, nextion.PageFuel}

func (r *Radio) cyclePage(forward bool) {
	i := lo.IndexOf(pageCycle, r.panel.CurrentPage())
	if i < 0 {
		i = 0
	}
	n := len(pageCycle)
	next := pageCycle[((i+lo.Ternary(forward, 1, -1))%n+n)%n]
	if err := r.showPage(next); err != nil {
		r.log.Warn("page not selected", slog.Any("error", err))
	}
}

// ============================================================
// Pages
// ============================================================

func (r *Radio) showPage(page nextion.Page) error {
	if r.panel.CurrentPage() == page {
		return nil
	}
	if err := r.panel.SelectPage(page); err != nil {
		return err
	}
	switch page {
	case nextion.PageClock:
		r.clockSynced = false
		r.updateClockPage()
	case nextion.PagePlayer:
		r.refreshPlayerPage()
	}
	return nil
}

func (r *Radio) updateClockPage() {
	page := r.panel.Clock()
	var err error
	if !r.clockSynced || r.clock.Second() == 0 {
		err = page.SetTime(r.clock.Hour(), r.clock.Minute(), r.clock.Second(), r.clock.Date(), r.clock.Weekday())
		r.clockSynced = err == nil
	} else {
		err = page.IncrementSecond()
	}
	if err != nil && !errors.Is(err, nextion.ErrPageInactive) {
		r.log.Warn("clock page not updated", slog.Any("error", err))
	}
}

func (r *Radio) refreshPlayerPage() {
	page := r.panel.Player()
	stations := r.player.Stations()
	keys := r.player.Keys()
	current := r.player.CurrentStation()

	name := ""
	if current >= 0 {
		name = stations.Get(current).Name
	}
	err := errors.Join(
		page.SetStation(name),
		page.SetTitle(r.player.TitleText()),
	)
	for key := 1; key < station.NumberOfKeys; key++ {
		label := ""
		if idx := keys.StationIndex(key); idx != station.NoStation {
			label = stations.Get(idx).KeyName
		}
		err = errors.Join(err,
			page.SetKeyText(key, label),
			page.ActivateKey(key, r.player.IsPlaying() && key == keys.KeyOf(current)))
	}
	r.lastTitle = r.player.TitleText()

	if err != nil && !errors.Is(err, nextion.ErrPageInactive) {
		r.log.Warn("player page not updated", slog.Any("error", err))
	}
}

// ============================================================
// Settings and status
// ============================================================

func (r *Radio) currentSettings() settings.Settings {
	if r.store == nil {
		return settings.Defaults()
	}
	return r.store.Current()
}

func (r *Radio) saveSetting(what string, fn func(*settings.Store) error) {
	if r.store == nil {
		return
	}
	if err := fn(r.store); err != nil {
		r.log.Warn("setting not saved", slog.String("setting", what), slog.Any("error", err))
	}
}

func (r *Radio) publish() {
	current := r.player.CurrentStation()
	st := Status{
		State:      r.player.State(),
		StationIdx: current,
		Title:      r.player.TitleText(),
		Volume:     r.player.Volume(),
		Page:       r.panel.CurrentPage(),
		Brightness: r.panel.Brightness(),
		Time:       r.clock.Now(),
		Stats:      r.panel.Statistics().Snapshot(),
		Stations:   r.player.Stations(),
	}
	if current >= 0 {
		st.Station = r.player.Stations().Get(current).Name
	}

	r.statusMu.Lock()
	r.status = st
	r.statusMu.Unlock()
}
