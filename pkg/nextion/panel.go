// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nextion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
)

// Panel errors
var (
	ErrPageInactive = errors.New("page is not active")
	ErrPanelOff     = errors.New("panel is off")
	ErrValueTimeout = errors.New("no value received")
)

// Transport is the byte link to the panel (serial port or WebSocket bridge)
type Transport interface {
	io.Reader
	io.Writer
}

// Config holds the panel engine settings
type Config struct {
	BufferSize        int
	DebugLines        int
	BrightnessStep    int
	InitialBrightness int
	ResyncGap         time.Duration
}

// DefaultConfig returns the settings of the reference hardware
func DefaultConfig() Config {
	return Config{
		BufferSize:        DefaultBufferSize,
		DebugLines:        DefaultDebugLines,
		BrightnessStep:    DefaultBrightnessStep,
		InitialBrightness: BrightnessMax,
		ResyncGap:         DefaultResyncGap,
	}
}

// Panel drives the touch panel.
//
// Page state and outgoing commands are owned by the caller; a background
// reader assembles incoming frames and publishes the latest button event and
// the latest received value. Commands for a page are only written while that
// page is selected.
type Panel struct {
	tr    Transport
	cfg   Config
	log   *slog.Logger
	stats *Statistics
	now   func() time.Time

	writeMu sync.Mutex

	// page state, guarded by pageMu
	pageMu     sync.Mutex
	page       Page
	generation uint64
	debugLine  int
	brightness int

	// published by the reader, guarded by eventMu
	eventMu    sync.Mutex
	button     ButtonEvent
	key        int
	value      int32
	valueReady bool
	valueCh    chan struct{}

	started atomic.Bool
	off     atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewPanel creates a panel engine on the given transport
func NewPanel(tr Transport, cfg Config, log *slog.Logger) *Panel {
	def := DefaultConfig()
	if cfg.BufferSize <= terminatorRun {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.DebugLines <= 0 {
		cfg.DebugLines = def.DebugLines
	}
	if cfg.BrightnessStep <= 0 {
		cfg.BrightnessStep = def.BrightnessStep
	}
	if cfg.ResyncGap == 0 {
		cfg.ResyncGap = def.ResyncGap
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Panel{
		tr:         tr,
		cfg:        cfg,
		log:        log.With(slog.String("component", "panel")),
		stats:      NewStatistics(),
		now:        time.Now,
		page:       PageDebug,
		brightness: lo.Clamp(cfg.InitialBrightness, BrightnessMin, BrightnessMax),
		valueCh:    make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the frame reader and selects the debug page
func (p *Panel) Start() error {
	if p.off.Load() {
		return ErrPanelOff
	}
	if p.started.Swap(true) {
		return nil
	}
	go p.readLoop()

	p.log.Info("panel started", slog.Int("buffer_size", p.cfg.BufferSize))
	return p.SelectPage(PageDebug)
}

// Off stops the frame reader and drops pending button and value events;
// later commands fail with ErrPanelOff. A read blocked in the transport is not interrupted; the
// reader exits once it returns.
func (p *Panel) Off() {
	if p.off.Swap(true) {
		return
	}
	close(p.stop)

	if p.started.Load() {
		select {
		case <-p.done:
		case <-time.After(time.Second):
			p.log.Warn("panel reader still blocked in transport")
		}
	}

	p.eventMu.Lock()
	p.button = ButtonNone
	p.key = 0
	p.valueReady = false
	p.eventMu.Unlock()

	p.log.Info("panel is off")
}

// Statistics returns the link statistics
func (p *Panel) Statistics() *Statistics {
	return p.stats
}

// ============================================================
// Outgoing
// ============================================================

// write sends one complete command frame
func (p *Panel) write(cmd []byte) error {
	if p.off.Load() {
		return ErrPanelOff
	}

	p.writeMu.Lock()
	_, err := p.tr.Write(cmd)
	p.writeMu.Unlock()

	p.stats.RecordCommand(err)
	if err != nil {
		p.log.Warn("command failed", slog.String("cmd", FormatCommand(cmd)), slog.Any("error", err))
		return fmt.Errorf("failed to send %q: %w", FormatCommand(cmd), err)
	}
	p.log.LogAttrs(context.Background(), slog.LevelDebug, "command", slog.String("cmd", FormatCommand(cmd)))
	return nil
}

// Send writes an arbitrary command frame regardless of the current page
func (p *Panel) Send(cmd []byte) error {
	return p.write(cmd)
}

// SelectPage switches the panel to page. Handles obtained for the previous
// selection become stale.
func (p *Panel) SelectPage(page Page) error {
	p.pageMu.Lock()
	defer p.pageMu.Unlock()

	if err := p.write(NewPageCommand(page)); err != nil {
		return err
	}
	p.page = page
	p.generation++
	if page == PageDebug {
		p.debugLine = 0
	}
	p.log.Debug("page selected", slog.String("page", page.String()))
	return nil
}

// CurrentPage returns the tracked current page
func (p *Panel) CurrentPage() Page {
	p.pageMu.Lock()
	defer p.pageMu.Unlock()
	return p.page
}

// selection returns the current generation if page is selected
func (p *Panel) selection(page Page) uint64 {
	p.pageMu.Lock()
	defer p.pageMu.Unlock()
	if p.page != page {
		return 0
	}
	return p.generation
}

// onPage runs fn with the page lock held if the handle is still current
func (p *Panel) onPage(page Page, generation uint64, fn func() error) error {
	p.pageMu.Lock()
	defer p.pageMu.Unlock()

	if generation == 0 || p.page != page || p.generation != generation {
		p.stats.recordGated()
		return fmt.Errorf("%w: %s", ErrPageInactive, page)
	}
	return fn()
}

// SetBrightness sets the backlight (clamped to 0..100) and returns the
// previous value
func (p *Panel) SetBrightness(value int) (int, error) {
	p.pageMu.Lock()
	defer p.pageMu.Unlock()
	return p.setBrightness(value)
}

func (p *Panel) setBrightness(value int) (int, error) {
	previous := p.brightness
	p.brightness = lo.Clamp(value, BrightnessMin, BrightnessMax)
	p.log.Debug("brightness set", slog.Int("brightness", p.brightness))
	return previous, p.write(NewDimCommand(p.brightness))
}

// AdjustBrightness steps the backlight up or down and returns the new value
func (p *Panel) AdjustBrightness(brighter bool) (int, error) {
	p.pageMu.Lock()
	defer p.pageMu.Unlock()

	step := p.cfg.BrightnessStep
	if !brighter {
		step = -step
	}
	_, err := p.setBrightness(p.brightness + step)
	return p.brightness, err
}

// Brightness returns the last brightness sent
func (p *Panel) Brightness() int {
	p.pageMu.Lock()
	defer p.pageMu.Unlock()
	return p.brightness
}

// SetFuelLimits writes the global limit variables used by the limit dialog
func (p *Panel) SetFuelLimits(diesel, super int) error {
	if err := p.write(NewGlobalCommand(globalLimitDiesel, diesel)); err != nil {
		return err
	}
	return p.write(NewGlobalCommand(globalLimitSuper, super))
}

// SetFuelAlarm starts or stops the alarm animation of a price field
func (p *Panel) SetFuelAlarm(kind FuelKind, active bool) error {
	field, err := priceField(kind)
	if err != nil {
		return err
	}
	return p.write(NewClickCommand(field, active))
}

// RequestValue asks the panel for a global variable. Any value received
// before the request is discarded.
func (p *Panel) RequestValue(kind ValueKind) error {
	name, err := valueName(kind)
	if err != nil {
		return err
	}

	p.eventMu.Lock()
	p.valueReady = false
	select {
	case <-p.valueCh:
	default:
	}
	p.eventMu.Unlock()

	return p.write(NewGetCommand(name))
}

// ============================================================
// Incoming
// ============================================================

// ButtonEventStatus returns and clears the latest button event. The key is
// the 1-based station key for ButtonKey and 0 otherwise.
func (p *Panel) ButtonEventStatus() (ButtonEvent, int) {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()

	event, key := p.button, p.key
	p.button = ButtonNone
	if event != ButtonKey {
		key = 0
	}
	return event, key
}

// PollValue returns the received value without waiting
func (p *Panel) PollValue() (int32, bool) {
	p.eventMu.Lock()
	defer p.eventMu.Unlock()

	if !p.valueReady {
		return 0, false
	}
	p.valueReady = false
	return p.value, true
}

// ReceivedValue waits up to timeout for the value requested with
// RequestValue
func (p *Panel) ReceivedValue(ctx context.Context, timeout time.Duration) (int32, error) {
	if timeout <= 0 {
		timeout = DefaultValueTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if v, ok := p.PollValue(); ok {
			return v, nil
		}
		select {
		case <-p.valueCh:
		case <-timer.C:
			p.stats.recordValueTimeout()
			return 0, ErrValueTimeout
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// readLoop assembles frames until Off is called or the transport closes
func (p *Panel) readLoop() {
	defer close(p.done)

	asm := NewAssembler(p.cfg.BufferSize, p.cfg.ResyncGap)
	buf := make([]byte, 64)

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		n, err := p.tr.Read(buf)
		if err != nil {
			if isClosed(err) {
				p.log.Warn("panel transport closed", slog.Any("error", err))
				return
			}
			// Brief pause before retry on transient errors
			time.Sleep(10 * time.Millisecond)
			continue
		}

		at := p.now()
		for i := 0; i < n; i++ {
			data, err := asm.Push(buf[i], at)
			if err != nil {
				p.stats.RecordAssembly(err)
				p.log.Debug("frame discarded", slog.Any("error", err))
			}
			if data != nil {
				p.dispatch(data)
			}
		}
	}
}

// dispatch decodes one frame and publishes it
func (p *Panel) dispatch(data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		p.stats.RecordFrame(f, err)
		p.log.Debug("frame ignored", slog.String("raw", FormatHex(data)), slog.Any("error", err))
		return
	}

	p.eventMu.Lock()
	if p.off.Load() {
		p.eventMu.Unlock()
		return
	}
	switch f.Kind {
	case FrameButton:
		p.button = f.Button
		if f.Button == ButtonKey {
			p.key = f.Key
		}
	case FrameValue:
		p.value = int32(f.Value)
		p.valueReady = true
		select {
		case p.valueCh <- struct{}{}:
		default:
		}
	}
	p.eventMu.Unlock()
	p.stats.RecordFrame(f, nil)

	p.log.LogAttrs(context.Background(), slog.LevelDebug, "frame",
		slog.String("kind", f.Kind.String()),
		slog.String("button", f.Button.String()),
		slog.Int("key", f.Key),
		slog.Int("value", int(f.Value)))
}

// isClosed reports whether a read error is permanent
func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed)
}
