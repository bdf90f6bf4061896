// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Default timing values
const (
	DefaultDebounce  = 5 * time.Millisecond
	DefaultLongPress = 2000 * time.Millisecond
)

// Config describes the GPIO wiring and timing of the encoder
type Config struct {
	Chip      string
	CLK       int
	DT        int
	SW        int
	Debounce  time.Duration
	LongPress time.Duration
}

// DefaultConfig returns the wiring of the reference hardware
func DefaultConfig() Config {
	return Config{
		Chip:      "gpiochip0",
		CLK:       25,
		DT:        26,
		SW:        27,
		Debounce:  DefaultDebounce,
		LongPress: DefaultLongPress,
	}
}

// GPIO feeds a Decoder from three pulled-up, both-edge GPIO lines
type GPIO struct {
	dec    *Decoder
	turn   *gpiocdev.Lines
	sw     *gpiocdev.Line
	cfg    Config
	log    *slog.Logger
	clk    atomic.Bool
	dt     atomic.Bool
	closed atomic.Bool
}

// OpenGPIO requests the encoder lines and arms the event handlers
func OpenGPIO(cfg Config, dec *Decoder, log *slog.Logger) (*GPIO, error) {
	g := &GPIO{dec: dec, cfg: cfg, log: log}

	turn, err := gpiocdev.RequestLines(cfg.Chip, []int{cfg.CLK, cfg.DT},
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(g.onTurn))
	if err != nil {
		return nil, fmt.Errorf("failed to request rotation lines %d/%d on %s: %w", cfg.CLK, cfg.DT, cfg.Chip, err)
	}

	// Seed line levels before the first edge arrives
	values := make([]int, 2)
	if err := turn.Values(values); err != nil {
		turn.Close()
		return nil, fmt.Errorf("failed to read rotation lines: %w", err)
	}
	g.clk.Store(values[0] != 0)
	g.dt.Store(values[1] != 0)
	dec.Seed(values[0] != 0, values[1] != 0)
	g.turn = turn

	sw, err := gpiocdev.RequestLine(cfg.Chip, cfg.SW,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(g.onSwitch))
	if err != nil {
		turn.Close()
		return nil, fmt.Errorf("failed to request switch line %d on %s: %w", cfg.SW, cfg.Chip, err)
	}
	g.sw = sw

	log.LogAttrs(context.Background(), slog.LevelInfo, "encoder armed",
		slog.String("chip", cfg.Chip),
		slog.Int("clk", cfg.CLK),
		slog.Int("dt", cfg.DT),
		slog.Int("sw", cfg.SW))
	return g, nil
}

// onTurn runs in the line watcher goroutine
func (g *GPIO) onTurn(evt gpiocdev.LineEvent) {
	if g.closed.Load() {
		return
	}
	level := evt.Type == gpiocdev.LineEventRisingEdge
	switch evt.Offset {
	case g.cfg.CLK:
		g.clk.Store(level)
	case g.cfg.DT:
		g.dt.Store(level)
	default:
		return
	}
	g.dec.HandleTurn(g.clk.Load(), g.dt.Load())
}

// onSwitch runs in the line watcher goroutine.
// The switch pulls the line low while pressed.
func (g *GPIO) onSwitch(evt gpiocdev.LineEvent) {
	if g.closed.Load() {
		return
	}
	g.dec.HandleSwitch(evt.Type == gpiocdev.LineEventFallingEdge, evt.Timestamp)
}

// Close releases the lines and clears any pending events
func (g *GPIO) Close() error {
	if g.closed.Swap(true) {
		return nil
	}
	err := errors.Join(g.turn.Close(), g.sw.Close())
	g.dec.Reset()
	g.log.Info("encoder disarmed")
	return err
}
