// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radiocore/pkg/audio"
	"github.com/Thermoquad/radiocore/pkg/clock"
	"github.com/Thermoquad/radiocore/pkg/encoder"
	"github.com/Thermoquad/radiocore/pkg/nextion"
	"github.com/Thermoquad/radiocore/pkg/player"
	"github.com/Thermoquad/radiocore/pkg/radio"
	"github.com/Thermoquad/radiocore/pkg/settings"
	"github.com/Thermoquad/radiocore/pkg/station"
)

// radioOptions are the flags shared by run and console
type radioOptions struct {
	stationsFile string
	settingsFile string

	noGPIO    bool
	gpioChip  string
	clkLine   int
	dtLine    int
	swLine    int
	longPress time.Duration

	debugLines int
	startPage  string
	chimeFile  string
	timezone   string

	speechLang string
	speechURL  string
}

var runOpts radioOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the radio",
	Long: `Run the radio control loop.

The rotary encoder starts and stops playback with a click, changes the volume
(or the panel brightness while stopped) when turned and announces the time on
a long click. The panel's station keys, arrows and brightness buttons work as
on the panel layout.

The station list is reloaded whenever the stations file changes. The current
station, volume, brightness and fuel limits are kept in the settings file.

Stop with Ctrl+C.`,
	RunE: runRadio,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRadioFlags(runCmd, &runOpts)
}

func addRadioFlags(c *cobra.Command, o *radioOptions) {
	def := encoder.DefaultConfig()
	f := c.Flags()

	f.StringVar(&o.stationsFile, "stations", "stations.json", "Station list file")
	f.StringVar(&o.settingsFile, "settings", "settings.cbor", "Settings file")

	f.BoolVar(&o.noGPIO, "no-gpio", false, "Run without the rotary encoder")
	f.StringVar(&o.gpioChip, "gpio-chip", def.Chip, "GPIO chip of the encoder")
	f.IntVar(&o.clkLine, "clk", def.CLK, "Encoder CLK line offset")
	f.IntVar(&o.dtLine, "dt", def.DT, "Encoder DT line offset")
	f.IntVar(&o.swLine, "sw", def.SW, "Encoder switch line offset")
	f.DurationVar(&o.longPress, "long-press", def.LongPress, "Hold time of a long click")

	f.IntVar(&o.debugLines, "debug-lines", nextion.DefaultDebugLines, "Lines of the panel debug page")
	f.StringVar(&o.startPage, "start-page", "clock", "Page shown after startup (debug, player, clock, fuel)")
	f.StringVar(&o.chimeFile, "chime", "", "Audio file played at every full hour (empty: off)")
	f.StringVar(&o.timezone, "timezone", clock.DefaultTimezone, "Time zone of the clock page")

	f.StringVar(&o.speechLang, "speech-lang", player.DefaultSpeechLang, "Language of announcements")
	f.StringVar(&o.speechURL, "speech-url", audio.DefaultSpeechURL, "Text-to-speech service URL")
}

// radioRig is a started radio with everything it owns
type radioRig struct {
	radio    *radio.Radio
	decoder  *encoder.Decoder
	connInfo string
	closers  []func() error
}

func (rr *radioRig) close() {
	for i := len(rr.closers) - 1; i >= 0; i-- {
		if err := rr.closers[i](); err != nil {
			slog.Debug("close", slog.Any("error", err))
		}
	}
}

// startRadio builds and starts the radio. On error everything opened so
// far is closed again.
func startRadio(ctx context.Context, o radioOptions, log *slog.Logger, withGPIO bool) (*radioRig, error) {
	rr := &radioRig{}
	ok := false
	defer func() {
		if !ok {
			rr.close()
		}
	}()

	startPage, valid := nextion.ParsePage(o.startPage)
	if !valid {
		return nil, fmt.Errorf("unknown start page %q", o.startPage)
	}

	list, err := station.Load(o.stationsFile)
	if err != nil {
		return nil, err
	}
	watcher, err := station.Watch(ctx, o.stationsFile, station.DefaultReloadDelay, log)
	if err != nil {
		return nil, err
	}
	rr.closers = append(rr.closers, watcher.Close)

	store, _, err := settings.Open(o.settingsFile, log)
	if errors.Is(err, settings.ErrCorrupt) {
		log.Warn("settings file was corrupt", slog.Any("error", err))
	} else if err != nil {
		return nil, err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, err
	}
	rr.connInfo = connInfo
	rr.closers = append(rr.closers, conn.Close)

	rr.decoder = encoder.NewDecoder(encoder.DefaultDebounce, o.longPress)
	if withGPIO {
		g, err := encoder.OpenGPIO(encoder.Config{
			Chip:      o.gpioChip,
			CLK:       o.clkLine,
			DT:        o.dtLine,
			SW:        o.swLine,
			Debounce:  encoder.DefaultDebounce,
			LongPress: o.longPress,
		}, rr.decoder, log)
		if err != nil {
			return nil, err
		}
		rr.closers = append(rr.closers, g.Close)
	}

	panelCfg := nextion.DefaultConfig()
	panelCfg.DebugLines = o.debugLines
	panel := nextion.NewPanel(conn, panelCfg, log)

	clockCfg := clock.DefaultConfig()
	clockCfg.Location = clock.LoadLocation(o.timezone)
	clk := clock.New(clockCfg, log)
	clk.Start(ctx)

	audioCfg := audio.DefaultConfig()
	audioCfg.SpeechURL = o.speechURL
	engine := audio.NewEngine(audioCfg, log)
	rr.closers = append(rr.closers, engine.Close)
	if !audio.Available {
		log.Warn("built without audio output")
	}

	playerCfg := player.DefaultConfig()
	playerCfg.SpeechLanguage = o.speechLang
	pl := player.New(playerCfg, engine, log)
	pl.Begin(list, station.KeysFor(list))

	radioCfg := radio.DefaultConfig()
	radioCfg.StartPage = startPage
	radioCfg.ChimeFile = o.chimeFile
	radioCfg.Version = rootCmd.Version

	rr.radio = radio.New(radioCfg, radio.Parts{
		Encoder:  rr.decoder,
		Panel:    panel,
		Clock:    clk,
		Player:   pl,
		Store:    store,
		Stations: watcher.Updates(),
	}, log)
	if err := rr.radio.Start(); err != nil {
		clk.Off()
		return nil, err
	}

	ok = true
	return rr, nil
}

func runRadio(cmd *cobra.Command, args []string) error {
	log := newLogger()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rr, err := startRadio(ctx, runOpts, log, !runOpts.noGPIO)
	if err != nil {
		return err
	}
	defer rr.close()

	fmt.Printf("Radiocore %s\n", rootCmd.Version)
	fmt.Printf("Panel: %s\n", rr.connInfo)
	fmt.Printf("Stations: %s\n", runOpts.stationsFile)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return rr.radio.Run(ctx)
}
