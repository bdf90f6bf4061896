// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	consoleOpts    radioOptions
	consoleLogFile string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the radio with an interactive terminal UI",
	Long: `Run the radio and operate it from the keyboard.

The console emulates the rotary encoder, so the radio can be brought up on a
desktop without GPIO lines. It shows the player state, the panel page and the
panel link statistics.

Keys:
  left/right   turn the encoder
  space        click
  l            long click (time announcement)
  enter        play the selected station (station list) or speak the text
  tab          switch between station list and speech input
  q            quit

Log output goes to the file given by --log-file, since the terminal is owned
by the UI.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	addRadioFlags(consoleCmd, &consoleOpts)
	consoleCmd.Flags().StringVar(&consoleLogFile, "log-file", "radiocore.log", "Log file")
	// The console drives the encoder; GPIO is opt-in
	consoleCmd.Flags().Lookup("no-gpio").DefValue = "true"
	consoleOpts.noGPIO = true
}

func runConsole(cmd *cobra.Command, args []string) error {
	f, err := os.OpenFile(consoleLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rr, err := startRadio(ctx, consoleOpts, log, !consoleOpts.noGPIO)
	if err != nil {
		return err
	}
	defer rr.close()

	done := make(chan error, 1)
	go func() { done <- rr.radio.Run(ctx) }()

	m := initialConsoleModel(rr)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, runErr := p.Run()

	cancel()
	if err := <-done; err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}
	return nil
}
