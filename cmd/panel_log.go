// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radiocore/pkg/nextion"
)

var (
	logShowHex       bool
	logStatsInterval int
)

var panelLogCmd = &cobra.Command{
	Use:   "panel_log",
	Short: "Display panel events in human-readable format",
	Long: `Continuously decode and display the frames the Nextion panel sends.

Each frame is shown with timestamp, kind and decoded content. Bytes that do
not form a valid frame are reported as errors, and a statistics summary is
printed at a configurable interval.

Supports both serial and WebSocket connections.`,
	RunE: runPanelLog,
}

func init() {
	rootCmd.AddCommand(panelLogCmd)
	panelLogCmd.Flags().BoolVar(&logShowHex, "hex", false, "Also print every received chunk as hex")
	panelLogCmd.Flags().IntVar(&logStatsInterval, "stats-interval", 10, "Statistics interval in seconds (0: off)")
}

func runPanelLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Radiocore - Panel Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := nextion.NewStatistics()
	chunks := make(chan []byte, 16)
	readErr := make(chan error, 1)

	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunks <- data
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var statsC <-chan time.Time
	if logStatsInterval > 0 {
		ticker := time.NewTicker(time.Duration(logStatsInterval) * time.Second)
		defer ticker.Stop()
		statsC = ticker.C
	}

	asm := nextion.NewAssembler(nextion.DefaultBufferSize, nextion.DefaultResyncGap)
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				fmt.Printf("Connection closed\n")
				return nil
			}
			return fmt.Errorf("read error: %w", err)

		case data := <-chunks:
			now := time.Now()
			if logShowHex {
				fmt.Printf("[%s] RX  %s\n", now.Format("15:04:05.000"), nextion.FormatHex(data))
			}
			for _, b := range data {
				frame, err := asm.Push(b, now)
				if err != nil {
					stats.RecordAssembly(err)
					printFrameError(now, err)
				}
				if frame == nil {
					continue
				}
				f, err := nextion.DecodeFrame(frame)
				stats.RecordFrame(f, err)
				if err != nil {
					printFrameError(now, fmt.Errorf("%w (%s)", err, nextion.FormatHex(frame)))
					continue
				}
				fmt.Print(nextion.FormatFrame(f, now))
			}

		case <-statsC:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

// printFrameError prints a frame error in highlighted format
func printFrameError(at time.Time, err error) {
	fmt.Printf("[%s] \033[1;31mERROR:\033[0m %v\n", at.Format("15:04:05.000"), err)
}
