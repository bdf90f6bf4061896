// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/radiocore/pkg/clock"
	"github.com/Thermoquad/radiocore/pkg/nextion"
	"github.com/Thermoquad/radiocore/pkg/station"
)

var (
	sendFuelClosed bool
	sendKeyActive  int
	sendTimezone   string
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Send commands to the panel",
	Long: `Send single commands to the Nextion panel.

Every subcommand selects the page it writes to first, so the result is
visible immediately. Useful for checking a panel layout without running the
radio.

Supports both serial and WebSocket connections.`,
}

var panelPageCmd = &cobra.Command{
	Use:   "page <debug|player|clock|fuel|download>",
	Short: "Select a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, ok := nextion.ParsePage(args[0])
		if !ok {
			return fmt.Errorf("unknown page %q", args[0])
		}
		return withPanel(func(p *nextion.Panel) error {
			return p.SelectPage(page)
		})
	},
}

var panelPrintCmd = &cobra.Command{
	Use:   "print <line>...",
	Short: "Print lines on the debug page",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPanel(func(p *nextion.Panel) error {
			if err := p.SelectPage(nextion.PageDebug); err != nil {
				return err
			}
			debug := p.Debug()
			for _, line := range args {
				if err := debug.Print(line); err != nil {
					return err
				}
			}
			return nil
		})
	},
}

var panelPlayerCmd = &cobra.Command{
	Use:   "player <station> [title]",
	Short: "Show a station and title on the player page",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPanel(func(p *nextion.Panel) error {
			if err := p.SelectPage(nextion.PagePlayer); err != nil {
				return err
			}
			player := p.Player()
			if err := player.SetStation(args[0]); err != nil {
				return err
			}
			if len(args) > 1 {
				if err := player.SetTitle(args[1]); err != nil {
					return err
				}
			}
			if sendKeyActive > 0 {
				if err := player.DeactivateKeys(station.NumberOfKeys); err != nil {
					return err
				}
				return player.ActivateKey(sendKeyActive, true)
			}
			return nil
		})
	},
}

var panelClockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Show the current time on the clock page",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPanel(func(p *nextion.Panel) error {
			if err := p.SelectPage(nextion.PageClock); err != nil {
				return err
			}
			cfg := clock.DefaultConfig()
			cfg.Location = clock.LoadLocation(sendTimezone)
			c := clock.New(cfg, nil)
			return p.Clock().SetTime(c.Hour(), c.Minute(), c.Second(), c.Date(), c.Weekday())
		})
	},
}

var panelFuelCmd = &cobra.Command{
	Use:   "fuel <station> <diesel> <super>",
	Short: "Show fuel prices on the fuel page",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		diesel, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid diesel price: %w", err)
		}
		super, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid super price: %w", err)
		}
		return withPanel(func(p *nextion.Panel) error {
			if err := p.SelectPage(nextion.PageFuel); err != nil {
				return err
			}
			return p.Fuel().SetData(args[0], diesel, super, !sendFuelClosed)
		})
	},
}

var panelProgressCmd = &cobra.Command{
	Use:   "progress <type> <percent>",
	Short: "Show a transfer on the download page",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		percent, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid percent: %w", err)
		}
		return withPanel(func(p *nextion.Panel) error {
			if err := p.SelectPage(nextion.PageDownload); err != nil {
				return err
			}
			download := p.Download()
			if err := download.SetType(args[0]); err != nil {
				return err
			}
			return download.SetProgress(percent)
		})
	},
}

var panelBrightnessCmd = &cobra.Command{
	Use:   "brightness <0-100>",
	Short: "Set the backlight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid brightness: %w", err)
		}
		return withPanel(func(p *nextion.Panel) error {
			_, err := p.SetBrightness(value)
			return err
		})
	},
}

var panelRawCmd = &cobra.Command{
	Use:   "raw <command>",
	Short: "Send a raw command",
	Long: `Send a raw command. The terminator is appended.

Example:
  radiocore panel raw 'get currentLimitDiesel'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPanel(func(p *nextion.Panel) error {
			return p.Send(nextion.NewRawCommand(strings.Join(args, " ")))
		})
	},
}

func init() {
	rootCmd.AddCommand(panelCmd)
	panelCmd.AddCommand(panelPageCmd, panelPrintCmd, panelPlayerCmd, panelClockCmd,
		panelFuelCmd, panelProgressCmd, panelBrightnessCmd, panelRawCmd)

	panelPlayerCmd.Flags().IntVar(&sendKeyActive, "key", 0, "Highlight this station key (1-5)")
	panelClockCmd.Flags().StringVar(&sendTimezone, "timezone", clock.DefaultTimezone, "Time zone")
	panelFuelCmd.Flags().BoolVar(&sendFuelClosed, "closed", false, "Show the station as closed")
}

// withPanel opens the panel link, runs fn and prints the commands sent
func withPanel(fn func(p *nextion.Panel) error) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	panel := nextion.NewPanel(conn, nextion.DefaultConfig(), newLogger())
	defer panel.Off()

	if err := fn(panel); err != nil {
		return err
	}

	c := panel.Statistics().Snapshot()
	fmt.Printf("%s: %d command(s) sent\n", connInfo, c.CommandsSent)
	return nil
}
