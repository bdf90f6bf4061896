// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/radiocore/pkg/station"
)

var stationsFile string

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Validate and list the station file",
	Long: `Load the station file and print the stations and the station key map.

The file is checked the same way the radio checks it on startup and on every
reload, so a broken edit is caught before the radio drops it.`,
	Args: cobra.NoArgs,
	RunE: runStations,
}

func init() {
	rootCmd.AddCommand(stationsCmd)
	stationsCmd.Flags().StringVar(&stationsFile, "stations", "stations.json", "Station list file")
}

func runStations(cmd *cobra.Command, args []string) error {
	list, err := station.Load(stationsFile)
	if err != nil {
		return err
	}
	keys := station.KeysFor(list)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetAllowedRowLength(terminalWidth())
	t.AppendHeader(table.Row{"#", "Name", "Key", "Label", "URL"})

	for i, s := range list.All() {
		index := fmt.Sprintf("%d", i)
		if i == list.DefaultIndex() {
			index += "*"
		}
		key := "-"
		if k := keys.KeyOf(i); k > 0 {
			key = fmt.Sprintf("%d", k)
		}
		t.AppendRow(table.Row{index, s.Name, key, s.KeyName, s.URL})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d stations", list.Len()), "", "", "* default"})
	t.Render()

	free := 0
	for key := 1; key < station.NumberOfKeys; key++ {
		if keys.StationIndex(key) == station.NoStation {
			free++
		}
	}
	if free > 0 {
		fmt.Printf("%d station key(s) unassigned\n", free)
	}
	return nil
}

// terminalWidth returns the terminal width, or a default if unavailable
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 120
	}
	return width
}
