// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsUSBOnly bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports the panel may be attached to",
	Long: `List the serial ports of this machine.

USB adapters are shown with vendor and product ID, which helps to tell the
panel adapter apart from other devices.

Exit codes:
  0 - At least one port found
  1 - No ports found
  2 - Enumeration error`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsUSBOnly, "usb", false, "Only list USB serial adapters")
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enumeration error: %v\n", err)
		os.Exit(2)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Port", "USB", "VID:PID", "Serial", "Product"})

	found := 0
	for _, p := range ports {
		if portsUSBOnly && !p.IsUSB {
			continue
		}
		found++
		if !p.IsUSB {
			t.AppendRow(table.Row{p.Name, "no", "", "", ""})
			continue
		}
		t.AppendRow(table.Row{p.Name, "yes", p.VID + ":" + p.PID, p.SerialNumber, p.Product})
	}

	if found == 0 {
		fmt.Fprintf(os.Stderr, "No serial ports found\n")
		os.Exit(1)
	}
	t.Render()
	return nil
}
