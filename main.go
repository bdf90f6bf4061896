// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Radiocore - internet radio control core
//
// Drives a rotary encoder, a Nextion touch panel and an audio output, and
// provides tools to bring up and debug the panel link.

package main

import (
	"os"

	"github.com/Thermoquad/radiocore/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
