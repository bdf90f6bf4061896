// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nextion

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/samber/lo"
)

// Page handles are bound to one page selection. Obtain a fresh handle after
// SelectPage; every method of a stale handle, or of a handle for a page that
// is not selected, returns ErrPageInactive without writing anything.

// ============================================================
// Debug page (0)
// ============================================================

// DebugPage is the scrolling boot and diagnostics console
type DebugPage struct {
	p   *Panel
	gen uint64
}

// Debug returns a handle for the debug page
func (p *Panel) Debug() DebugPage {
	return DebugPage{p: p, gen: p.selection(PageDebug)}
}

// Print writes text to the next console line, scrolling when full
func (h DebugPage) Print(text string) error {
	h.p.log.Debug("console", slog.String("text", text))
	return h.p.onPage(PageDebug, h.gen, func() error {
		return h.p.debugWrite(text, false)
	})
}

// Append adds text to the last console line
func (h DebugPage) Append(text string) error {
	h.p.log.Debug("console+", slog.String("text", text))
	return h.p.onPage(PageDebug, h.gen, func() error {
		return h.p.debugWrite(text, true)
	})
}

// Printf formats and prints a console line
func (h DebugPage) Printf(format string, args ...any) error {
	return h.Print(fmt.Sprintf(format, args...))
}

// debugWrite runs with pageMu held
func (p *Panel) debugWrite(text string, appendText bool) error {
	if !appendText {
		if p.debugLine >= p.cfg.DebugLines {
			if err := p.write(NewClickCommand("scroll", true)); err != nil {
				return err
			}
			p.debugLine = p.cfg.DebugLines - 1
		}
	} else if p.debugLine > 0 {
		p.debugLine--
	}

	field := "t" + strconv.Itoa(p.debugLine)
	cmd := NewTextCommand(field, text)
	if appendText {
		cmd = NewAppendTextCommand(field, text)
	}
	if err := p.write(cmd); err != nil {
		return err
	}
	p.debugLine++
	return nil
}

// ============================================================
// Player page (1)
// ============================================================

// PlayerPage shows the station, stream title and station keys
type PlayerPage struct {
	p   *Panel
	gen uint64
}

// Player returns a handle for the player page
func (p *Panel) Player() PlayerPage {
	return PlayerPage{p: p, gen: p.selection(PagePlayer)}
}

// SetStation shows the station name
func (h PlayerPage) SetStation(name string) error {
	return h.p.onPage(PagePlayer, h.gen, func() error {
		return h.p.write(NewTextCommand("station", name))
	})
}

// SetTitle shows the stream title
func (h PlayerPage) SetTitle(title string) error {
	return h.p.onPage(PagePlayer, h.gen, func() error {
		return h.p.write(NewTextCommand("title", title))
	})
}

// SetKeyText labels a station key (1-based)
func (h PlayerPage) SetKeyText(key int, text string) error {
	return h.p.onPage(PagePlayer, h.gen, func() error {
		return h.p.write(NewTextCommand("key"+strconv.Itoa(key), text))
	})
}

// ActivateKey highlights or clears a station key (1-based)
func (h PlayerPage) ActivateKey(key int, active bool) error {
	return h.p.onPage(PagePlayer, h.gen, func() error {
		return h.p.write(NewColorCommand("key"+strconv.Itoa(key), lo.Ternary(active, ColorKeyActive, ColorKeyInactive)))
	})
}

// DeactivateKeys clears keys 1..count-1
func (h PlayerPage) DeactivateKeys(count int) error {
	return h.p.onPage(PagePlayer, h.gen, func() error {
		for key := 1; key < count; key++ {
			if err := h.p.write(NewColorCommand("key"+strconv.Itoa(key), ColorKeyInactive)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ============================================================
// Clock page (2)
// ============================================================

// ClockPage shows time, date and weekday. The panel advances the seconds
// field itself on each IncrementSecond.
type ClockPage struct {
	p   *Panel
	gen uint64
}

// Clock returns a handle for the clock page
func (p *Panel) Clock() ClockPage {
	return ClockPage{p: p, gen: p.selection(PageClock)}
}

// SetTime writes the full clock face
func (h ClockPage) SetTime(hour, minute, second int, date, weekday string) error {
	return h.p.onPage(PageClock, h.gen, func() error {
		cmds := [][]byte{
			NewValueCommand("timeHour", hour),
			NewValueCommand("timeMinute", minute),
			NewValueCommand("timeSecond", second),
			NewTextCommand("date", date),
			NewTextCommand("weekday", weekday),
		}
		for _, cmd := range cmds {
			if err := h.p.write(cmd); err != nil {
				return err
			}
		}
		h.p.log.Debug("clock set",
			slog.String("time", fmt.Sprintf("%02d:%02d:%02d", hour, minute, second)),
			slog.String("date", date),
			slog.String("weekday", weekday))
		return nil
	})
}

// IncrementSecond advances the seconds field by one
func (h ClockPage) IncrementSecond() error {
	return h.p.onPage(PageClock, h.gen, func() error {
		return h.p.write(NewClickCommand("timeSecond", true))
	})
}

// ============================================================
// Fuel page (3)
// ============================================================

// FuelPage shows the prices of the selected fuel station
type FuelPage struct {
	p   *Panel
	gen uint64
}

// Fuel returns a handle for the fuel page
func (p *Panel) Fuel() FuelPage {
	return FuelPage{p: p, gen: p.selection(PageFuel)}
}

// SetStation shows the fuel station name
func (h FuelPage) SetStation(name string) error {
	return h.p.onPage(PageFuel, h.gen, func() error {
		return h.p.write(NewTextCommand("station", name))
	})
}

// SetPrices shows both prices, or dashes when the station is closed
func (h FuelPage) SetPrices(diesel, super float64, open bool) error {
	return h.p.onPage(PageFuel, h.gen, func() error {
		return h.p.writePrices(diesel, super, open)
	})
}

// SetData shows the station name and both prices
func (h FuelPage) SetData(name string, diesel, super float64, open bool) error {
	return h.p.onPage(PageFuel, h.gen, func() error {
		if err := h.p.write(NewTextCommand("station", name)); err != nil {
			return err
		}
		return h.p.writePrices(diesel, super, open)
	})
}

// writePrices runs with pageMu held
func (p *Panel) writePrices(diesel, super float64, open bool) error {
	for _, price := range []struct {
		field string
		value float64
	}{
		{fieldPriceDiesel, diesel},
		{fieldPriceSuper, super},
	} {
		main, last := "---", " "
		if open {
			main, last = SplitPrice(price.value)
		}
		// Fields are named pDieselLast / pSuperLast
		lastField := "p" + price.field[len("price"):] + "Last"
		if err := p.write(NewTextCommand(lastField, last)); err != nil {
			return err
		}
		if err := p.write(NewTextCommand(price.field, main)); err != nil {
			return err
		}
	}
	return nil
}

// SplitPrice formats a price with three decimals and splits off the last
// digit, which the panel shows raised: 1.789 -> "1.78", "9"
func SplitPrice(price float64) (main, last string) {
	s := strconv.FormatFloat(price, 'f', 3, 64)
	return s[:len(s)-1], s[len(s)-1:]
}

// ============================================================
// Download page (5)
// ============================================================

// DownloadPage shows a firmware or data transfer
type DownloadPage struct {
	p   *Panel
	gen uint64
}

// Download returns a handle for the download page
func (p *Panel) Download() DownloadPage {
	return DownloadPage{p: p, gen: p.selection(PageDownload)}
}

// SetType shows what is being transferred
func (h DownloadPage) SetType(text string) error {
	return h.p.onPage(PageDownload, h.gen, func() error {
		return h.p.write(NewTextCommand("type", text))
	})
}

// SetProgress shows the progress bar, clamped to 0..100
func (h DownloadPage) SetProgress(percent int) error {
	return h.p.onPage(PageDownload, h.gen, func() error {
		return h.p.write(NewValueCommand("progress", lo.Clamp(percent, 0, 100)))
	})
}
