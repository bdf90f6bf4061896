// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/radiocore/pkg/encoder"
	"github.com/Thermoquad/radiocore/pkg/player"
	"github.com/Thermoquad/radiocore/pkg/radio"
	"github.com/Thermoquad/radiocore/pkg/station"
)

const (
	focusStationList = iota
	focusSpeechInput
)

const consoleRefresh = 200 * time.Millisecond

// logEntry is one line of the console event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// stationItem adapts a station to list.Item
type stationItem struct {
	index int
	station.Station
}

func (s stationItem) Title() string { return fmt.Sprintf("%2d  %s", s.index, s.Name) }
func (s stationItem) Description() string {
	if s.Key > 0 {
		return fmt.Sprintf("key %d (%s)", s.Key, s.KeyName)
	}
	return "no key"
}
func (s stationItem) FilterValue() string { return s.Name }

// consoleModel is the Bubble Tea model of the console
type consoleModel struct {
	radio    *radio.Radio
	decoder  *encoder.Decoder
	connInfo string

	status      radio.Status
	listed      *station.List
	stationList list.Model
	speechInput textinput.Model
	focused     int

	eventLog      []logEntry
	maxLogEntries int

	width    int
	height   int
	quitting bool
}

type consoleTickMsg time.Time

func initialConsoleModel(rr *radioRig) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "Text to speak"
	ti.CharLimit = 200
	ti.Width = 40

	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	stationList := list.New([]list.Item{}, delegate, 36, 10)
	stationList.Title = "Stations"
	stationList.SetShowStatusBar(false)
	stationList.SetShowHelp(false)
	stationList.SetFilteringEnabled(false)

	m := consoleModel{
		radio:         rr.radio,
		decoder:       rr.decoder,
		connInfo:      rr.connInfo,
		stationList:   stationList,
		speechInput:   ti,
		focused:       focusStationList,
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
	m.refresh()
	return m
}

func (m consoleModel) Init() tea.Cmd {
	return consoleTickCmd()
}

func consoleTickCmd() tea.Cmd {
	return tea.Tick(consoleRefresh, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.stationList.SetSize(36, max(5, m.height/2))

	case consoleTickMsg:
		m.refresh()
		return m, consoleTickCmd()
	}

	return m, nil
}

func (m consoleModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab":
		if m.focused == focusStationList {
			m.focused = focusSpeechInput
			return m, m.speechInput.Focus()
		}
		m.focused = focusStationList
		m.speechInput.Blur()
		return m, nil
	}

	if m.focused == focusSpeechInput {
		if msg.String() == "enter" {
			text := strings.TrimSpace(m.speechInput.Value())
			if text == "" {
				return m, nil
			}
			if m.radio.Speak(text) {
				m.addLogEntry(fmt.Sprintf("Speak: %s", text), false)
				m.speechInput.SetValue("")
			} else {
				m.addLogEntry("Speech queue full", true)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.speechInput, cmd = m.speechInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "left":
		m.decoder.Inject(encoder.EventTurnLeft)
		return m, nil
	case "right":
		m.decoder.Inject(encoder.EventTurnRight)
		return m, nil
	case " ":
		m.decoder.Inject(encoder.EventClick)
		return m, nil
	case "l":
		m.decoder.Inject(encoder.EventLongClick)
		return m, nil
	case "enter":
		if item, ok := m.stationList.SelectedItem().(stationItem); ok {
			if !m.radio.Select(item.index) {
				m.addLogEntry("Station request pending", true)
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.stationList, cmd = m.stationList.Update(msg)
	return m, cmd
}

// refresh pulls a new status and logs what changed
func (m *consoleModel) refresh() {
	prev := m.status
	st := m.radio.Status()
	m.status = st

	if st.Stations != m.listed {
		m.listed = st.Stations
		items := make([]list.Item, 0, st.Stations.Len())
		for i, s := range st.Stations.All() {
			items = append(items, stationItem{index: i, Station: s})
		}
		m.stationList.SetItems(items)
		if prev.Stations != nil {
			m.addLogEntry(fmt.Sprintf("Station list reloaded (%d stations)", len(items)), false)
		}
	}

	if prev.Time.IsZero() {
		return
	}
	if st.State != prev.State {
		m.addLogEntry(fmt.Sprintf("State %s -> %s", prev.State, st.State), st.State == player.StateStopped && prev.State == player.StateSwitching)
	}
	if st.StationIdx != prev.StationIdx {
		m.addLogEntry(fmt.Sprintf("Station %d: %s", st.StationIdx, st.Station), false)
	}
	if st.Title != prev.Title && st.Title != "" {
		m.addLogEntry(fmt.Sprintf("Title: %s", st.Title), false)
	}
	if st.Page != prev.Page {
		m.addLogEntry(fmt.Sprintf("Page: %s", st.Page), false)
	}
	if st.Stats.WriteErrors > prev.Stats.WriteErrors {
		m.addLogEntry(fmt.Sprintf("%d panel write errors", st.Stats.WriteErrors-prev.Stats.WriteErrors), true)
	}
	if st.Stats.ValueTimeouts > prev.Stats.ValueTimeouts {
		m.addLogEntry("Panel value request timed out", true)
	}
}

func (m *consoleModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.BorderForeground(lipgloss.Color("12"))

	var s strings.Builder
	s.WriteString(titleStyle.Render("RADIOCORE - CONSOLE"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Panel: %s | ←/→ turn, space click, l long click, tab focus, q quit", m.connInfo)))
	s.WriteString("\n\n")

	// Player
	st := m.status
	var playing strings.Builder
	playing.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("State:"), valueStyle.Render(st.State.String()),
		labelStyle.Render("Volume:"), valueStyle.Render(fmt.Sprintf("%d", st.Volume)),
	))
	stationName := "-"
	if st.StationIdx >= 0 {
		stationName = fmt.Sprintf("%d %s", st.StationIdx, st.Station)
	}
	playing.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Station:"), valueStyle.Render(stationName)))
	playing.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Title:"), valueStyle.Render(st.Title)))
	playing.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		labelStyle.Render("Page:"), valueStyle.Render(st.Page.String()),
		labelStyle.Render("Brightness:"), valueStyle.Render(fmt.Sprintf("%d", st.Brightness)),
		labelStyle.Render("Time:"), valueStyle.Render(st.Time.Format("15:04:05")),
	))

	// Panel link
	var link strings.Builder
	c := st.Stats
	frameErrors := c.DecodeErrors + c.UnknownFrames + c.Overflows + c.Resyncs
	link.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", c.CommandsSent)),
		labelStyle.Render("Gated:"), valueStyle.Render(fmt.Sprintf("%d", c.CommandsGated)),
	))
	link.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", c.TotalFrames)),
		labelStyle.Render("Buttons:"), valueStyle.Render(fmt.Sprintf("%d", c.ButtonFrames)),
	))
	errText := valueStyle.Render(fmt.Sprintf("%d", frameErrors))
	if frameErrors > 0 || c.WriteErrors > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%d (write %d)", frameErrors, c.WriteErrors))
	}
	link.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Errors:"), errText))

	status := lipgloss.JoinVertical(lipgloss.Left,
		boxStyle.Render(playing.String()),
		boxStyle.Render(link.String()),
	)

	listBox, inputBox := boxStyle, boxStyle
	if m.focused == focusStationList {
		listBox = focusedBoxStyle
	} else {
		inputBox = focusedBoxStyle
	}
	left := lipgloss.JoinVertical(lipgloss.Left,
		listBox.Render(m.stationList.View()),
		inputBox.Render(labelStyle.Render("Speak: ")+m.speechInput.View()),
	)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, " ", status))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := max(3, m.height-m.stationList.Height()-14)
	start := max(0, len(m.eventLog)-logHeight)

	var logContent strings.Builder
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.eventLog[start:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), infoStyle.Render("ℹ "+entry.message)))
		}
	}
	s.WriteString(boxStyle.Width(max(20, m.width-4)).Render(logContent.String()))

	return s.String()
}
