// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/radiocore/pkg/clock"
	"github.com/Thermoquad/radiocore/pkg/encoder"
	"github.com/Thermoquad/radiocore/pkg/nextion"
	"github.com/Thermoquad/radiocore/pkg/player"
	"github.com/Thermoquad/radiocore/pkg/settings"
	"github.com/Thermoquad/radiocore/pkg/station"
)

// ============================================================
// Test Doubles
// ============================================================

// panelLink records commands and answers "get" requests
type panelLink struct {
	mu      sync.Mutex
	written bytes.Buffer
	replies map[string][]byte

	rx        chan []byte
	pending   []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newPanelLink() *panelLink {
	return &panelLink{
		replies: map[string][]byte{},
		rx:      make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (l *panelLink) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		select {
		case data := <-l.rx:
			l.pending = data
		case <-l.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func (l *panelLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if reply, ok := l.replies[string(bytes.TrimSuffix(p, nextion.Terminator))]; ok {
		l.rx <- reply
	}
	return l.written.Write(p)
}

func (l *panelLink) close() {
	l.closeOnce.Do(func() { close(l.closed) })
}

// send delivers a frame from the panel
func (l *panelLink) send(data ...byte) {
	l.rx <- append(data, nextion.Terminator...)
}

func (l *panelLink) commands() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, c := range bytes.Split(l.written.Bytes(), nextion.Terminator) {
		if len(c) > 0 {
			out = append(out, string(c))
		}
	}
	l.written.Reset()
	return out
}

// audio is a player.AudioEngine that always connects
type audio struct {
	mu     sync.Mutex
	opened []string
	files  []string
	speech []string
	done   bool
}

func (a *audio) OpenStream(url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.opened = append(a.opened, url)
	return nil
}

func (a *audio) OpenFile(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files = append(a.files, path)
	return nil
}

func (a *audio) OpenSpeech(text, lang string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.speech = append(a.speech, text)
	return nil
}

func (a *audio) SetVolume(int)         {}
func (a *audio) Stop()                 {}
func (a *audio) Title() (string, bool) { return "", false }

func (a *audio) Finished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	done := a.done
	a.done = false
	return done
}

func (a *audio) streams() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.opened)
}

type rig struct {
	radio  *Radio
	link   *panelLink
	audio  *audio
	enc    *encoder.Decoder
	player *player.Player
	store  *settings.Store
	lists  chan *station.List
}

func newRig(t *testing.T, stored settings.Settings) *rig {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.cbor")
	store, _, err := settings.Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Update(func(s *settings.Settings) { *s = stored }); err != nil {
		t.Fatal(err)
	}

	list := station.NewList([]station.Station{
		{Name: "Zero", KeyName: "Z", Key: 1, URL: "http://zero"},
		{Name: "One", KeyName: "O", Key: 2, URL: "http://one"},
		{Name: "Two", KeyName: "T", Key: 3, URL: "http://two"},
	}, 0)

	rg := &rig{
		link:  newPanelLink(),
		audio: &audio{},
		enc:   encoder.NewDecoder(encoder.DefaultDebounce, encoder.DefaultLongPress),
		store: store,
		lists: make(chan *station.List, 1),
	}
	rg.player = player.New(player.DefaultConfig(), rg.audio, nil)
	rg.player.Begin(list, station.KeysFor(list))

	panel := nextion.NewPanel(rg.link, nextion.DefaultConfig(), nil)
	clk := clock.New(clock.DefaultConfig(), nil)

	rg.radio = New(Config{ChimeFile: "gong.mp3", Version: "test"}, Parts{
		Encoder:  rg.enc,
		Panel:    panel,
		Clock:    clk,
		Player:   rg.player,
		Store:    store,
		Stations: rg.lists,
	}, nil)

	t.Cleanup(func() {
		rg.link.close()
		panel.Off()
	})

	if err := rg.radio.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return rg
}

// stepUntil steps the loop until cond holds
func (rg *rig) stepUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		rg.radio.Step(context.Background())
		time.Sleep(time.Millisecond)
	}
}

func hasCommand(cmds []string, want string) bool {
	return slices.Contains(cmds, want)
}

func storedDefaults() settings.Settings {
	s := settings.Defaults()
	s.Station = 1
	s.Brightness = 60
	s.Volume = 7
	return s
}

// ============================================================
// Startup Tests
// ============================================================

func TestStart_RestoresSettings(t *testing.T) {
	rg := newRig(t, storedDefaults())
	cmds := rg.link.commands()

	for _, want := range []string{
		"page 0",
		"dim=10",
		"currentLimitDiesel=180",
		"currentLimitSuper=190",
		"page 2",
	} {
		if !hasCommand(cmds, want) {
			t.Errorf("missing %q in %q", want, cmds)
		}
	}

	if rg.player.CurrentStation() != 1 || rg.player.Volume() != 7 {
		t.Errorf("station %d volume %d", rg.player.CurrentStation(), rg.player.Volume())
	}
	st := rg.radio.Status()
	if st.Page != nextion.PageClock || st.Station != "One" || st.State != player.StateReady {
		t.Errorf("status = %+v", st)
	}
}

func TestStart_UnknownStoredStationFallsBack(t *testing.T) {
	s := storedDefaults()
	s.Station = 42
	rg := newRig(t, s)

	if rg.player.CurrentStation() != 0 {
		t.Errorf("station = %d, want default 0", rg.player.CurrentStation())
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestClick_TogglesPlayback(t *testing.T) {
	rg := newRig(t, storedDefaults())
	rg.link.commands()

	rg.enc.Inject(encoder.EventClick)
	rg.radio.Step(context.Background())

	if got := rg.audio.streams(); len(got) != 1 || got[0] != "http://one" {
		t.Fatalf("streams = %v", got)
	}
	cmds := rg.link.commands()
	for _, want := range []string{"dim=60", "page 1", `station.txt="One"`, "key2.bco=396", `key1.txt="Z"`} {
		if !hasCommand(cmds, want) {
			t.Errorf("missing %q in %q", want, cmds)
		}
	}
	if rg.store.Current().Station != 1 {
		t.Errorf("stored station = %d", rg.store.Current().Station)
	}

	rg.enc.Inject(encoder.EventClick)
	rg.radio.Step(context.Background())

	if rg.player.State() != player.StateStopped {
		t.Errorf("state = %v", rg.player.State())
	}
	cmds = rg.link.commands()
	if !hasCommand(cmds, "page 2") || !hasCommand(cmds, "dim=10") {
		t.Errorf("stop commands = %q", cmds)
	}
}

func TestTurn_VolumeWhilePlaying(t *testing.T) {
	rg := newRig(t, storedDefaults())
	rg.enc.Inject(encoder.EventClick)
	rg.radio.Step(context.Background())

	rg.enc.Inject(encoder.EventTurnRight)
	rg.enc.Inject(encoder.EventTurnRight)
	rg.radio.Step(context.Background())

	if rg.player.Volume() != 9 {
		t.Errorf("volume = %d, want 9", rg.player.Volume())
	}
	if rg.store.Current().Volume != 9 {
		t.Errorf("stored volume = %d", rg.store.Current().Volume)
	}
}

func TestTurn_BrightnessWhenStopped(t *testing.T) {
	rg := newRig(t, storedDefaults())
	rg.link.commands()

	rg.enc.Inject(encoder.EventTurnLeft)
	rg.radio.Step(context.Background())

	if cmds := rg.link.commands(); !hasCommand(cmds, "dim=5") {
		t.Errorf("commands = %q", cmds)
	}
	if rg.store.Current().Brightness != 5 {
		t.Errorf("stored brightness = %d", rg.store.Current().Brightness)
	}
}

func TestLongClick_AnnouncesTimeAndResumes(t *testing.T) {
	rg := newRig(t, storedDefaults())
	rg.enc.Inject(encoder.EventClick)
	rg.radio.Step(context.Background())

	rg.enc.Inject(encoder.EventLongClick)
	rg.radio.Step(context.Background())

	if rg.player.State() != player.StatePlayingSpeech || !rg.player.SpeechPending() {
		t.Fatalf("state = %v", rg.player.State())
	}
	if len(rg.audio.speech) != 1 || !strings.HasPrefix(rg.audio.speech[0], "Es ist ") {
		t.Errorf("speech = %q", rg.audio.speech)
	}

	rg.audio.mu.Lock()
	rg.audio.done = true
	rg.audio.mu.Unlock()
	rg.radio.Step(context.Background())

	if rg.player.State() != player.StatePlaying || rg.player.SpeechPending() {
		t.Errorf("state after speech = %v", rg.player.State())
	}
	if got := rg.audio.streams(); len(got) != 2 || got[1] != "http://one" {
		t.Errorf("streams = %v", got)
	}
}

func TestLongClick_WhileStoppedLeavesPlayerUsable(t *testing.T) {
	rg := newRig(t, storedDefaults())

	rg.enc.Inject(encoder.EventLongClick)
	rg.radio.Step(context.Background())
	if rg.player.State() != player.StatePlayingSpeech {
		t.Fatalf("state = %v", rg.player.State())
	}

	rg.audio.mu.Lock()
	rg.audio.done = true
	rg.audio.mu.Unlock()
	rg.radio.Step(context.Background())

	if rg.player.State() != player.StateStopped || rg.player.SpeechPending() {
		t.Fatalf("state after speech = %v", rg.player.State())
	}
	if got := rg.audio.streams(); len(got) != 0 {
		t.Errorf("streams = %v, want none", got)
	}

	rg.enc.Inject(encoder.EventClick)
	rg.radio.Step(context.Background())
	if rg.player.State() != player.StatePlaying {
		t.Fatalf("state after click = %v", rg.player.State())
	}

	rg.link.send(nextion.CategoryButtonReleased, 'K', 'e', 'y', '3')
	rg.stepUntil(t, "station on key 3", func() bool {
		return rg.player.CurrentStation() == 2
	})
	if got := rg.audio.streams(); got[len(got)-1] != "http://two" {
		t.Errorf("streams = %v", got)
	}
}

// ============================================================
// Panel Button Tests
// ============================================================

func TestPanelKey_PlaysStation(t *testing.T) {
	rg := newRig(t, storedDefaults())

	rg.link.send(nextion.CategoryButtonReleased, 'K', 'e', 'y', '3')
	rg.stepUntil(t, "station on key 3", func() bool {
		return rg.player.State() == player.StatePlaying
	})

	if rg.player.CurrentStation() != 2 {
		t.Errorf("station = %d, want 2", rg.player.CurrentStation())
	}
	if rg.radio.Status().Page != nextion.PagePlayer {
		t.Errorf("page = %v", rg.radio.Status().Page)
	}
}

func TestPanelArrows_CyclePages(t *testing.T) {
	rg := newRig(t, storedDefaults())

	rg.link.send(nextion.CategoryButtonReleased, 'R')
	rg.stepUntil(t, "player page", func() bool {
		return rg.radio.Status().Page == nextion.PagePlayer
	})

	// Only the latest button event is kept, so wait between presses
	rg.link.send(nextion.CategoryButtonReleased, 'L')
	rg.stepUntil(t, "clock page", func() bool {
		return rg.radio.Status().Page == nextion.PageClock
	})

	rg.link.send(nextion.CategoryButtonReleased, 'L')
	rg.stepUntil(t, "fuel page", func() bool {
		return rg.radio.Status().Page == nextion.PageFuel
	})
}

func TestPanelLimits_StoresValues(t *testing.T) {
	rg := newRig(t, storedDefaults())
	rg.link.replies["get currentLimitDiesel"] = []byte{nextion.CategoryValue, 171, 0, 0xFF, 0xFF, 0xFF}
	rg.link.replies["get currentLimitSuper"] = []byte{nextion.CategoryValue, 0x2C, 0x01, 0xFF, 0xFF, 0xFF}

	rg.link.send(nextion.CategoryButtonReleased, 'F')
	rg.stepUntil(t, "stored limits", func() bool {
		s := rg.store.Current()
		return s.LimitDiesel == 171 && s.LimitSuper == 300
	})
}

// ============================================================
// Station Reload Tests
// ============================================================

func TestStationReload(t *testing.T) {
	rg := newRig(t, storedDefaults())
	rg.radio.showPage(nextion.PagePlayer)
	rg.link.commands()

	next := station.NewList([]station.Station{{Name: "Neu", KeyName: "N", Key: 5, URL: "http://neu"}}, 0)
	rg.lists <- next
	rg.radio.Step(context.Background())

	if rg.player.Stations().Len() != 1 || rg.player.CurrentStation() != 0 {
		t.Errorf("stations %d current %d", rg.player.Stations().Len(), rg.player.CurrentStation())
	}
	if cmds := rg.link.commands(); !hasCommand(cmds, `key5.txt="N"`) {
		t.Errorf("commands = %q", cmds)
	}
}

func TestSpeak_QueueBound(t *testing.T) {
	rg := newRig(t, storedDefaults())
	for i := range cap(rg.radio.speech) {
		if !rg.radio.Speak("text") {
			t.Fatalf("Speak %d rejected", i)
		}
	}
	if rg.radio.Speak("one too many") {
		t.Error("full queue accepted speech")
	}
}

func TestSelect_PlaysStation(t *testing.T) {
	rg := newRig(t, storedDefaults())

	if !rg.radio.Select(2) {
		t.Fatal("Select rejected")
	}
	if rg.radio.Select(0) {
		t.Error("second pending request accepted")
	}
	rg.radio.Step(context.Background())

	st := rg.radio.Status()
	if st.State != player.StatePlaying || st.StationIdx != 2 || st.Station != "Two" {
		t.Errorf("status = %+v", st)
	}
}
