// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package player

import (
	"errors"
	"testing"

	"github.com/Thermoquad/radiocore/pkg/station"
)

// fakeEngine records engine calls
type fakeEngine struct {
	opened   []string
	files    []string
	speech   []string
	volumes  []int
	stops    int
	failURL  map[string]bool
	title    string
	newTitle bool
	finished bool
}

func (e *fakeEngine) OpenStream(url string) error {
	if e.failURL[url] {
		return errors.New("connect refused")
	}
	e.opened = append(e.opened, url)
	return nil
}

func (e *fakeEngine) OpenFile(path string) error {
	e.files = append(e.files, path)
	return nil
}

func (e *fakeEngine) OpenSpeech(text, lang string) error {
	e.speech = append(e.speech, lang+":"+text)
	return nil
}

func (e *fakeEngine) SetVolume(v int) { e.volumes = append(e.volumes, v) }
func (e *fakeEngine) Stop()           { e.stops++ }

func (e *fakeEngine) Title() (string, bool) {
	t, ok := e.title, e.newTitle
	e.newTitle = false
	return t, ok
}

func (e *fakeEngine) Finished() bool {
	f := e.finished
	e.finished = false
	return f
}

func (e *fakeEngine) lastVolume() int {
	if len(e.volumes) == 0 {
		return -1
	}
	return e.volumes[len(e.volumes)-1]
}

func testStations() *station.List {
	return station.NewList([]station.Station{
		{Name: "Zero", Key: 1, URL: "http://zero"},
		{Name: "One", Key: 2, URL: "http://one"},
		{Name: "Two", Key: 0, URL: "http://two"},
		{Name: "Three", Key: 4, URL: "http://three"},
	}, 0)
}

func newTestPlayer(t *testing.T) (*Player, *fakeEngine) {
	t.Helper()
	e := &fakeEngine{failURL: map[string]bool{}}
	p := New(DefaultConfig(), e, nil)
	l := testStations()
	p.Begin(l, station.KeysFor(l))
	return p, e
}

// playing switches to index and runs one iteration
func playing(t *testing.T, p *Player, index int) {
	t.Helper()
	if err := p.Play(index); err != nil {
		t.Fatalf("Play(%d) failed: %v", index, err)
	}
	p.Run()
	if p.State() != StatePlaying {
		t.Fatalf("state = %v after switching to %d", p.State(), index)
	}
}

// ============================================================
// Lifecycle Tests
// ============================================================

func TestBegin(t *testing.T) {
	e := &fakeEngine{}
	p := New(DefaultConfig(), e, nil)

	if p.State() != StateUninitialized {
		t.Fatalf("initial state = %v", p.State())
	}
	if err := p.Play(0); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Play before Begin = %v", err)
	}
	if err := p.Stop(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Stop before Begin = %v", err)
	}

	p.Begin(testStations(), station.NewKeys())
	if p.State() != StateReady {
		t.Errorf("state after Begin = %v", p.State())
	}
	if e.lastVolume() != 0 {
		t.Errorf("engine not muted by Begin, volumes %v", e.volumes)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "UNINITIALIZED"},
		{StateReady, "READY"},
		{StatePlaying, "PLAYING"},
		{StatePlayingFile, "PLAYING_FILE"},
		{StatePlayingSpeech, "PLAYING_SPEECH"},
		{StateSwitching, "SWITCHING"},
		{StateStopped, "STOPPED"},
		{State(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

// ============================================================
// Play / Switch Tests
// ============================================================

func TestPlay_SwitchesOnRun(t *testing.T) {
	p, e := newTestPlayer(t)

	if err := p.Play(1); err != nil {
		t.Fatal(err)
	}
	if p.State() != StateSwitching {
		t.Fatalf("state after Play = %v", p.State())
	}
	if !p.IsPlaying() {
		t.Error("IsPlaying() false while switching")
	}
	if len(e.opened) != 0 {
		t.Error("stream opened before Run")
	}

	p.Run()
	if p.State() != StatePlaying || p.CurrentStation() != 1 {
		t.Errorf("state %v station %d", p.State(), p.CurrentStation())
	}
	if len(e.opened) != 1 || e.opened[0] != "http://one" {
		t.Errorf("opened %v", e.opened)
	}
	if e.lastVolume() != DefaultVolume {
		t.Errorf("volume after switch = %d", e.lastVolume())
	}
	if !p.HasStationChanged() {
		t.Error("station change not reported")
	}
	if p.HasStationChanged() {
		t.Error("station change reported twice")
	}
}

func TestPlay_SameStationIsNoop(t *testing.T) {
	p, e := newTestPlayer(t)
	playing(t, p, 2)

	if err := p.Play(2); err != nil {
		t.Fatal(err)
	}
	if p.State() != StatePlaying {
		t.Errorf("state = %v", p.State())
	}
	p.Run()
	if len(e.opened) != 1 {
		t.Errorf("stream reopened: %v", e.opened)
	}
}

func TestPlay_OutOfRangeDegrades(t *testing.T) {
	p, e := newTestPlayer(t)
	playing(t, p, 3)

	if err := p.Play(17); err != nil {
		t.Fatal(err)
	}
	p.Run()
	if p.CurrentStation() != 0 || e.opened[len(e.opened)-1] != "http://zero" {
		t.Errorf("station %d opened %v", p.CurrentStation(), e.opened)
	}
}

func TestPlay_IgnoredDuringSwitch(t *testing.T) {
	p, _ := newTestPlayer(t)
	_ = p.Play(1)
	_ = p.Play(3)
	p.Run()
	if p.CurrentStation() != 1 {
		t.Errorf("station = %d, want first request", p.CurrentStation())
	}
}

func TestSwitchFailure(t *testing.T) {
	t.Run("from playing keeps station", func(t *testing.T) {
		p, e := newTestPlayer(t)
		playing(t, p, 1)
		e.failURL["http://two"] = true

		_ = p.Play(2)
		p.Run()
		if p.State() != StatePlaying || p.CurrentStation() != 1 {
			t.Errorf("state %v station %d", p.State(), p.CurrentStation())
		}
		if e.lastVolume() != DefaultVolume {
			t.Errorf("volume not restored: %d", e.lastVolume())
		}
	})

	t.Run("from ready stays ready", func(t *testing.T) {
		p, e := newTestPlayer(t)
		e.failURL["http://one"] = true

		_ = p.Play(1)
		p.Run()
		if p.State() != StateReady {
			t.Errorf("state = %v", p.State())
		}
		if p.CurrentStation() != station.NoStation {
			t.Errorf("station = %d", p.CurrentStation())
		}
	})
}

func TestPlayKey(t *testing.T) {
	p, e := newTestPlayer(t)

	if err := p.PlayKey(4); err != nil {
		t.Fatal(err)
	}
	p.Run()
	if p.CurrentStation() != 3 || e.opened[0] != "http://three" {
		t.Errorf("station %d opened %v", p.CurrentStation(), e.opened)
	}

	if err := p.PlayKey(3); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("PlayKey(3) = %v, want ErrUnknownKey", err)
	}
}

func TestPlayStation(t *testing.T) {
	p, e := newTestPlayer(t)

	if err := p.PlayStation(2); err != nil {
		t.Fatal(err)
	}
	if p.State() != StatePlaying || p.CurrentStation() != 2 {
		t.Errorf("state %v station %d", p.State(), p.CurrentStation())
	}

	e.failURL["http://one"] = true
	err := p.PlayStation(1)
	if !errors.Is(err, ErrSwitchFailed) {
		t.Errorf("err = %v, want ErrSwitchFailed", err)
	}
	if p.State() != StateStopped {
		t.Errorf("state after failure = %v", p.State())
	}
}

// ============================================================
// Stop / Next / Previous Tests
// ============================================================

func TestStop(t *testing.T) {
	p, e := newTestPlayer(t)

	if err := p.Stop(); !errors.Is(err, ErrAlreadyStopped) {
		t.Errorf("Stop when ready = %v", err)
	}

	playing(t, p, 0)
	p.HasStationChanged()
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	if p.State() != StateStopped || e.stops != 1 || e.lastVolume() != 0 {
		t.Errorf("state %v stops %d volume %d", p.State(), e.stops, e.lastVolume())
	}
	if !p.HasStationChanged() {
		t.Error("stop not reported")
	}
	if err := p.Stop(); !errors.Is(err, ErrAlreadyStopped) {
		t.Errorf("second Stop = %v", err)
	}
}

func TestNextPrevious(t *testing.T) {
	p, _ := newTestPlayer(t)

	if err := p.Next(); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("Next when ready = %v", err)
	}

	playing(t, p, 3)
	_ = p.Next()
	p.Run()
	if p.CurrentStation() != 0 {
		t.Errorf("Next from last = %d, want 0", p.CurrentStation())
	}

	_ = p.Previous()
	p.Run()
	if p.CurrentStation() != 3 {
		t.Errorf("Previous from first = %d, want 3", p.CurrentStation())
	}

	_ = p.Previous()
	p.Run()
	if p.CurrentStation() != 2 {
		t.Errorf("Previous = %d, want 2", p.CurrentStation())
	}
}

// ============================================================
// Interjection Tests
// ============================================================

func TestInterjection_ResumesStation(t *testing.T) {
	p, e := newTestPlayer(t)
	playing(t, p, 1)

	if err := p.PlayFile("gong.mp3"); err != nil {
		t.Fatal(err)
	}
	if p.State() != StatePlayingFile {
		t.Fatalf("state = %v", p.State())
	}

	// Speech chained after the file still resumes the station
	if err := p.PlaySpeech("Es ist zwölf Uhr"); err != nil {
		t.Fatal(err)
	}
	if p.State() != StatePlayingSpeech {
		t.Fatalf("state = %v", p.State())
	}
	if e.speech[0] != "de:Es ist zwölf Uhr" {
		t.Errorf("speech %v", e.speech)
	}

	p.Run()
	if p.HasInterjectionEnded() {
		t.Fatal("ended before engine finished")
	}
	e.finished = true
	p.Run()
	if !p.HasInterjectionEnded() {
		t.Fatal("end not reported")
	}
	if p.HasInterjectionEnded() {
		t.Error("end reported twice")
	}

	resumed, err := p.ResumeAfterFileOrSpeech()
	if err != nil || !resumed {
		t.Fatalf("resume = %v, %v", resumed, err)
	}
	if p.State() != StatePlaying || p.CurrentStation() != 1 {
		t.Errorf("state %v station %d", p.State(), p.CurrentStation())
	}
	if e.opened[len(e.opened)-1] != "http://one" {
		t.Errorf("opened %v", e.opened)
	}
}

func TestInterjection_NoResumeWhenStopped(t *testing.T) {
	p, e := newTestPlayer(t)

	if err := p.PlayFile("gong.mp3"); err != nil {
		t.Fatal(err)
	}
	resumed, err := p.ResumeAfterFileOrSpeech()
	if err != nil || resumed {
		t.Errorf("resume = %v, %v; want false, nil", resumed, err)
	}
	if p.State() != StateStopped {
		t.Fatalf("state = %v after interjection, want STOPPED", p.State())
	}

	// The player accepts stations again
	playing(t, p, 2)
	if e.opened[len(e.opened)-1] != "http://two" {
		t.Errorf("opened %v", e.opened)
	}
}

func TestPlay_IgnoredDuringInterjection(t *testing.T) {
	p, e := newTestPlayer(t)
	_ = p.PlaySpeech("hallo")

	if err := p.Play(1); err != nil {
		t.Fatal(err)
	}
	if p.State() != StatePlayingSpeech {
		t.Errorf("state = %v", p.State())
	}
	if len(e.opened) != 0 {
		t.Errorf("opened %v", e.opened)
	}
}

// ============================================================
// Volume and Title Tests
// ============================================================

func TestVolume(t *testing.T) {
	p, e := newTestPlayer(t)

	tests := []struct {
		set  int
		want int
	}{
		{-5, 0},
		{999, DefaultMaxVolume},
		{10, 10},
	}
	for _, tt := range tests {
		p.SetVolume(tt.set)
		if p.Volume() != tt.want || e.lastVolume() != tt.want {
			t.Errorf("SetVolume(%d): volume %d engine %d, want %d", tt.set, p.Volume(), e.lastVolume(), tt.want)
		}
	}

	p.ChangeVolume(true)
	p.ChangeVolume(true)
	p.ChangeVolume(false)
	if p.Volume() != 11 {
		t.Errorf("Volume() = %d, want 11", p.Volume())
	}
}

func TestVolume_DeferredWhileSwitching(t *testing.T) {
	p, e := newTestPlayer(t)
	_ = p.Play(0)

	before := len(e.volumes)
	p.SetVolume(5)
	if len(e.volumes) != before {
		t.Error("volume applied while switching")
	}
	p.Run()
	if e.lastVolume() != 5 {
		t.Errorf("volume after switch = %d, want 5", e.lastVolume())
	}
}

func TestTitle(t *testing.T) {
	p, e := newTestPlayer(t)
	playing(t, p, 0)

	e.title, e.newTitle = "Artist - Song", true
	p.Run()
	if p.TitleText() != "Artist - Song" {
		t.Errorf("TitleText() = %q", p.TitleText())
	}

	long := ""
	for range 40 {
		long += "äb"
	}
	p.SetTitleText(long)
	if len(p.TitleText()) > DefaultTitleLength {
		t.Errorf("title length %d", len(p.TitleText()))
	}
	if got := p.TitleText(); got[len(got)-1] != 'b' {
		t.Errorf("title cut inside a character: %q", got[len(got)-3:])
	}
}

func TestSpeechPending(t *testing.T) {
	p, _ := newTestPlayer(t)
	p.SetSpeechPending(true)
	if !p.SpeechPending() {
		t.Error("SpeechPending() false")
	}
}

func TestSetStations_KeepsOrResetsCurrent(t *testing.T) {
	p, _ := newTestPlayer(t)
	playing(t, p, 3)
	p.HasStationChanged()

	short := station.NewList([]station.Station{{Name: "A", URL: "http://a"}}, 0)
	p.SetStations(short, station.KeysFor(short))
	if p.CurrentStation() != 0 || !p.HasStationChanged() {
		t.Errorf("station %d after shrinking list", p.CurrentStation())
	}
	if err := p.SetCurrentStation(1); !errors.Is(err, ErrStationIndex) {
		t.Errorf("SetCurrentStation(1) = %v", err)
	}
}

func TestSwitch_ListShrunkDuringSwitch(t *testing.T) {
	p, e := newTestPlayer(t)
	if err := p.Play(3); err != nil {
		t.Fatal(err)
	}

	short := station.NewList([]station.Station{{Name: "A", URL: "http://a"}}, 0)
	p.SetStations(short, station.KeysFor(short))
	p.Run()

	if p.State() != StatePlaying {
		t.Fatalf("state = %v", p.State())
	}
	if p.CurrentStation() != 0 {
		t.Errorf("current station = %d, want 0", p.CurrentStation())
	}
	if e.opened[len(e.opened)-1] != "http://a" {
		t.Errorf("opened %v", e.opened)
	}
}
