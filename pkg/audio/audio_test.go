// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

// icyStream interleaves audio chunks of metaInt bytes with metadata blocks
func icyStream(audio []byte, metaInt int, titles ...string) []byte {
	var out bytes.Buffer
	for i := 0; i < len(audio); i += metaInt {
		end := min(i+metaInt, len(audio))
		out.Write(audio[i:end])
		if end-i < metaInt {
			break
		}

		n := i / metaInt
		if n >= len(titles) || titles[n] == "" {
			out.WriteByte(0)
			continue
		}
		meta := []byte("StreamTitle='" + titles[n] + "';StreamUrl='';")
		blocks := (len(meta) + 15) / 16
		out.WriteByte(byte(blocks))
		out.Write(meta)
		out.Write(make([]byte, blocks*16-len(meta)))
	}
	return out.Bytes()
}

// ============================================================
// Volume Tests
// ============================================================

func TestGain(t *testing.T) {
	tests := []struct {
		level      int
		wantSilent bool
		wantVolume float64
	}{
		{-1, true, 0},
		{0, true, 0},
		{1, false, -volumeSpan},
		{21, false, 0},
		{30, false, 0},
	}
	for _, tt := range tests {
		v, silent := Gain(tt.level, 21)
		if silent != tt.wantSilent || math.Abs(v-tt.wantVolume) > 1e-9 {
			t.Errorf("Gain(%d) = %v, %v; want %v, %v", tt.level, v, silent, tt.wantVolume, tt.wantSilent)
		}
	}

	// Monotonic between the bounds
	prev := math.Inf(-1)
	for level := 1; level <= 21; level++ {
		v, _ := Gain(level, 21)
		if v <= prev {
			t.Fatalf("Gain(%d) = %v not above %v", level, v, prev)
		}
		prev = v
	}

	if !math.IsInf(Decibels(0, 21), -1) {
		t.Error("Decibels(0) not -Inf")
	}
}

// ============================================================
// ICY Metadata Tests
// ============================================================

func TestParseStreamTitle(t *testing.T) {
	tests := []struct {
		name   string
		block  string
		want   string
		wantOK bool
	}{
		{"plain", "StreamTitle='Artist - Song';StreamUrl='';", "Artist - Song", true},
		{"padded", "StreamTitle='A - B';\x00\x00\x00", "A - B", true},
		{"quote in title", "StreamTitle='Guns N' Roses - Patience';", "Guns N' Roses - Patience", true},
		{"empty title", "StreamTitle='';", "", true},
		{"no terminator", "StreamTitle='Open End'", "Open End", true},
		{"latin1", "StreamTitle='Die \xc4rzte';", "Die Ärzte", true},
		{"utf8", "StreamTitle='Die Ärzte';", "Die Ärzte", true},
		{"missing", "StreamUrl='x';", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseStreamTitle([]byte(tt.block))
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseStreamTitle(%q) = %q, %v; want %q, %v", tt.block, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestICYReader_StripsMetadata(t *testing.T) {
	audio := bytes.Repeat([]byte("0123456789"), 10)
	raw := icyStream(audio, 16, "First", "", "Second")

	var titles []string
	r := newICYReader(bytes.NewReader(raw), 16, func(s string) { titles = append(titles, s) })

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Errorf("audio corrupted:\n got %q\nwant %q", got, audio)
	}
	if len(titles) != 2 || titles[0] != "First" || titles[1] != "Second" {
		t.Errorf("titles = %q", titles)
	}
}

func TestICYReader_Passthrough(t *testing.T) {
	src := strings.NewReader("plain")
	if r := newICYReader(src, 0, nil); r != io.Reader(src) {
		t.Error("reader without metaint was wrapped")
	}
}

func TestICYReader_ShortMetadata(t *testing.T) {
	raw := append(bytes.Repeat([]byte{'a'}, 8), 2, 'S', 't')
	r := newICYReader(bytes.NewReader(raw), 8, nil)
	if _, err := io.ReadAll(r); err == nil {
		t.Error("truncated metadata block accepted")
	}
}

// ============================================================
// Playlist and URL Tests
// ============================================================

func TestFirstPlaylistEntry(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"m3u", "#EXTM3U\n#EXTINF:-1,Radio\nhttp://a.example/stream\nhttp://b.example/\n", "http://a.example/stream", nil},
		{"pls", "[playlist]\nNumberOfEntries=1\nFile1=https://c.example/live\nTitle1=C\n", "https://c.example/live", nil},
		{"crlf", "\r\nhttp://d.example/x\r\n", "http://d.example/x", nil},
		{"empty", "#EXTM3U\n", "", ErrEmptyPlaylist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := firstPlaylistEntry(strings.NewReader(tt.input))
			if got != tt.want || !errors.Is(err, tt.wantErr) {
				t.Errorf("got %q, %v; want %q, %v", got, err, tt.want, tt.wantErr)
			}
		})
	}
}

func TestIsPlaylist(t *testing.T) {
	tests := []struct {
		contentType string
		url         string
		want        bool
	}{
		{"audio/mpeg", "http://x/stream.mp3", false},
		{"audio/x-mpegurl", "http://x/stream", true},
		{"audio/x-scpls", "http://x/stream", true},
		{"", "http://streams.br.de/bayern3_2.m3u", true},
		{"text/plain", "http://x/list.PLS?x=1", true},
	}
	for _, tt := range tests {
		if got := isPlaylist(tt.contentType, tt.url); got != tt.want {
			t.Errorf("isPlaylist(%q, %q) = %v", tt.contentType, tt.url, got)
		}
	}
}

func TestSpeechURL(t *testing.T) {
	got, err := speechURL(DefaultSpeechURL, "Es ist 12 Uhr", "de")
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(got)
	q := u.Query()
	if q.Get("q") != "Es ist 12 Uhr" || q.Get("tl") != "de" || q.Get("client") != "tw-ob" {
		t.Errorf("query = %v", q)
	}
}

// ============================================================
// Fetcher Tests
// ============================================================

func TestFetcher_FollowsPlaylist(t *testing.T) {
	audio := bytes.Repeat([]byte{0xAB}, 64)

	var gotHeader string
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/radio.m3u", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "#EXTM3U\n"+srv.URL+"/live\n")
	})
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("Icy-MetaData")
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("icy-metaint", "32")
		w.Write(icyStream(audio, 32, "Now Playing"))
	})

	var title string
	s, err := newFetcher(DefaultConfig()).open(context.Background(), srv.URL+"/radio.m3u", func(t string) { title = t })
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer s.Close()

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, audio) {
		t.Errorf("audio = % X", got)
	}
	if gotHeader != "1" {
		t.Errorf("Icy-MetaData header = %q", gotHeader)
	}
	if title != "Now Playing" {
		t.Errorf("title = %q", title)
	}
	if s.contentType != "audio/mpeg" {
		t.Errorf("contentType = %q", s.contentType)
	}
}

func TestFetcher_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newFetcher(DefaultConfig()).open(context.Background(), srv.URL+"/gone", nil)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want 404", err)
	}
}
