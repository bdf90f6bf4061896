// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// bridge is a WebSocket serial bridge double. It sends the given messages,
// then echoes binary messages until the client goes away.
func bridge(t *testing.T, send []message, auth *string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, m := range send {
			if err := conn.WriteMessage(m.kind, m.data); err != nil {
				return
			}
		}
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "close" {
				return
			}
			if err := conn.WriteMessage(kind, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type message struct {
	kind int
	data []byte
}

func wsURLOf(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// ============================================================
// WebSocket connection
// ============================================================

func TestWebSocket_SkipsTextAndSplitsMessages(t *testing.T) {
	srv := bridge(t, []message{
		{websocket.TextMessage, []byte("hello")},
		{websocket.BinaryMessage, []byte{0x70, 0x4B, 0x65, 0x79, 0x33, 0xFF, 0xFF, 0xFF}},
	}, nil)

	conn, err := OpenWebSocketConnection(wsURLOf(srv), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection: %v", err)
	}
	defer conn.Close()

	var got []byte
	buf := make([]byte, 3)
	for len(got) < 8 {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	want := []byte{0x70, 0x4B, 0x65, 0x79, 0x33, 0xFF, 0xFF, 0xFF}
	if string(got) != string(want) {
		t.Errorf("read % X, want % X", got, want)
	}
}

func TestWebSocket_WriteRoundTrip(t *testing.T) {
	srv := bridge(t, nil, nil)

	conn, err := OpenWebSocketConnection(wsURLOf(srv), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection: %v", err)
	}
	defer conn.Close()

	cmd := []byte("page 1\xFF\xFF\xFF")
	if n, err := conn.Write(cmd); err != nil || n != len(cmd) {
		t.Fatalf("Write = %d, %v", n, err)
	}
	buf := make([]byte, 32)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != string(cmd) {
		t.Errorf("echo = %q, want %q", buf[:n], cmd)
	}
}

func TestWebSocket_ClosedIsEOF(t *testing.T) {
	srv := bridge(t, nil, nil)

	conn, err := OpenWebSocketConnection(wsURLOf(srv), "", "", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("close")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, 8)
	_, err = conn.Read(buf)
	if !errors.Is(err, ErrConnectionClosed) || !errors.Is(err, io.EOF) {
		t.Fatalf("Read error = %v, want ErrConnectionClosed wrapping io.EOF", err)
	}
	// Later reads fail without touching the socket
	if _, err := conn.Read(buf); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("second Read error = %v", err)
	}
}

func TestWebSocket_BasicAuth(t *testing.T) {
	var auth string
	srv := bridge(t, nil, &auth)

	conn, err := OpenWebSocketConnection(wsURLOf(srv), "radio", "secret", false)
	if err != nil {
		t.Fatalf("OpenWebSocketConnection: %v", err)
	}
	conn.Close()

	// base64("radio:secret")
	if auth != "Basic cmFkaW86c2VjcmV0" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestWebSocket_BadScheme(t *testing.T) {
	for _, u := range []string{"http://host/x", "tcp://host", "://"} {
		if _, err := OpenWebSocketConnection(u, "", "", false); err == nil {
			t.Errorf("%q accepted", u)
		}
	}
}

// ============================================================
// Connection selection
// ============================================================

func TestOpenConnection_RequiresPortOrURL(t *testing.T) {
	savedPort, savedURL := portName, wsURL
	t.Cleanup(func() { portName, wsURL = savedPort, savedURL })
	portName, wsURL = "", ""

	if _, _, err := OpenConnection(); err == nil {
		t.Fatal("OpenConnection without --port or --url succeeded")
	}
}

func TestGetPassword_FromEnvironment(t *testing.T) {
	t.Setenv("RADIOCORE_PASSWORD", "hunter2")
	pw, err := GetPassword()
	if err != nil || pw != "hunter2" {
		t.Errorf("GetPassword = %q, %v", pw, err)
	}
}
