// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package audio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
)

const maxPlaylistDepth = 3

// stream is an open network source
type stream struct {
	body        io.ReadCloser
	audio       io.Reader
	contentType string
}

func (s *stream) Read(p []byte) (int, error) { return s.audio.Read(p) }
func (s *stream) Close() error               { return s.body.Close() }

// fetcher opens HTTP sources
type fetcher struct {
	client    *http.Client
	userAgent string
}

func newFetcher(cfg Config) *fetcher {
	dialer := &net.Dialer{Timeout: cfg.ConnectTime}
	return &fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ResponseHeaderTimeout: cfg.ConnectTime,
			},
		},
		userAgent: cfg.UserAgent,
	}
}

// open requests rawURL with ICY metadata enabled. M3U and PLS playlists are
// followed to their first entry. onTitle receives stream titles.
func (f *fetcher) open(ctx context.Context, rawURL string, onTitle func(string)) (*stream, error) {
	for range maxPlaylistDepth {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid stream url %q: %w", rawURL, err)
		}
		req.Header.Set("Icy-MetaData", "1")
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("stream %s: %s", rawURL, resp.Status)
		}

		contentType := mediaType(resp.Header.Get("Content-Type"))
		if isPlaylist(contentType, rawURL) {
			next, err := firstPlaylistEntry(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("playlist %s: %w", rawURL, err)
			}
			rawURL = next
			continue
		}

		metaInt, _ := strconv.Atoi(resp.Header.Get("Icy-Metaint"))
		return &stream{
			body:        resp.Body,
			audio:       newICYReader(resp.Body, metaInt, onTitle),
			contentType: contentType,
		}, nil
	}
	return nil, fmt.Errorf("playlist nesting deeper than %d", maxPlaylistDepth)
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func isPlaylist(contentType, rawURL string) bool {
	switch contentType {
	case "audio/x-mpegurl", "audio/mpegurl", "application/x-mpegurl",
		"audio/x-scpls", "application/pls+xml":
		return true
	}
	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".m3u", ".pls":
			return true
		}
	}
	return false
}

// firstPlaylistEntry returns the first stream URL of an M3U or PLS playlist
func firstPlaylistEntry(r io.Reader) (string, error) {
	sc := bufio.NewScanner(io.LimitReader(r, 64*1024))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// PLS: File1=http://...
		if key, value, ok := strings.Cut(line, "="); ok && strings.HasPrefix(strings.ToLower(key), "file") {
			line = strings.TrimSpace(value)
		}
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", ErrEmptyPlaylist
}

// speechURL builds the text-to-speech request for text in lang
func speechURL(base, text, lang string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid speech url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("tl", lang)
	q.Set("q", text)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
