// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package station

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDelay collapses the burst of events an editor produces
const DefaultReloadDelay = 200 * time.Millisecond

// Watcher reloads a station file whenever it changes on disk
type Watcher struct {
	fs      *fsnotify.Watcher
	path    string
	delay   time.Duration
	log     *slog.Logger
	updates chan *List
	done    chan struct{}
}

// Watch starts watching path. The parent directory is watched so that
// files replaced by rename are picked up too.
func Watch(ctx context.Context, path string, delay time.Duration, log *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}
	if delay <= 0 {
		delay = DefaultReloadDelay
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		fs:      fs,
		path:    abs,
		delay:   delay,
		log:     log.With(slog.String("component", "stations")),
		updates: make(chan *List, 1),
		done:    make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

// Updates delivers the latest successfully loaded list. A list not yet
// received is replaced by a newer one.
func (w *Watcher) Updates() <-chan *List {
	return w.updates
}

// Close stops watching
func (w *Watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				reload = time.After(w.delay)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", slog.Any("error", err))

		case <-reload:
			reload = nil
			w.load()
		}
	}
}

func (w *Watcher) load() {
	l, err := Load(w.path)
	if err != nil {
		w.log.Warn("station file not reloaded", slog.Any("error", err))
		return
	}
	w.log.Info("station file reloaded", slog.Int("stations", l.Len()))

	// Latest wins
	select {
	case <-w.updates:
	default:
	}
	w.updates <- l
}
