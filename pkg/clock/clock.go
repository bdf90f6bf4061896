// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package clock keeps the wall clock shown on the panel and raises the
// periodic events that drive the control loop.
//
// A background task polls a monotonic clock every few milliseconds. Whole
// seconds elapsed since the last tick advance a seconds counter, so a late
// wakeup never loses or invents time. Three one-shot events are published:
// second, source refresh (time resync) and data refresh (fuel prices).
package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
	_ "time/tzdata"
)

// Defaults
const (
	DefaultPollInterval          = 6 * time.Millisecond
	DefaultSourceRefreshInterval = 123 * time.Second
	DefaultDataRefreshInterval   = 678 * time.Second
	DefaultTimezone              = "Europe/Berlin"
)

// weekdays is indexed by time.Weekday (Sunday = 0)
var weekdays = [7]string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Sonnabend"}

// Config holds the scheduler settings
type Config struct {
	PollInterval          time.Duration
	SourceRefreshInterval time.Duration
	DataRefreshInterval   time.Duration
	Location              *time.Location
}

// DefaultConfig returns the scheduler defaults in central European time
func DefaultConfig() Config {
	return Config{
		PollInterval:          DefaultPollInterval,
		SourceRefreshInterval: DefaultSourceRefreshInterval,
		DataRefreshInterval:   DefaultDataRefreshInterval,
		Location:              LoadLocation(DefaultTimezone),
	}
}

// LoadLocation loads a named zone, falling back to CET without daylight
// saving when the zone is unknown
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("CET", 3600)
	}
	return loc
}

// Clock is the seconds counter and periodic event source
type Clock struct {
	cfg  Config
	log  *slog.Logger
	wall func() time.Time

	mu sync.Mutex

	// counter and calendar
	seconds  int64
	calendar time.Time

	// monotonic reference points
	lastTick   time.Time
	lastSource time.Time
	lastData   time.Time
	resetData  bool

	// one-shot events
	second bool
	source bool
	data   bool

	on     bool
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped clock seeded from the wall time
func New(cfg Config, log *slog.Logger) *Clock {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.SourceRefreshInterval <= 0 {
		cfg.SourceRefreshInterval = def.SourceRefreshInterval
	}
	if cfg.DataRefreshInterval <= 0 {
		cfg.DataRefreshInterval = def.DataRefreshInterval
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	c := &Clock{
		cfg:  cfg,
		log:  log.With(slog.String("component", "clock")),
		wall: time.Now,
	}
	c.ForceUpdate()
	return c
}

// Start raises all three events and launches the polling task
func (c *Clock) Start(ctx context.Context) {
	c.mu.Lock()
	if c.on {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.on = true
	c.mu.Unlock()

	c.arm(time.Now())
	c.log.Info("clock started",
		slog.Duration("source_refresh", c.cfg.SourceRefreshInterval),
		slog.Duration("data_refresh", c.cfg.DataRefreshInterval),
		slog.String("zone", c.cfg.Location.String()))

	go c.run(ctx, c.done)
}

// arm sets the reference points to now and raises every event
func (c *Clock) arm(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastTick = now
	c.lastSource = now
	c.lastData = now
	c.resetData = false
	c.second = true
	c.source = true
	c.data = true
}

func (c *Clock) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			// A later Start owns the state once done is replaced
			if c.done == done {
				c.on = false
				c.cancel = nil
			}
			c.mu.Unlock()
			return
		case now := <-ticker.C:
			c.Advance(now)
		}
	}
}

// Advance processes the monotonic time now. Each whole second elapsed since
// the last tick advances the counter; the refresh events are evaluated on
// ticks only.
func (c *Clock) Advance(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := now.Sub(c.lastTick)
	if elapsed < time.Second {
		return
	}

	n := int64(elapsed / time.Second)
	c.lastTick = c.lastTick.Add(time.Duration(n) * time.Second)
	c.seconds += n
	c.calendar = time.Unix(c.seconds, 0).In(c.cfg.Location)
	c.second = true

	if now.Sub(c.lastSource) >= c.cfg.SourceRefreshInterval {
		c.lastSource = now
		c.source = true
	}

	// A data event drained late restarts its period from here
	if c.resetData {
		c.resetData = false
		c.lastData = now
	}
	if now.Sub(c.lastData) >= c.cfg.DataRefreshInterval {
		c.lastData = now
		c.data = true
	}
}

// ForceUpdate re-reads the wall time into the counter
func (c *Clock) ForceUpdate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seconds = c.wall().Unix()
	c.calendar = time.Unix(c.seconds, 0).In(c.cfg.Location)
}

// SecondEvent reports and clears the second tick
func (c *Clock) SecondEvent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := c.second
	c.second = false
	return ev
}

// SourceRefreshEvent reports and clears the time source refresh event
func (c *Clock) SourceRefreshEvent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := c.source
	c.source = false
	return ev
}

// DataRefreshEvent reports and clears the data refresh event. Draining a
// pending event restarts the data period on the next tick.
func (c *Clock) DataRefreshEvent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ev := c.data
	if ev {
		c.data = false
		c.resetData = true
	}
	return ev
}

// ResetDataRefreshInterval restarts the data period on the next tick
func (c *Clock) ResetDataRefreshInterval() {
	c.mu.Lock()
	c.resetData = true
	c.mu.Unlock()
}

// Now returns the calendar time of the counter
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calendar
}

// Hour returns the hour of the counter
func (c *Clock) Hour() int { return c.Now().Hour() }

// Minute returns the minute of the counter
func (c *Clock) Minute() int { return c.Now().Minute() }

// Second returns the second of the counter
func (c *Clock) Second() int { return c.Now().Second() }

// Date returns the date as D.M.YYYY without leading zeros
func (c *Clock) Date() string {
	t := c.Now()
	return fmt.Sprintf("%d.%d.%d", t.Day(), int(t.Month()), t.Year())
}

// Weekday returns the German weekday name
func (c *Clock) Weekday() string {
	return weekdays[c.Now().Weekday()]
}

// Off stops the task and clears pending events; the calendar stays readable
func (c *Clock) Off() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.on = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	c.mu.Lock()
	c.second = false
	c.source = false
	c.data = false
	c.mu.Unlock()

	c.log.Info("clock is off")
}

// IsOn reports whether the task is running
func (c *Clock) IsOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on
}
