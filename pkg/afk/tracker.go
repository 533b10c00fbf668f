// Package afk tracks player activity and decides who is away from
// keyboard. The authoritative answer is always computed from the last
// activity timestamp; the periodic sweep exists only to emit transition
// notifications exactly once.
package afk

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mineguard/cheatercheck/pkg/sched"
	"github.com/mineguard/cheatercheck/pkg/world"
)

// Config is the afk section of the settings file.
type Config struct {
	Enabled          bool `yaml:"enabled"`
	ThresholdSeconds int  `yaml:"threshold_seconds"`
	SweepIntervalMs  int  `yaml:"sweep_interval_ms"`
}

// DefaultConfig returns the defaults applied when the section is absent.
func DefaultConfig() Config {
	return Config{Enabled: true, ThresholdSeconds: 60, SweepIntervalMs: 1000}
}

func (c Config) threshold() time.Duration {
	return time.Duration(c.ThresholdSeconds) * time.Second
}

// Tracker records last-activity timestamps and derives AFK state lazily.
// It must only be used from the scheduler loop.
type Tracker struct {
	cfg    Config
	loop   *sched.Loop
	dir    world.Directory
	logger *logrus.Logger

	lastActivity map[uuid.UUID]time.Time
	marked       map[uuid.UUID]bool // players already announced as AFK
	sweepTask    *sched.Task

	// OnTransition, when set, is invoked once per AFK state change.
	OnTransition func(p world.Player, nowAfk bool)
}

func NewTracker(cfg Config, loop *sched.Loop, dir world.Directory, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tracker{
		cfg:          cfg,
		loop:         loop,
		dir:          dir,
		logger:       logger,
		lastActivity: make(map[uuid.UUID]time.Time),
		marked:       make(map[uuid.UUID]bool),
	}
}

// Start launches the transition sweep. It is safe to call once during
// bootstrap; IsAfk works without it.
func (t *Tracker) Start() {
	if !t.cfg.Enabled || t.sweepTask != nil {
		return
	}
	interval := time.Duration(t.cfg.SweepIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	t.sweepTask = t.loop.RunRepeating(interval, interval, t.sweep)
}

// SetConfig applies new settings. The sweep restarts when it was running
// so a changed interval or enabled flag takes effect immediately.
func (t *Tracker) SetConfig(cfg Config) {
	running := t.sweepTask != nil
	t.Stop()
	t.cfg = cfg
	if running {
		t.Start()
	}
}

// Stop cancels the sweep.
func (t *Tracker) Stop() {
	if t.sweepTask != nil {
		t.sweepTask.Cancel()
		t.sweepTask = nil
	}
}

// IsAfk reports whether the player's last activity is at least the
// threshold ago. A player never seen before is recorded as active now, so
// fresh joins are not AFK.
func (t *Tracker) IsAfk(id uuid.UUID) bool {
	if !t.cfg.Enabled {
		return false
	}
	last, ok := t.lastActivity[id]
	if !ok {
		t.lastActivity[id] = t.loop.Now()
		return false
	}
	return t.loop.Now().Sub(last) >= t.cfg.threshold()
}

// UpdateActivity records activity for the player, announcing a return
// from AFK if the player had been marked.
func (t *Tracker) UpdateActivity(id uuid.UUID) {
	if !t.cfg.Enabled {
		return
	}
	t.lastActivity[id] = t.loop.Now()
	if t.marked[id] {
		delete(t.marked, id)
		t.announce(id, false)
	}
}

// ForceUpdateActivity records activity and reports whether the player was
// AFK at the time of the call.
func (t *Tracker) ForceUpdateActivity(id uuid.UUID) bool {
	if !t.cfg.Enabled {
		return false
	}
	wasAfk := t.IsAfk(id)
	t.UpdateActivity(id)
	return wasAfk
}

// Forget drops all state for a player, typically on disconnect.
func (t *Tracker) Forget(id uuid.UUID) {
	delete(t.lastActivity, id)
	delete(t.marked, id)
}

// sweep announces players that crossed the threshold since the last pass.
// It never decides AFK-ness for callers; IsAfk does.
func (t *Tracker) sweep() {
	for _, p := range t.dir.Online() {
		if t.IsAfk(p.ID) {
			if !t.marked[p.ID] {
				t.marked[p.ID] = true
				t.announce(p.ID, true)
			}
		}
	}
}

func (t *Tracker) announce(id uuid.UUID, nowAfk bool) {
	p, ok := t.dir.Player(id)
	if !ok {
		return
	}
	t.logger.WithFields(logrus.Fields{
		"player": p.Name,
		"afk":    nowAfk,
	}).Debug("afk transition")
	if t.OnTransition != nil {
		t.OnTransition(p, nowAfk)
	}
}
