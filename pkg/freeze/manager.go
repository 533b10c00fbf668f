// Package freeze keeps the registry of immobilised players and enforces
// the restrictions that come with being frozen.
package freeze

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mineguard/cheatercheck/pkg/messaging"
	"github.com/mineguard/cheatercheck/pkg/metrics"
	"github.com/mineguard/cheatercheck/pkg/sched"
	"github.com/mineguard/cheatercheck/pkg/world"
)

// Config is the freeze section of the settings file.
type Config struct {
	Particles       ParticleConfig   `yaml:"particles"`
	Sound           SoundConfig      `yaml:"sound"`
	Blindness       bool             `yaml:"blindness"`
	BlockCommands   bool             `yaml:"block_commands"`
	AllowedCommands []string         `yaml:"allowed_commands"`
	GroundSnap      GroundSnapConfig `yaml:"ground_snap"`
}

type ParticleConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Type       string `yaml:"type"`
	IntervalMs int    `yaml:"interval_ms"`
}

type SoundConfig struct {
	Enabled bool    `yaml:"enabled"`
	Name    string  `yaml:"name"`
	Volume  float64 `yaml:"volume"`
	Pitch   float64 `yaml:"pitch"`
}

type GroundSnapConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxDepth int  `yaml:"max_depth"`
}

// DefaultConfig returns the defaults applied when the section is absent.
func DefaultConfig() Config {
	return Config{
		Particles:       ParticleConfig{Enabled: true, Type: "BARRIER", IntervalMs: 500},
		Sound:           SoundConfig{Enabled: true, Name: "BLOCK_GLASS_BREAK", Volume: 1, Pitch: 1},
		Blindness:       true,
		BlockCommands:   true,
		AllowedCommands: []string{"msg", "r", "tell", "helpop"},
		GroundSnap:      GroundSnapConfig{Enabled: true, MaxDepth: 256},
	}
}

type record struct {
	loc              world.Location
	frozenAt         time.Time
	allowedTeleports int
}

// Manager owns the frozen-player registry. It must only be used from the
// scheduler loop.
type Manager struct {
	cfg     Config
	loop    *sched.Loop
	dir     world.Directory
	blocks  world.BlockSource
	effects world.Effects
	msg     *messaging.Messenger
	metrics *metrics.Set
	logger  *logrus.Logger

	frozen          map[uuid.UUID]*record
	particleTask    *sched.Task
	particlesBroken bool
}

func NewManager(cfg Config, loop *sched.Loop, dir world.Directory, blocks world.BlockSource, effects world.Effects, msg *messaging.Messenger, set *metrics.Set, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if set == nil {
		set = metrics.NewTestSet()
	}
	return &Manager{
		cfg:     cfg,
		loop:    loop,
		dir:     dir,
		blocks:  blocks,
		effects: effects,
		msg:     msg,
		metrics: set,
		logger:  logger,
		frozen:  make(map[uuid.UUID]*record),
	}
}

// SetConfig applies new settings. A changed particle type gets a fresh
// chance after an earlier fail-once disable; the ring task restarts when
// frozen players exist.
func (m *Manager) SetConfig(cfg Config) {
	running := m.particleTask != nil
	m.stopParticles()
	m.cfg = cfg
	m.particlesBroken = false
	if running && len(m.frozen) > 0 {
		m.startParticles()
	}
}

// Freeze immobilises an online player, capturing their current location.
// It reports false when the player is offline or already frozen.
func (m *Manager) Freeze(id uuid.UUID) bool {
	if _, ok := m.frozen[id]; ok {
		return false
	}
	p, ok := m.dir.Player(id)
	if !ok {
		return false
	}
	m.frozen[id] = &record{loc: p.Location, frozenAt: m.loop.Now()}
	// A flying target would otherwise hover in place once movement is
	// blocked. The pre-freeze location keeps the original height.
	m.SnapToGround(id)

	if m.cfg.Blindness {
		m.effects.ApplyBlindness(id)
	}
	if m.cfg.Sound.Enabled {
		m.effects.PlaySound(id, m.cfg.Sound.Name, m.cfg.Sound.Volume, m.cfg.Sound.Pitch)
	}
	m.msg.Send(id, "freeze.frozen", nil)
	m.startParticles()
	m.metrics.FrozenPlayers.Set(float64(len(m.frozen)))

	m.logger.WithField("player", p.Name).Info("player frozen")
	return true
}

// Unfreeze removes a player from the registry by identity. It succeeds
// even when the player has since gone offline; effect cleanup is skipped
// in that case.
func (m *Manager) Unfreeze(id uuid.UUID) bool {
	if _, ok := m.frozen[id]; !ok {
		return false
	}
	delete(m.frozen, id)

	if p, ok := m.dir.Player(id); ok {
		if m.cfg.Blindness {
			m.effects.ClearBlindness(id)
		}
		m.msg.Send(id, "freeze.unfrozen", nil)
		m.logger.WithField("player", p.Name).Info("player unfrozen")
	} else {
		m.logger.WithField("id", id).Info("offline player unfrozen")
	}

	if len(m.frozen) == 0 {
		m.stopParticles()
	}
	m.metrics.FrozenPlayers.Set(float64(len(m.frozen)))
	return true
}

// UnfreezeAll clears the registry, returning how many were unfrozen.
func (m *Manager) UnfreezeAll() int {
	ids := make([]uuid.UUID, 0, len(m.frozen))
	for id := range m.frozen {
		ids = append(ids, id)
	}
	for _, id := range ids {
		m.Unfreeze(id)
	}
	return len(ids)
}

// IsFrozen reports whether the player is in the registry.
func (m *Manager) IsFrozen(id uuid.UUID) bool {
	_, ok := m.frozen[id]
	return ok
}

// Count returns the number of frozen players.
func (m *Manager) Count() int { return len(m.frozen) }

// FrozenIDs returns a snapshot of the registry keys.
func (m *Manager) FrozenIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m.frozen))
	for id := range m.frozen {
		ids = append(ids, id)
	}
	return ids
}

// PreFreezeLocation returns the location captured when the player was
// frozen.
func (m *Manager) PreFreezeLocation(id uuid.UUID) (world.Location, bool) {
	rec, ok := m.frozen[id]
	if !ok {
		return world.Location{}, false
	}
	return rec.loc, true
}

// AllowTeleport grants the player one teleport that the movement guard
// will let through. Used for administrative teleports of frozen players.
func (m *Manager) AllowTeleport(id uuid.UUID) {
	if rec, ok := m.frozen[id]; ok {
		rec.allowedTeleports++
	}
}

// ConsumeTeleportAllowance uses up one granted teleport. It returns false
// when the player has no allowance left, meaning the teleport must be
// cancelled.
func (m *Manager) ConsumeTeleportAllowance(id uuid.UUID) bool {
	rec, ok := m.frozen[id]
	if !ok || rec.allowedTeleports == 0 {
		return false
	}
	rec.allowedTeleports--
	return true
}

// IsCommandAllowed reports whether a frozen player may run the given raw
// command line. Matching is against the base token, case-insensitively,
// with any leading slash stripped.
func (m *Manager) IsCommandAllowed(raw string) bool {
	if !m.cfg.BlockCommands {
		return true
	}
	base := strings.TrimPrefix(strings.TrimSpace(raw), "/")
	if i := strings.IndexAny(base, " \t"); i >= 0 {
		base = base[:i]
	}
	base = strings.ToLower(base)
	for _, allowed := range m.cfg.AllowedCommands {
		if strings.ToLower(strings.TrimPrefix(allowed, "/")) == base {
			return true
		}
	}
	return false
}

// SnapToGround teleports a floating frozen player down onto the nearest
// solid block with two clear blocks above it. It reports whether a move
// was performed.
func (m *Manager) SnapToGround(id uuid.UUID) bool {
	if !m.cfg.GroundSnap.Enabled {
		return false
	}
	loc, ok := m.dir.Location(id)
	if !ok {
		return false
	}
	x, z := int(math.Floor(loc.X)), int(math.Floor(loc.Z))
	startY := int(math.Floor(loc.Y))
	minY := m.blocks.MinY(loc.World)
	if floor := startY - m.cfg.GroundSnap.MaxDepth; floor > minY {
		minY = floor
	}

	// standing position: solid below, feet and head space clear
	if m.blocks.SolidAt(loc.World, x, startY-1, z) {
		return false
	}
	for y := startY; y > minY; y-- {
		if m.blocks.SolidAt(loc.World, x, y-1, z) &&
			!m.blocks.SolidAt(loc.World, x, y, z) &&
			!m.blocks.SolidAt(loc.World, x, y+1, z) {
			dest := loc
			dest.Y = float64(y)
			m.AllowTeleport(id)
			return m.dir.Teleport(id, dest)
		}
	}
	return false
}

func (m *Manager) startParticles() {
	if m.particleTask != nil || m.particlesBroken || !m.cfg.Particles.Enabled {
		return
	}
	interval := time.Duration(m.cfg.Particles.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	m.particleTask = m.loop.RunRepeating(interval, interval, m.renderParticles)
}

func (m *Manager) stopParticles() {
	if m.particleTask != nil {
		m.particleTask.Cancel()
		m.particleTask = nil
	}
}

// renderParticles draws a ring around every frozen player. A particle
// error means the configured id is invalid on this host, so rendering is
// disabled for the rest of the run instead of spamming failures.
func (m *Manager) renderParticles() {
	const points = 16
	const radius = 0.9
	for id := range m.frozen {
		loc, ok := m.dir.Location(id)
		if !ok {
			continue
		}
		for i := 0; i < points; i++ {
			angle := 2 * math.Pi * float64(i) / points
			x := loc.X + radius*math.Cos(angle)
			z := loc.Z + radius*math.Sin(angle)
			if err := m.effects.SpawnParticle(loc.World, m.cfg.Particles.Type, x, loc.Y+1, z); err != nil {
				m.logger.WithError(err).WithField("particle", m.cfg.Particles.Type).
					Warn("particle rejected by host, disabling freeze particles")
				m.particlesBroken = true
				m.stopParticles()
				return
			}
		}
	}
}
