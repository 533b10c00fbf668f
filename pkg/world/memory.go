package world

import (
	"strings"

	"github.com/google/uuid"
)

// Pusher forwards world mutations to the host shim. A nil Pusher keeps all
// effects local, which is what tests use.
type Pusher interface {
	PushTeleport(id uuid.UUID, loc Location) bool
}

// Memory is the in-process mirror of the host's online player roster. It is
// owned by the scheduler loop; all access is expected to happen on it.
type Memory struct {
	players map[uuid.UUID]*Player
	byName  map[string]uuid.UUID
	pusher  Pusher

	// TeleportFails lets tests force teleport failures per player.
	TeleportFails map[uuid.UUID]int
}

// NewMemory returns an empty roster. pusher may be nil.
func NewMemory(pusher Pusher) *Memory {
	return &Memory{
		players:       make(map[uuid.UUID]*Player),
		byName:        make(map[string]uuid.UUID),
		pusher:        pusher,
		TeleportFails: make(map[uuid.UUID]int),
	}
}

// Join registers a player as online, replacing any previous entry.
func (m *Memory) Join(p Player) {
	if prev, ok := m.players[p.ID]; ok {
		delete(m.byName, strings.ToLower(prev.Name))
	}
	cp := p
	m.players[p.ID] = &cp
	m.byName[strings.ToLower(p.Name)] = p.ID
}

// Leave removes a player from the roster.
func (m *Memory) Leave(id uuid.UUID) {
	if p, ok := m.players[id]; ok {
		delete(m.byName, strings.ToLower(p.Name))
		delete(m.players, id)
	}
}

// SetLocation records an authoritative position update from the host.
func (m *Memory) SetLocation(id uuid.UUID, loc Location) {
	if p, ok := m.players[id]; ok {
		p.Location = loc
	}
}

func (m *Memory) Player(id uuid.UUID) (Player, bool) {
	p, ok := m.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

func (m *Memory) PlayerByName(name string) (Player, bool) {
	id, ok := m.byName[strings.ToLower(name)]
	if !ok {
		return Player{}, false
	}
	return m.Player(id)
}

func (m *Memory) Online() []Player {
	out := make([]Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, *p)
	}
	return out
}

func (m *Memory) Location(id uuid.UUID) (Location, bool) {
	p, ok := m.players[id]
	if !ok {
		return Location{}, false
	}
	return p.Location, true
}

// Teleport moves the player locally and, when a pusher is wired, forwards
// the move to the host. The host's verdict wins.
func (m *Memory) Teleport(id uuid.UUID, loc Location) bool {
	p, ok := m.players[id]
	if !ok {
		return false
	}
	if n := m.TeleportFails[id]; n > 0 {
		m.TeleportFails[id] = n - 1
		return false
	}
	if m.pusher != nil && !m.pusher.PushTeleport(id, loc) {
		return false
	}
	p.Location = loc
	return true
}
