package world

import (
	"testing"

	"github.com/google/uuid"
)

func TestJoinLeaveAndLookup(t *testing.T) {
	m := NewMemory(nil)
	id := uuid.New()
	m.Join(Player{ID: id, Name: "Steve", Location: Location{World: "world", X: 1, Y: 64, Z: 1}})

	if _, ok := m.Player(id); !ok {
		t.Fatal("joined player not found by id")
	}
	if p, ok := m.PlayerByName("sTeVe"); !ok || p.ID != id {
		t.Fatal("name lookup should be case-insensitive")
	}
	if got := len(m.Online()); got != 1 {
		t.Fatalf("online count = %d, want 1", got)
	}

	m.Leave(id)
	if _, ok := m.Player(id); ok {
		t.Fatal("player still resolvable after leave")
	}
	if _, ok := m.PlayerByName("steve"); ok {
		t.Fatal("name index not cleared after leave")
	}
}

func TestTeleportUpdatesLocationAndCanFail(t *testing.T) {
	m := NewMemory(nil)
	id := uuid.New()
	m.Join(Player{ID: id, Name: "Alex"})

	dest := Location{World: "spawn", X: 10, Y: 70, Z: -4}
	if !m.Teleport(id, dest) {
		t.Fatal("teleport should succeed")
	}
	if loc, _ := m.Location(id); !loc.SamePosition(dest) {
		t.Fatalf("location = %v, want %v", loc, dest)
	}

	m.TeleportFails[id] = 1
	if m.Teleport(id, Location{World: "other"}) {
		t.Fatal("forced teleport failure did not fail")
	}
	if loc, _ := m.Location(id); !loc.SamePosition(dest) {
		t.Fatal("failed teleport must not move the player")
	}
	if !m.Teleport(id, Location{World: "other"}) {
		t.Fatal("teleport should succeed after forced failure consumed")
	}
}

func TestSamePositionIgnoresAngles(t *testing.T) {
	a := Location{World: "world", X: 1, Y: 2, Z: 3, Yaw: 90}
	b := Location{World: "world", X: 1, Y: 2, Z: 3, Pitch: 45}
	if !a.SamePosition(b) {
		t.Fatal("orientation change should compare as same position")
	}
	if a.SamePosition(Location{World: "world", X: 1, Y: 2, Z: 4}) {
		t.Fatal("different coordinates should not compare equal")
	}
}
