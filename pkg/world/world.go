// Package world models the game side of the service: online players, their
// positions, and the effect surface (titles, sounds, particles) the
// moderation flows act through.
package world

import (
	"fmt"

	"github.com/google/uuid"
)

// Location is a position in a named world, with view angles.
type Location struct {
	World string  `json:"world" yaml:"world"`
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
	Yaw   float32 `json:"yaw" yaml:"yaw"`
	Pitch float32 `json:"pitch" yaml:"pitch"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s(%.1f, %.1f, %.1f)", l.World, l.X, l.Y, l.Z)
}

// SamePosition reports whether two locations share coordinates, ignoring
// view angles. Pure look-around events compare equal under it.
func (l Location) SamePosition(o Location) bool {
	return l.World == o.World && l.X == o.X && l.Y == o.Y && l.Z == o.Z
}

// Player is a snapshot of an online player.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Location Location  `json:"location"`
}

// Directory resolves and tracks online players.
type Directory interface {
	// Player returns the online player with the given id.
	Player(id uuid.UUID) (Player, bool)
	// PlayerByName resolves an online player case-insensitively by name.
	PlayerByName(name string) (Player, bool)
	// Online returns a snapshot of all online players.
	Online() []Player
	// Location returns the current position of an online player.
	Location(id uuid.UUID) (Location, bool)
	// Teleport moves the player, reporting whether the move succeeded.
	Teleport(id uuid.UUID, loc Location) bool
}

// BlockSource answers solidity queries, used for ground snapping.
type BlockSource interface {
	// SolidAt reports whether the block at the given coordinates is solid.
	SolidAt(world string, x, y, z int) bool
	// MinY returns the lowest buildable height of the world.
	MinY(world string) int
}

// Effects is the visual and audible feedback surface.
type Effects interface {
	SendTitle(id uuid.UUID, title, subtitle string, fadeIn, stay, fadeOut int)
	PlaySound(id uuid.UUID, sound string, volume, pitch float64)
	// SpawnParticle renders one particle; an error means the particle id
	// is not understood by the host and further attempts are pointless.
	SpawnParticle(world string, particle string, x, y, z float64) error
	ApplyBlindness(id uuid.UUID)
	ClearBlindness(id uuid.UUID)
	// ShowTimerBar displays or updates a countdown bar. Progress is 0..1.
	ShowTimerBar(id uuid.UUID, text string, progress float64)
	HideTimerBar(id uuid.UUID)
}
