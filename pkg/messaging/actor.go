package messaging

import "github.com/google/uuid"

// Staff permissions recognised by the host.
const (
	PermissionCheck  = "cheatercheck.check"
	PermissionNotify = "cheatercheck.notifications"
)

// Actor identifies who initiated an operation: a staff player or the
// console. The console has a nil id.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ConsoleActor returns the console identity.
func ConsoleActor() Actor {
	return Actor{Name: "Console"}
}

// IsConsole reports whether the actor is the console rather than a player.
func (a Actor) IsConsole() bool {
	return a.ID == uuid.Nil
}
