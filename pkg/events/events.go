// Package events routes game events forwarded by the host shim into the
// moderation managers and answers whether each event should be cancelled.
package events

import (
	"github.com/google/uuid"

	"github.com/mineguard/cheatercheck/pkg/world"
)

// Event type names as sent by the host shim.
const (
	TypeJoin           = "join"
	TypeQuit           = "quit"
	TypeKick           = "kick"
	TypeMove           = "move"
	TypeTeleport       = "teleport"
	TypeChat           = "chat"
	TypeCommand        = "command"
	TypeInteract       = "interact"
	TypeBlockBreak     = "block_break"
	TypeBlockPlace     = "block_place"
	TypeInventoryClick = "inventory_click"
	TypeAttack         = "attack"
	TypeDamage         = "damage"
	TypeItemDrop       = "item_drop"
	TypeItemPickup     = "item_pickup"
)

// Event is the wire form of a forwarded game event. Fields beyond Type and
// PlayerID are optional and depend on the type.
type Event struct {
	Type     string          `json:"type"`
	PlayerID uuid.UUID       `json:"player_id"`
	Name     string          `json:"name,omitempty"`
	Location *world.Location `json:"location,omitempty"`
	To       *world.Location `json:"to,omitempty"`
	Message  string          `json:"message,omitempty"`
	Command  string          `json:"command,omitempty"`
}

// Decision tells the host what to do with the event.
type Decision struct {
	Cancel bool `json:"cancel"`
}

var allow = Decision{}
var cancel = Decision{Cancel: true}
