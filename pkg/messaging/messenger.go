package messaging

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Transport delivers rendered text to the host. The production transport
// forwards over HTTP to the server shim; tests substitute a recorder.
type Transport interface {
	MessagePlayer(id uuid.UUID, text string)
	Broadcast(text string)
	BroadcastPermission(permission, text string)
}

// Messenger pairs a catalog with a transport.
type Messenger struct {
	catalog   *Catalog
	transport Transport
	logger    *logrus.Logger
}

func NewMessenger(catalog *Catalog, transport Transport, logger *logrus.Logger) *Messenger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Messenger{catalog: catalog, transport: transport, logger: logger}
}

// Catalog exposes the underlying catalog for raw rendering.
func (m *Messenger) Catalog() *Catalog { return m.catalog }

// SetCatalog swaps the message catalog, used by config reload. Call it
// from the scheduler loop like every other mutation.
func (m *Messenger) SetCatalog(c *Catalog) {
	if c != nil {
		m.catalog = c
	}
}

// Send delivers a catalog message to one player.
func (m *Messenger) Send(id uuid.UUID, key string, ph map[string]string) {
	m.transport.MessagePlayer(id, m.catalog.Render(key, ph))
}

// Reply answers the actor who triggered an operation. Console replies go
// to the service log.
func (m *Messenger) Reply(a Actor, key string, ph map[string]string) {
	if a.IsConsole() {
		m.logger.Info(m.catalog.RenderRaw(key, ph))
		return
	}
	m.transport.MessagePlayer(a.ID, m.catalog.Render(key, ph))
}

// Broadcast sends a catalog message to every online player.
func (m *Messenger) Broadcast(key string, ph map[string]string) {
	m.transport.Broadcast(m.catalog.Render(key, ph))
}

// Staff sends a catalog message to players holding the notification
// permission.
func (m *Messenger) Staff(key string, ph map[string]string) {
	m.transport.BroadcastPermission(PermissionNotify, m.catalog.Render(key, ph))
}

// BroadcastText sends pre-rendered text to everyone, bypassing the
// catalog. Used for operator-supplied templates.
func (m *Messenger) BroadcastText(text string) {
	m.transport.Broadcast(text)
}

// StaffText sends pre-rendered text to notification holders.
func (m *Messenger) StaffText(text string) {
	m.transport.BroadcastPermission(PermissionNotify, text)
}
