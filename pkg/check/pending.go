package check

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mineguard/cheatercheck/pkg/messaging"
)

// The pending queue holds check requests whose targets were AFK when the
// request was made. A poll task watches for targets coming back and starts
// the real check then; it only runs while the queue is non-empty.

func (m *Manager) ensurePendingPoll() {
	if m.pendingTask != nil {
		return
	}
	interval := time.Duration(m.cfg.PendingPollIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	m.pendingTask = m.loop.RunRepeating(interval, interval, m.pollPending)
}

func (m *Manager) stopPendingPoll() {
	if m.pendingTask != nil {
		m.pendingTask.Cancel()
		m.pendingTask = nil
	}
}

func (m *Manager) dropPending(id uuid.UUID) {
	if _, ok := m.pending[id]; !ok {
		return
	}
	delete(m.pending, id)
	m.metrics.PendingChecks.Set(float64(len(m.pending)))
	if len(m.pending) == 0 {
		m.stopPendingPoll()
	}
}

// pollPending walks a snapshot of the queue. Offline targets are dropped;
// targets no longer AFK get their check started on behalf of the original
// initiator, falling back to the console when that initiator has left.
func (m *Manager) pollPending() {
	type entry struct {
		id        uuid.UUID
		initiator string
	}
	snapshot := make([]entry, 0, len(m.pending))
	for id, initiator := range m.pending {
		snapshot = append(snapshot, entry{id, initiator})
	}

	for _, e := range snapshot {
		p, online := m.dir.Player(e.id)
		if !online {
			m.dropPending(e.id)
			continue
		}
		if m.afk.IsAfk(e.id) {
			continue
		}
		m.dropPending(e.id)
		initiator := m.resolveInitiator(e.initiator)
		if m.startPlayer(initiator, p) != StartOK {
			continue
		}
		m.msg.Staff("check.afk-started", ph("player", p.Name, "initiator", e.initiator))
		m.logger.WithFields(logrus.Fields{"player": p.Name, "initiator": e.initiator}).
			Info("pending check target returned, starting check")
	}
}

func (m *Manager) resolveInitiator(name string) messaging.Actor {
	if p, ok := m.dir.PlayerByName(name); ok {
		return messaging.Actor{ID: p.ID, Name: p.Name}
	}
	return messaging.ConsoleActor()
}
