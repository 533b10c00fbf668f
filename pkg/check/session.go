package check

import (
	"time"

	"github.com/google/uuid"

	"github.com/mineguard/cheatercheck/pkg/messaging"
	"github.com/mineguard/cheatercheck/pkg/sched"
	"github.com/mineguard/cheatercheck/pkg/world"
)

// Verdict is the outcome of a check.
type Verdict string

const (
	VerdictClean     Verdict = "clean"
	VerdictCheat     Verdict = "cheat"
	VerdictTimeout   Verdict = "timeout"
	VerdictQuit      Verdict = "quit"
	VerdictCancelled Verdict = "cancelled"
)

// session is the live state of one check. Each scheduled activity holds
// its own task handle so it can be torn down or re-armed independently.
type session struct {
	staff      messaging.Actor
	target     uuid.UUID
	targetName string
	startedAt  time.Time
	// prevLoc is where the target stood before being moved to the check
	// room; nil when teleporting is disabled.
	prevLoc *world.Location

	remaining int
	paused    bool

	reminder *sched.Task
	title    *sched.Task
	tick     *sched.Task
	timeout  *sched.Task
}

// cancelTasks tears down every scheduled activity of the session. Safe to
// call more than once.
func (s *session) cancelTasks() {
	for _, t := range []*sched.Task{s.reminder, s.title, s.tick, s.timeout} {
		if t != nil {
			t.Cancel()
		}
	}
}

// armTimeout schedules the timeout ban for the current remaining time,
// replacing any previous timer.
func (m *Manager) armTimeout(s *session) {
	if s.timeout != nil {
		s.timeout.Cancel()
	}
	s.timeout = m.loop.RunOnce(time.Duration(s.remaining)*time.Second, func() {
		m.expire(s)
	})
}

// startActivities wires the four recurring activities of a fresh session.
func (m *Manager) startActivities(s *session) {
	reminderEvery := time.Duration(m.cfg.ReminderIntervalSeconds) * time.Second
	if reminderEvery > 0 {
		s.reminder = m.loop.RunRepeating(reminderEvery, reminderEvery, func() {
			if s.paused {
				return
			}
			m.msg.Send(s.target, "check.reminder", ph("time", messaging.FormatSeconds(s.remaining)))
		})
	}

	if m.cfg.Title.Enabled {
		titleEvery := time.Duration(m.cfg.Title.IntervalSeconds) * time.Second
		if titleEvery <= 0 {
			titleEvery = 30 * time.Second
		}
		s.title = m.loop.RunRepeating(0, titleEvery, func() {
			if s.paused {
				return
			}
			m.sendCheckTitle(s)
		})
	}

	s.tick = m.loop.RunRepeating(time.Second, time.Second, func() {
		m.tickSession(s)
	})

	m.armTimeout(s)
}

func (m *Manager) sendCheckTitle(s *session) {
	cat := m.msg.Catalog()
	timeLeft := ph("time", messaging.FormatSeconds(s.remaining))
	m.effects.SendTitle(s.target,
		cat.RenderRaw("check.title", nil),
		cat.RenderRaw("check.subtitle", timeLeft),
		m.cfg.Title.FadeInTicks, m.cfg.Title.StayTicks, m.cfg.Title.FadeOutTicks)
}

// tickSession runs every second for the session's lifetime. Countdown and
// bar updates stop while paused.
func (m *Manager) tickSession(s *session) {
	if s.paused {
		return
	}
	s.remaining--
	if s.remaining <= 0 {
		m.expire(s)
		return
	}
	m.updateTimerBar(s)
}

func (m *Manager) updateTimerBar(s *session) {
	progress := float64(s.remaining) / float64(m.cfg.TimeoutSeconds)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}
	text := m.msg.Catalog().RenderRaw("check.timer-bar", ph("time", messaging.FormatSeconds(s.remaining)))
	m.effects.ShowTimerBar(s.target, text, progress)
}

// expire handles the timeout path. It is reachable from both the countdown
// tick and the one-shot timeout timer; whichever fires first wins and the
// session lookup makes the second a no-op.
func (m *Manager) expire(s *session) {
	if m.sessions[s.target] != s {
		return
	}
	m.logger.WithField("player", s.targetName).Warn("check timed out")
	m.conclude(s, messaging.ConsoleActor(), VerdictTimeout, "", CheatDefinition{})
}

func ph(kv ...string) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}
