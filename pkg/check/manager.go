// Package check implements the administrative cheating-check workflow:
// freezing a suspect, counting down while staff investigate, and issuing
// the verdict.
package check

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mineguard/cheatercheck/pkg/afk"
	"github.com/mineguard/cheatercheck/pkg/freeze"
	"github.com/mineguard/cheatercheck/pkg/messaging"
	"github.com/mineguard/cheatercheck/pkg/metrics"
	"github.com/mineguard/cheatercheck/pkg/sched"
	"github.com/mineguard/cheatercheck/pkg/world"
)

// CommandSink executes server commands on the host, e.g. ban commands.
type CommandSink interface {
	RunCommand(command string)
}

// Store supplies the persisted moderation lists and receives the audit
// trail. Implementations must be safe for async recording.
type Store interface {
	IsBypassed(name string) bool
	OnStartCommands() []string
	OnStopCommands() []string
	OnQuitCommands() []string
	RecordAudit(e AuditEntry)
}

// AuditEntry is one line of the moderation audit trail.
type AuditEntry struct {
	Time    time.Time `json:"time"`
	Event   string    `json:"event"`
	Staff   string    `json:"staff"`
	Target  string    `json:"target"`
	Detail  string    `json:"detail,omitempty"`
	Verdict string    `json:"verdict,omitempty"`
}

// Reporter forwards notable moderation outcomes to an external channel.
type Reporter interface {
	CheckStarted(staff, target string)
	CheckEnded(staff, target string, verdict Verdict, cheat string)
	CheckQuit(target string, banned bool)
}

// StartResult says what happened to a start request.
type StartResult int

const (
	StartOK StartResult = iota
	StartOffline
	StartAlreadyChecked
	StartQueuedAfk
	StartAlreadyPending
	StartBypassed
	StartUnknownCheat
	StartNotChecked
	StartInvalidTime
)

// Manager owns all check sessions. It must only be used from the
// scheduler loop.
type Manager struct {
	cfg      Config
	loop     *sched.Loop
	dir      world.Directory
	freezer  *freeze.Manager
	afk      *afk.Tracker
	msg      *messaging.Messenger
	effects  world.Effects
	commands CommandSink
	store    Store
	cheats   *CheatCatalog
	reporter Reporter
	metrics  *metrics.Set
	logger   *logrus.Logger

	sessions    map[uuid.UUID]*session
	restricted  map[uuid.UUID]*sched.Task
	pending     map[uuid.UUID]string
	pendingTask *sched.Task
}

// NewManager wires a check manager. reporter may be nil.
func NewManager(cfg Config, loop *sched.Loop, dir world.Directory, freezer *freeze.Manager,
	tracker *afk.Tracker, msg *messaging.Messenger, effects world.Effects,
	commands CommandSink, store Store, cheats *CheatCatalog, reporter Reporter,
	set *metrics.Set, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cheats == nil {
		cheats = DefaultCheats()
	}
	return &Manager{
		cfg:        cfg,
		loop:       loop,
		dir:        dir,
		freezer:    freezer,
		afk:        tracker,
		msg:        msg,
		effects:    effects,
		commands:   commands,
		store:      store,
		cheats:     cheats,
		reporter:   reporter,
		metrics:    set,
		logger:     logger,
		sessions:   make(map[uuid.UUID]*session),
		restricted: make(map[uuid.UUID]*sched.Task),
		pending:    make(map[uuid.UUID]string),
	}
}

// Cheats exposes the loaded cheat catalog.
func (m *Manager) Cheats() *CheatCatalog { return m.cheats }

// SetConfig applies new settings. Live sessions keep the timing they
// started with; everything else picks up the new values.
func (m *Manager) SetConfig(cfg Config) { m.cfg = cfg }

// SetCheats replaces the cheat catalog.
func (m *Manager) SetCheats(c *CheatCatalog) {
	if c != nil {
		m.cheats = c
	}
}

// IsChecked reports whether the player has an active session.
func (m *Manager) IsChecked(id uuid.UUID) bool {
	_, ok := m.sessions[id]
	return ok
}

// IsRestricted reports whether the player is inside the post-check
// restriction window.
func (m *Manager) IsRestricted(id uuid.UUID) bool {
	_, ok := m.restricted[id]
	return ok
}

// ActiveCount returns the number of live sessions.
func (m *Manager) ActiveCount() int { return len(m.sessions) }

// ActiveCheck summarises one live session for the staff API.
type ActiveCheck struct {
	Target    string `json:"target"`
	Staff     string `json:"staff"`
	Remaining int    `json:"remaining_seconds"`
	Paused    bool   `json:"paused"`
}

// CheckedPlayers lists every live session.
func (m *Manager) CheckedPlayers() []ActiveCheck {
	out := make([]ActiveCheck, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, ActiveCheck{
			Target:    s.targetName,
			Staff:     s.staff.Name,
			Remaining: s.remaining,
			Paused:    s.paused,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

// CheckedBy returns the staff member checking the player, if any.
func (m *Manager) CheckedBy(id uuid.UUID) (messaging.Actor, bool) {
	s, ok := m.sessions[id]
	if !ok {
		return messaging.Actor{}, false
	}
	return s.staff, true
}

// PendingCount returns the number of queued AFK checks.
func (m *Manager) PendingCount() int { return len(m.pending) }

// StartCheck begins a check on the named player. An AFK target is queued
// instead and the check starts automatically once they return.
func (m *Manager) StartCheck(staff messaging.Actor, name string) StartResult {
	p, ok := m.dir.PlayerByName(name)
	if !ok {
		m.msg.Reply(staff, "check.offline", ph("player", name))
		return StartOffline
	}
	return m.startPlayer(staff, p)
}

func (m *Manager) startPlayer(staff messaging.Actor, p world.Player) StartResult {
	if m.IsChecked(p.ID) {
		m.msg.Reply(staff, "check.already-checked", ph("player", p.Name))
		return StartAlreadyChecked
	}
	// AFK is inspected before the bypass list: a queued target is
	// re-screened against the list when the check actually starts.
	if m.afk.IsAfk(p.ID) {
		if _, queued := m.pending[p.ID]; queued {
			m.msg.Reply(staff, "check.afk-already", ph("player", p.Name))
			return StartAlreadyPending
		}
		m.pending[p.ID] = staff.Name
		m.ensurePendingPoll()
		m.metrics.PendingChecks.Set(float64(len(m.pending)))
		m.msg.Reply(staff, "check.afk-queued", ph("player", p.Name))
		m.logger.WithFields(logrus.Fields{"player": p.Name, "staff": staff.Name}).
			Info("check queued for AFK player")
		return StartQueuedAfk
	}
	if m.store.IsBypassed(p.Name) {
		m.msg.Reply(staff, "check.bypassed", ph("player", p.Name))
		return StartBypassed
	}

	s := &session{
		staff:      staff,
		target:     p.ID,
		targetName: p.Name,
		startedAt:  m.loop.Now(),
		remaining:  m.cfg.TimeoutSeconds,
	}
	if m.cfg.Teleport.Enabled {
		loc := p.Location
		s.prevLoc = &loc
	}
	m.sessions[p.ID] = s

	if !m.freezer.Freeze(p.ID) {
		m.msg.Reply(staff, "freeze.already", ph("player", p.Name))
		m.logger.WithField("player", p.Name).Warn("target was already frozen, check continues")
	}
	if m.cfg.Teleport.Enabled {
		m.safeTeleport(p.ID, m.cfg.Teleport.Location)
	}

	timeLeft := ph("time", messaging.FormatSeconds(s.remaining))
	m.msg.Send(p.ID, "check.subject", timeLeft)
	if m.cfg.DiscordLink != "" {
		m.msg.Send(p.ID, "check.contact", ph("link", m.cfg.DiscordLink))
	}
	m.updateTimerBar(s)

	if m.cfg.NotifyStaff {
		m.msg.Staff("check.started", ph("player", p.Name))
	}
	if staff.IsConsole() || !m.cfg.NotifyStaff {
		m.msg.Reply(staff, "check.started", ph("player", p.Name))
	}

	for _, cmd := range m.store.OnStartCommands() {
		m.commands.RunCommand(m.expandCommand(cmd, p.Name, "", ""))
	}

	m.startActivities(s)

	m.metrics.ChecksStarted.Inc()
	m.metrics.ActiveChecks.Set(float64(len(m.sessions)))
	m.audit("check_started", staff.Name, p.Name, "", "")
	if m.reporter != nil {
		m.reporter.CheckStarted(staff.Name, p.Name)
	}
	m.logger.WithFields(logrus.Fields{"player": p.Name, "staff": staff.Name}).
		Info("check started")
	return StartOK
}

// ForceCheck starts a check ignoring AFK state. A queued pending check for
// the target is replaced by the live one.
func (m *Manager) ForceCheck(staff messaging.Actor, name string) StartResult {
	p, ok := m.dir.PlayerByName(name)
	if !ok {
		m.msg.Reply(staff, "check.offline", ph("player", name))
		return StartOffline
	}
	m.afk.ForceUpdateActivity(p.ID)
	m.dropPending(p.ID)
	return m.startPlayer(staff, p)
}

// RequestScreenshare starts a check if one is not already running and
// tells the target to prepare for a screenshare.
func (m *Manager) RequestScreenshare(staff messaging.Actor, name string) StartResult {
	p, ok := m.dir.PlayerByName(name)
	if !ok {
		m.msg.Reply(staff, "check.offline", ph("player", name))
		return StartOffline
	}
	if !m.IsChecked(p.ID) {
		if res := m.startPlayer(staff, p); res != StartOK {
			return res
		}
	}
	m.msg.Send(p.ID, "screenshare.subject", nil)
	m.msg.Staff("screenshare.staff", ph("player", p.Name, "staff", staff.Name))
	m.audit("screenshare_requested", staff.Name, p.Name, "", "")
	return StartOK
}

// TogglePause pauses a running check or resumes a paused one. Pausing
// genuinely defers the timeout: the ban timer is cancelled and re-armed
// with the remaining time on resume.
func (m *Manager) TogglePause(staff messaging.Actor, name string) StartResult {
	s, res := m.sessionByName(staff, name)
	if s == nil {
		return res
	}
	timeLeft := ph("time", messaging.FormatSeconds(s.remaining))
	if !s.paused {
		s.paused = true
		if s.timeout != nil {
			s.timeout.Cancel()
		}
		m.msg.Reply(staff, "check.paused", ph("player", s.targetName))
		m.msg.Send(s.target, "check.paused-subject", nil)
		m.audit("check_paused", staff.Name, s.targetName, "", "")
	} else {
		s.paused = false
		m.armTimeout(s)
		m.msg.Reply(staff, "check.resumed", ph("player", s.targetName, "time", timeLeft["time"]))
		m.msg.Send(s.target, "check.resumed-subject", timeLeft)
		m.audit("check_resumed", staff.Name, s.targetName, "", "")
	}
	return StartOK
}

// AddTime extends a running check by the given number of seconds.
func (m *Manager) AddTime(staff messaging.Actor, name string, seconds int) StartResult {
	if seconds <= 0 {
		m.msg.Reply(staff, "check.invalid-time", nil)
		return StartInvalidTime
	}
	s, res := m.sessionByName(staff, name)
	if s == nil {
		return res
	}
	s.remaining += seconds
	if !s.paused {
		m.armTimeout(s)
		m.updateTimerBar(s)
	}
	m.msg.Reply(staff, "check.time-added",
		ph("player", s.targetName, "time", messaging.FormatSeconds(seconds)))
	m.msg.Send(s.target, "check.reminder", ph("time", messaging.FormatSeconds(s.remaining)))
	m.audit("check_time_added", staff.Name, s.targetName, messaging.FormatSeconds(seconds), "")
	return StartOK
}

// EndCheck concludes a check. An empty cheat name is a clean verdict; a
// known cheat name bans the target using that cheat's command.
func (m *Manager) EndCheck(staff messaging.Actor, name, cheat string) StartResult {
	s, res := m.sessionByName(staff, name)
	if s == nil {
		// A freeze without a session is stale state; clear it even
		// though the end request itself is rejected.
		if res == StartNotChecked {
			if p, ok := m.dir.PlayerByName(name); ok && m.freezer.Unfreeze(p.ID) {
				m.logger.WithField("player", p.Name).Warn("cleared freeze with no session")
			}
		}
		return res
	}
	if cheat == "" {
		m.conclude(s, staff, VerdictClean, "", CheatDefinition{})
		return StartOK
	}
	def, ok := m.cheats.Resolve(cheat)
	if !ok {
		m.msg.Reply(staff, "check.unknown-cheat", ph("cheat", cheat))
		return StartUnknownCheat
	}
	m.conclude(s, staff, VerdictCheat, strings.ToLower(cheat), def)
	return StartOK
}

// StopCheck aborts a check without rendering a verdict. No ban can
// result from it. The target is resolved by online name first, then by
// name among sessioned players so a check on a disconnected target can
// still be stopped.
func (m *Manager) StopCheck(staff messaging.Actor, name string) StartResult {
	s, ok := m.resolveSession(name)
	if !ok {
		m.msg.Reply(staff, "check.not-checked", ph("player", name))
		return StartNotChecked
	}
	s.cancelTasks()
	delete(m.sessions, s.target)
	m.effects.HideTimerBar(s.target)
	m.freezer.Unfreeze(s.target)
	m.metrics.ActiveChecks.Set(float64(len(m.sessions)))

	if _, online := m.dir.Player(s.target); online {
		if s.prevLoc != nil {
			m.safeTeleport(s.target, *s.prevLoc)
		}
		m.beginRestriction(s.target)
		m.msg.Send(s.target, "check.stopped-subject", ph("staff", staff.Name))
		for _, hook := range m.store.OnStopCommands() {
			m.commands.RunCommand(m.expandCommand(hook, s.targetName, "", ""))
		}
	}

	m.msg.Reply(staff, "check.stopped", ph("player", s.targetName))
	if m.cfg.NotifyStaff {
		m.msg.Staff("check.stopped-staff", ph("player", s.targetName, "staff", staff.Name))
	}
	m.metrics.ChecksEnded.WithLabelValues(string(VerdictCancelled)).Inc()
	m.audit("check_stopped", staff.Name, s.targetName, "", string(VerdictCancelled))
	if m.reporter != nil {
		m.reporter.CheckEnded(staff.Name, s.targetName, VerdictCancelled, "")
	}
	m.logger.WithFields(logrus.Fields{"player": s.targetName, "staff": staff.Name}).
		Info("check stopped")
	return StartOK
}

// CancelAll tears down every session and queued check without verdicts,
// unfreezing all targets. It returns how many sessions were cancelled.
func (m *Manager) CancelAll(staff messaging.Actor) int {
	count := len(m.sessions)
	for id, s := range m.sessions {
		s.cancelTasks()
		m.effects.HideTimerBar(id)
		m.freezer.Unfreeze(id)
		delete(m.sessions, id)
		m.metrics.ChecksEnded.WithLabelValues(string(VerdictCancelled)).Inc()
	}
	m.pending = make(map[uuid.UUID]string)
	m.stopPendingPoll()
	m.metrics.ActiveChecks.Set(0)
	m.metrics.PendingChecks.Set(0)
	m.msg.Reply(staff, "check.cancelled-all", ph("count", strconv.Itoa(count)))
	m.audit("checks_cancelled", staff.Name, "", strconv.Itoa(count), "")
	return count
}

// HandleQuit is called when a player disconnects. A checked player is
// auto-banned when configured; the session is removed either way.
func (m *Manager) HandleQuit(p world.Player) {
	m.dropPending(p.ID)
	s, ok := m.sessions[p.ID]
	if !ok {
		return
	}
	s.cancelTasks()
	delete(m.sessions, p.ID)
	m.freezer.Unfreeze(p.ID)
	m.metrics.ActiveChecks.Set(float64(len(m.sessions)))

	banned := m.cfg.AutoBanOnQuit
	if banned {
		m.commands.RunCommand(m.expandCommand(m.cfg.QuitCommand, p.Name, "", ""))
		for _, cmd := range m.store.OnQuitCommands() {
			m.commands.RunCommand(m.expandCommand(cmd, p.Name, "", ""))
		}
		m.broadcastOutcome("check.quit-banned", ph("player", p.Name))
		m.metrics.Bans.WithLabelValues("quit").Inc()
	} else {
		m.msg.Staff("check.quit", ph("player", p.Name))
	}
	m.metrics.ChecksEnded.WithLabelValues(string(VerdictQuit)).Inc()
	m.audit("check_quit", s.staff.Name, p.Name, "", string(VerdictQuit))
	if m.reporter != nil {
		m.reporter.CheckQuit(p.Name, banned)
	}
	m.logger.WithFields(logrus.Fields{"player": p.Name, "banned": banned}).
		Warn("player quit during check")
}

// ReconcileJoin repairs half-open state when a player joins: a session
// without a freeze ends clean, a freeze without a session is lifted.
func (m *Manager) ReconcileJoin(p world.Player) {
	checked := m.IsChecked(p.ID)
	frozen := m.freezer.IsFrozen(p.ID)
	switch {
	case checked && !frozen:
		m.logger.WithField("player", p.Name).Warn("checked but not frozen on join, ending check clean")
		m.conclude(m.sessions[p.ID], messaging.ConsoleActor(), VerdictClean, "", CheatDefinition{})
	case frozen && !checked:
		m.logger.WithField("player", p.Name).Warn("frozen but not checked on join, unfreezing")
		m.freezer.Unfreeze(p.ID)
	}
}

// Close cancels every session and pending entry without issuing verdicts.
// Used at service shutdown.
func (m *Manager) Close() {
	m.CancelAll(messaging.ConsoleActor())
	for id, task := range m.restricted {
		task.Cancel()
		delete(m.restricted, id)
	}
}

// conclude removes the session and applies the verdict.
func (m *Manager) conclude(s *session, staff messaging.Actor, verdict Verdict, cheat string, def CheatDefinition) {
	if m.sessions[s.target] != s {
		return
	}
	s.cancelTasks()
	delete(m.sessions, s.target)
	m.effects.HideTimerBar(s.target)
	m.freezer.Unfreeze(s.target)
	m.metrics.ActiveChecks.Set(float64(len(m.sessions)))

	_, online := m.dir.Player(s.target)

	switch verdict {
	case VerdictClean:
		m.msg.Staff("check.clean", ph("player", s.targetName))
		if staff.IsConsole() {
			m.msg.Reply(staff, "check.clean", ph("player", s.targetName))
		}
		if online && s.prevLoc != nil && m.cfg.Teleport.RestoreOnClean {
			m.safeTeleport(s.target, *s.prevLoc)
		}
		if online {
			m.beginRestriction(s.target)
		}

	case VerdictCheat:
		if def.AutoBan {
			cmd := m.cfg.BanCommand
			if def.BanCommand != "" {
				cmd = def.BanCommand
			}
			m.commands.RunCommand(m.expandCommand(cmd, s.targetName, cheat, def.BanTime))
			if def.BanMessage != "" {
				m.broadcastRaw(def.BanMessage, s.targetName, cheat)
			} else {
				m.broadcastOutcome("check.banned-public", ph("player", s.targetName))
			}
			m.msg.Staff("check.banned-staff",
				ph("player", s.targetName, "cheat", cheat, "staff", staff.Name))
			m.metrics.Bans.WithLabelValues("cheat").Inc()
		} else {
			// No auto-ban configured for this cheat; staff punish by
			// hand.
			m.msg.Staff("check.cheat-manual",
				ph("player", s.targetName, "cheat", cheat, "staff", staff.Name))
		}

	case VerdictTimeout:
		m.commands.RunCommand(m.expandCommand(m.cfg.TimeoutCommand, s.targetName, "", ""))
		m.broadcastOutcome("check.timeout", ph("player", s.targetName))
		m.metrics.Bans.WithLabelValues("timeout").Inc()
	}

	m.metrics.ChecksEnded.WithLabelValues(string(verdict)).Inc()
	m.audit("check_ended", staff.Name, s.targetName, cheat, string(verdict))
	if m.reporter != nil {
		m.reporter.CheckEnded(staff.Name, s.targetName, verdict, cheat)
	}
	m.logger.WithFields(logrus.Fields{
		"player":  s.targetName,
		"verdict": verdict,
		"cheat":   cheat,
		"elapsed": m.loop.Now().Sub(s.startedAt).String(),
	}).Info("check ended")
}

// beginRestriction opens the post-check window during which the player
// cannot drop or pick up items.
func (m *Manager) beginRestriction(id uuid.UUID) {
	d := time.Duration(m.cfg.PostCheckRestrictionSeconds) * time.Second
	if d <= 0 {
		return
	}
	if prev, ok := m.restricted[id]; ok {
		prev.Cancel()
	}
	m.restricted[id] = m.loop.RunOnce(d, func() {
		delete(m.restricted, id)
		if _, online := m.dir.Player(id); online {
			m.msg.Send(id, "check.restriction-over", nil)
		}
	})
}

// safeTeleport moves the player after a short delay with one retry. The
// freeze movement guard is granted an allowance for each attempt. A
// failed retry is logged and never blocks the calling flow.
func (m *Manager) safeTeleport(id uuid.UUID, loc world.Location) {
	delay := time.Duration(m.cfg.Teleport.DelayMs) * time.Millisecond
	retryDelay := time.Duration(m.cfg.Teleport.RetryDelayMs) * time.Millisecond
	m.loop.RunOnce(delay, func() {
		m.freezer.AllowTeleport(id)
		if m.dir.Teleport(id, loc) {
			return
		}
		m.logger.WithField("id", id).Warn("teleport failed, retrying once")
		m.loop.RunOnce(retryDelay, func() {
			m.freezer.AllowTeleport(id)
			if !m.dir.Teleport(id, loc) {
				m.logger.WithField("id", id).Error("teleport retry failed, giving up")
			}
		})
	})
}

// broadcastOutcome sends a ban outcome either publicly or to staff only,
// per configuration.
func (m *Manager) broadcastOutcome(key string, ph map[string]string) {
	if m.cfg.PublicBanMessage {
		m.msg.Broadcast(key, ph)
	} else {
		m.msg.Staff(key, ph)
	}
}

// broadcastRaw sends a per-cheat ban message template, which bypasses the
// catalog.
func (m *Manager) broadcastRaw(tpl, player, cheat string) {
	text := strings.ReplaceAll(tpl, "{player}", player)
	text = strings.ReplaceAll(text, "{cheat}", cheat)
	if m.cfg.PublicBanMessage {
		m.msg.BroadcastText(text)
	} else {
		m.msg.StaffText(text)
	}
}

// resolveSession finds a session by target name, consulting the online
// roster first and falling back to a case-insensitive match among
// sessioned players so a disconnected target can still be addressed.
func (m *Manager) resolveSession(name string) (*session, bool) {
	if p, ok := m.dir.PlayerByName(name); ok {
		s, ok := m.sessions[p.ID]
		return s, ok
	}
	for _, s := range m.sessions {
		if strings.EqualFold(s.targetName, name) {
			return s, true
		}
	}
	return nil, false
}

func (m *Manager) sessionByName(staff messaging.Actor, name string) (*session, StartResult) {
	p, ok := m.dir.PlayerByName(name)
	if !ok {
		m.msg.Reply(staff, "check.offline", ph("player", name))
		return nil, StartOffline
	}
	s, ok := m.sessions[p.ID]
	if !ok {
		m.msg.Reply(staff, "check.not-checked", ph("player", p.Name))
		return nil, StartNotChecked
	}
	return s, StartOK
}

func (m *Manager) expandCommand(tpl, player, cheat, banTime string) string {
	out := strings.ReplaceAll(tpl, "{player}", player)
	out = strings.ReplaceAll(out, "{cheat}", cheat)
	out = strings.ReplaceAll(out, "{time}", banTime)
	return out
}

func (m *Manager) audit(event, staff, target, detail, verdict string) {
	m.store.RecordAudit(AuditEntry{
		Time:    m.loop.Now(),
		Event:   event,
		Staff:   staff,
		Target:  target,
		Detail:  detail,
		Verdict: verdict,
	})
}
