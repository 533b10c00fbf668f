package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mineguard/cheatercheck/pkg/afk"
	"github.com/mineguard/cheatercheck/pkg/check"
	"github.com/mineguard/cheatercheck/pkg/freeze"
	"github.com/mineguard/cheatercheck/pkg/messaging"
	"github.com/mineguard/cheatercheck/pkg/metrics"
	"github.com/mineguard/cheatercheck/pkg/sched"
	"github.com/mineguard/cheatercheck/pkg/world"
)

// warnInterval throttles the "you are frozen" style notices so a held-down
// movement key does not flood the player's chat.
const warnInterval = 2 * time.Second

// Router applies moderation rules to incoming events. It must only be
// used from the scheduler loop; the HTTP layer marshals onto it.
type Router struct {
	loop    *sched.Loop
	roster  *world.Memory
	afk     *afk.Tracker
	freezer *freeze.Manager
	checks  *check.Manager
	msg     *messaging.Messenger
	metrics *metrics.Set
	logger  *logrus.Logger

	lastWarn map[uuid.UUID]time.Time
}

func NewRouter(loop *sched.Loop, roster *world.Memory, tracker *afk.Tracker,
	freezer *freeze.Manager, checks *check.Manager, msg *messaging.Messenger,
	set *metrics.Set, logger *logrus.Logger) *Router {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Router{
		loop:     loop,
		roster:   roster,
		afk:      tracker,
		freezer:  freezer,
		checks:   checks,
		msg:      msg,
		metrics:  set,
		logger:   logger,
		lastWarn: make(map[uuid.UUID]time.Time),
	}
}

// Dispatch handles one event and returns the verdict for the host.
func (r *Router) Dispatch(ev Event) Decision {
	r.metrics.EventsIngested.WithLabelValues(ev.Type).Inc()
	d := r.route(ev)
	if d.Cancel {
		r.metrics.EventsCancelled.WithLabelValues(ev.Type).Inc()
	}
	return d
}

func (r *Router) route(ev Event) Decision {
	switch ev.Type {
	case TypeJoin:
		return r.join(ev)
	case TypeQuit, TypeKick:
		// kicks run the same disconnect path as voluntary quits
		return r.quit(ev)
	case TypeMove:
		return r.move(ev)
	case TypeTeleport:
		return r.teleport(ev)
	case TypeChat:
		r.afk.UpdateActivity(ev.PlayerID)
		return allow
	case TypeCommand:
		return r.command(ev)
	case TypeInteract, TypeBlockBreak, TypeBlockPlace, TypeInventoryClick, TypeAttack:
		return r.interaction(ev)
	case TypeDamage:
		// frozen players cannot be hurt; no activity credit either way
		if r.freezer.IsFrozen(ev.PlayerID) {
			return cancel
		}
		return allow
	case TypeItemDrop, TypeItemPickup:
		return r.itemTransfer(ev)
	default:
		r.logger.WithField("type", ev.Type).Warn("unknown event type from host")
		return allow
	}
}

func (r *Router) join(ev Event) Decision {
	p := world.Player{ID: ev.PlayerID, Name: ev.Name}
	if ev.Location != nil {
		p.Location = *ev.Location
	}
	r.roster.Join(p)
	r.afk.UpdateActivity(p.ID)
	r.checks.ReconcileJoin(p)
	r.logger.WithField("player", p.Name).Debug("player joined")
	return allow
}

func (r *Router) quit(ev Event) Decision {
	if p, ok := r.roster.Player(ev.PlayerID); ok {
		r.checks.HandleQuit(p)
		r.afk.Forget(p.ID)
		r.roster.Leave(p.ID)
		r.logger.WithField("player", p.Name).Debug("player left")
	}
	return allow
}

func (r *Router) move(ev Event) Decision {
	if ev.To == nil {
		return allow
	}
	from, ok := r.roster.Location(ev.PlayerID)
	if !ok {
		return allow
	}
	// pure look-around: never activity, never blocked
	if from.SamePosition(*ev.To) {
		r.roster.SetLocation(ev.PlayerID, *ev.To)
		return allow
	}
	if r.freezer.IsFrozen(ev.PlayerID) {
		r.freezer.SnapToGround(ev.PlayerID)
		r.warn(ev.PlayerID, "freeze.no-move")
		return cancel
	}
	r.afk.UpdateActivity(ev.PlayerID)
	r.roster.SetLocation(ev.PlayerID, *ev.To)
	return allow
}

func (r *Router) teleport(ev Event) Decision {
	if r.freezer.IsFrozen(ev.PlayerID) {
		if !r.freezer.ConsumeTeleportAllowance(ev.PlayerID) {
			r.warn(ev.PlayerID, "freeze.no-move")
			return cancel
		}
	}
	if ev.To != nil {
		r.roster.SetLocation(ev.PlayerID, *ev.To)
	}
	return allow
}

func (r *Router) command(ev Event) Decision {
	r.afk.UpdateActivity(ev.PlayerID)
	if r.freezer.IsFrozen(ev.PlayerID) && !r.freezer.IsCommandAllowed(ev.Command) {
		r.warn(ev.PlayerID, "freeze.no-command")
		return cancel
	}
	return allow
}

func (r *Router) interaction(ev Event) Decision {
	r.afk.UpdateActivity(ev.PlayerID)
	if r.freezer.IsFrozen(ev.PlayerID) {
		r.warn(ev.PlayerID, "freeze.no-interact")
		return cancel
	}
	return allow
}

// itemTransfer guards both freezes and the post-check restriction window.
func (r *Router) itemTransfer(ev Event) Decision {
	if r.freezer.IsFrozen(ev.PlayerID) {
		r.warn(ev.PlayerID, "freeze.no-interact")
		return cancel
	}
	if r.checks.IsRestricted(ev.PlayerID) {
		r.warn(ev.PlayerID, "check.restricted")
		return cancel
	}
	if ev.Type == TypeItemDrop {
		r.afk.UpdateActivity(ev.PlayerID)
	}
	return allow
}

func (r *Router) warn(id uuid.UUID, key string) {
	now := r.loop.Now()
	if last, ok := r.lastWarn[id]; ok && now.Sub(last) < warnInterval {
		return
	}
	r.lastWarn[id] = now
	r.msg.Send(id, key, nil)
}
