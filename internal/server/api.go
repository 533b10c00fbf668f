package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mineguard/cheatercheck/pkg/afk"
	"github.com/mineguard/cheatercheck/pkg/check"
	"github.com/mineguard/cheatercheck/pkg/events"
	"github.com/mineguard/cheatercheck/pkg/freeze"
	"github.com/mineguard/cheatercheck/pkg/messaging"
	"github.com/mineguard/cheatercheck/pkg/sched"
	"github.com/mineguard/cheatercheck/pkg/store"
	"github.com/mineguard/cheatercheck/pkg/world"
)

// Handler bundles the moderation managers behind the HTTP API. Every
// manager call is funneled through the loop so handlers never touch
// loop-owned state directly.
type Handler struct {
	Loop    *sched.Loop
	Checks  *check.Manager
	Freezer *freeze.Manager
	Tracker *afk.Tracker
	Roster  *world.Memory
	Store   *store.Store
	Router  *events.Router
	Logger  *logrus.Logger

	// Reload re-reads file-based settings and the Redis snapshot; wired
	// by the app, nil disables the endpoint.
	Reload func(ctx context.Context) error
}

type targetRequest struct {
	Target string `json:"target" binding:"required"`
}

// statusFor maps a start result to the HTTP status and message the staff
// client sees.
func statusFor(res check.StartResult) (int, string) {
	switch res {
	case check.StartOK:
		return http.StatusOK, "ok"
	case check.StartQueuedAfk:
		return http.StatusAccepted, "target is AFK, check queued"
	case check.StartOffline:
		return http.StatusNotFound, "player is not online"
	case check.StartNotChecked:
		return http.StatusNotFound, "player is not being checked"
	case check.StartAlreadyChecked:
		return http.StatusConflict, "player is already being checked"
	case check.StartAlreadyPending:
		return http.StatusConflict, "a check is already queued for this player"
	case check.StartBypassed:
		return http.StatusForbidden, "player is on the bypass list"
	case check.StartUnknownCheat:
		return http.StatusBadRequest, "unknown cheat type"
	case check.StartInvalidTime:
		return http.StatusBadRequest, "time must be positive"
	default:
		return http.StatusInternalServerError, "unexpected result"
	}
}

func respond(c *gin.Context, res check.StartResult) {
	code, msg := statusFor(res)
	if code == http.StatusOK || code == http.StatusAccepted {
		c.JSON(code, gin.H{"status": msg})
		return
	}
	c.JSON(code, gin.H{"error": msg})
}

func (h *Handler) StartCheck(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	staff := actorFrom(c)
	var res check.StartResult
	h.Loop.Do(func() { res = h.Checks.StartCheck(staff, req.Target) })
	respond(c, res)
}

func (h *Handler) ForceCheck(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	staff := actorFrom(c)
	var res check.StartResult
	h.Loop.Do(func() { res = h.Checks.ForceCheck(staff, req.Target) })
	respond(c, res)
}

func (h *Handler) Screenshare(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	staff := actorFrom(c)
	var res check.StartResult
	h.Loop.Do(func() { res = h.Checks.RequestScreenshare(staff, req.Target) })
	respond(c, res)
}

func (h *Handler) TogglePause(c *gin.Context) {
	staff := actorFrom(c)
	name := c.Param("name")
	var res check.StartResult
	h.Loop.Do(func() { res = h.Checks.TogglePause(staff, name) })
	respond(c, res)
}

func (h *Handler) AddTime(c *gin.Context) {
	var req struct {
		Seconds int `json:"seconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	staff := actorFrom(c)
	name := c.Param("name")
	var res check.StartResult
	h.Loop.Do(func() { res = h.Checks.AddTime(staff, name, req.Seconds) })
	respond(c, res)
}

func (h *Handler) EndCheck(c *gin.Context) {
	var req struct {
		Cheat string `json:"cheat"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	staff := actorFrom(c)
	name := c.Param("name")
	var res check.StartResult
	h.Loop.Do(func() { res = h.Checks.EndCheck(staff, name, req.Cheat) })
	respond(c, res)
}

func (h *Handler) StopCheck(c *gin.Context) {
	staff := actorFrom(c)
	name := c.Param("name")
	var res check.StartResult
	h.Loop.Do(func() { res = h.Checks.StopCheck(staff, name) })
	respond(c, res)
}

func (h *Handler) CancelAll(c *gin.Context) {
	staff := actorFrom(c)
	var n int
	h.Loop.Do(func() { n = h.Checks.CancelAll(staff) })
	c.JSON(http.StatusOK, gin.H{"cancelled": n})
}

// resolveID turns a path segment into a player id. Accepts either an
// online player name or a raw UUID so offline players can still be
// unfrozen.
func (h *Handler) resolveID(name string) (uuid.UUID, bool) {
	var p world.Player
	var ok bool
	h.Loop.Do(func() { p, ok = h.Roster.PlayerByName(name) })
	if ok {
		return p.ID, true
	}
	if id, err := uuid.Parse(name); err == nil {
		return id, true
	}
	return uuid.Nil, false
}

func (h *Handler) Freeze(c *gin.Context) {
	id, ok := h.resolveID(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "player is not online"})
		return
	}
	var frozen bool
	h.Loop.Do(func() { frozen = h.Freezer.Freeze(id) })
	if !frozen {
		c.JSON(http.StatusConflict, gin.H{"error": "player is already frozen"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "frozen"})
}

func (h *Handler) Unfreeze(c *gin.Context) {
	id, ok := h.resolveID(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown player"})
		return
	}
	var lifted bool
	h.Loop.Do(func() { lifted = h.Freezer.Unfreeze(id) })
	if !lifted {
		c.JSON(http.StatusNotFound, gin.H{"error": "player is not frozen"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unfrozen"})
}

func (h *Handler) BypassList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"players": h.Store.BypassList()})
}

func (h *Handler) AddBypass(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.AddBypass(c.Request.Context(), req.Target); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

func (h *Handler) RemoveBypass(c *gin.Context) {
	removed, err := h.Store.RemoveBypass(c.Request.Context(), c.Param("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, gin.H{"error": "player is not on the bypass list"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

func (h *Handler) SetHookCommands(c *gin.Context) {
	var req struct {
		Commands []string `json:"commands"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.SetHookCommands(c.Request.Context(), c.Param("hook"), req.Commands); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

func (h *Handler) RecentAudit(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := h.Store.RecentAudit(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) Status(c *gin.Context) {
	var active, pending, frozen, online int
	var checks []check.ActiveCheck
	var cheats []string
	h.Loop.Do(func() {
		active = h.Checks.ActiveCount()
		pending = h.Checks.PendingCount()
		frozen = h.Freezer.Count()
		online = len(h.Roster.Online())
		checks = h.Checks.CheckedPlayers()
		// the catalog is swapped on the loop during reloads
		cheats = h.Checks.Cheats().Names()
	})
	c.JSON(http.StatusOK, gin.H{
		"active_checks":  active,
		"pending_checks": pending,
		"frozen_players": frozen,
		"online_players": online,
		"checks":         checks,
		"cheats":         cheats,
	})
}

// ReloadConfig re-reads the settings file, message catalog, cheat
// definitions and the Redis snapshot without restarting the service.
func (h *Handler) ReloadConfig(c *gin.Context) {
	if h.Reload == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "reload is not wired"})
		return
	}
	if err := h.Reload(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}

// Ingest receives one forwarded game event from the host shim and
// answers whether the host should cancel it.
func (h *Handler) Ingest(c *gin.Context) {
	var ev events.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ev.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event type is required"})
		return
	}

	_, span := otel.Tracer("cheatercheck/server").Start(c.Request.Context(), "events.dispatch",
		trace.WithAttributes(attribute.String("event.type", ev.Type)))
	defer span.End()

	var dec events.Decision
	h.Loop.Do(func() { dec = h.Router.Dispatch(ev) })
	span.SetAttributes(attribute.Bool("event.cancelled", dec.Cancel))
	c.JSON(http.StatusOK, dec)
}

// traced opens a span per admin request, named after the matched route.
func traced() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := otel.Tracer("cheatercheck/server").Start(c.Request.Context(), c.FullPath())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("http.status_code", c.Writer.Status()))
		span.End()
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Routes mounts all endpoints on the engine. Staff routes require a JWT
// with the check permission; the event stream authenticates with the
// static host token.
func (h *Handler) Routes(r *gin.Engine, auth *Auth, hostToken string) {
	r.GET("/healthz", h.Health)

	host := r.Group("/v1", requireSharedToken(hostToken))
	host.POST("/events", h.Ingest)

	admin := r.Group("/v1/admin", traced(), auth.Require(messaging.PermissionCheck))
	admin.GET("/status", h.Status)
	admin.POST("/checks", h.StartCheck)
	admin.POST("/checks/force", h.ForceCheck)
	admin.POST("/checks/screenshare", h.Screenshare)
	admin.POST("/checks/:name/pause", h.TogglePause)
	admin.POST("/checks/:name/time", h.AddTime)
	admin.POST("/checks/:name/end", h.EndCheck)
	admin.POST("/checks/:name/stop", h.StopCheck)
	admin.POST("/checks/cancel-all", h.CancelAll)
	admin.POST("/freeze/:name", h.Freeze)
	admin.DELETE("/freeze/:name", h.Unfreeze)
	admin.GET("/bypass", h.BypassList)
	admin.POST("/bypass", h.AddBypass)
	admin.DELETE("/bypass/:name", h.RemoveBypass)
	admin.PUT("/hooks/:hook", h.SetHookCommands)
	admin.GET("/audit", h.RecentAudit)
	admin.POST("/reload", h.ReloadConfig)
}
