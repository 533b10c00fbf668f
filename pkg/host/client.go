// Package host is the outbound bridge to the game-server shim. The shim
// exposes a small HTTP API through which the service sends chat, effects,
// teleports and console commands back to the game.
package host

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mineguard/cheatercheck/pkg/world"
)

// Client talks to the shim. It implements the transport, effects, command
// and block-query interfaces the managers depend on. Delivery failures
// are logged and swallowed; the moderation flows must keep working when
// the game side hiccups.
type Client struct {
	base   string
	token  string
	http   *http.Client
	logger *logrus.Logger
}

func NewClient(base, token string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		base:   base,
		token:  token,
		http:   &http.Client{Timeout: 2 * time.Second},
		logger: logger,
	}
}

// errStatus carries a non-2xx shim response.
type errStatus struct{ code int }

func (e errStatus) Error() string { return fmt.Sprintf("shim returned status %d", e.code) }

func (c *Client) post(path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal shim payload: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return errStatus{resp.StatusCode}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode shim response: %w", err)
		}
	}
	return nil
}

// fire sends a request where failure only merits a log line.
func (c *Client) fire(path string, payload any) {
	if err := c.post(path, payload, nil); err != nil {
		c.logger.WithError(err).WithField("path", path).Warn("shim delivery failed")
	}
}

// messaging.Transport

func (c *Client) MessagePlayer(id uuid.UUID, text string) {
	c.fire("/v1/message", map[string]any{"player_id": id, "text": text})
}

func (c *Client) Broadcast(text string) {
	c.fire("/v1/broadcast", map[string]any{"text": text})
}

func (c *Client) BroadcastPermission(permission, text string) {
	c.fire("/v1/broadcast", map[string]any{"text": text, "permission": permission})
}

// check.CommandSink

func (c *Client) RunCommand(command string) {
	c.fire("/v1/command", map[string]any{"command": command})
}

// world.Effects

func (c *Client) SendTitle(id uuid.UUID, title, subtitle string, fadeIn, stay, fadeOut int) {
	c.fire("/v1/title", map[string]any{
		"player_id": id, "title": title, "subtitle": subtitle,
		"fade_in": fadeIn, "stay": stay, "fade_out": fadeOut,
	})
}

func (c *Client) PlaySound(id uuid.UUID, sound string, volume, pitch float64) {
	c.fire("/v1/sound", map[string]any{
		"player_id": id, "sound": sound, "volume": volume, "pitch": pitch,
	})
}

// SpawnParticle returns an error only when the shim rejects the particle
// id itself; transient delivery failures are swallowed so one network
// blip does not disable particle rendering.
func (c *Client) SpawnParticle(worldName, particle string, x, y, z float64) error {
	err := c.post("/v1/particle", map[string]any{
		"world": worldName, "particle": particle, "x": x, "y": y, "z": z,
	}, nil)
	var status errStatus
	if err != nil {
		if errors.As(err, &status) && status.code == http.StatusUnprocessableEntity {
			return fmt.Errorf("particle %q rejected by host", particle)
		}
		c.logger.WithError(err).Warn("particle delivery failed")
	}
	return nil
}

func (c *Client) ApplyBlindness(id uuid.UUID) {
	c.fire("/v1/effect", map[string]any{"player_id": id, "effect": "blindness", "apply": true})
}

func (c *Client) ClearBlindness(id uuid.UUID) {
	c.fire("/v1/effect", map[string]any{"player_id": id, "effect": "blindness", "apply": false})
}

func (c *Client) ShowTimerBar(id uuid.UUID, text string, progress float64) {
	c.fire("/v1/bossbar", map[string]any{
		"player_id": id, "text": text, "progress": progress, "visible": true,
	})
}

func (c *Client) HideTimerBar(id uuid.UUID) {
	c.fire("/v1/bossbar", map[string]any{"player_id": id, "visible": false})
}

// world.Pusher

func (c *Client) PushTeleport(id uuid.UUID, loc world.Location) bool {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.post("/v1/teleport", map[string]any{"player_id": id, "location": loc}, &resp); err != nil {
		c.logger.WithError(err).Warn("teleport request failed")
		return false
	}
	return resp.Success
}

// world.BlockSource; a failed query reports solid so ground snapping
// degrades to a no-op rather than teleporting players into the void.

func (c *Client) SolidAt(worldName string, x, y, z int) bool {
	var resp struct {
		Solid bool `json:"solid"`
	}
	if err := c.post("/v1/block", map[string]any{"world": worldName, "x": x, "y": y, "z": z}, &resp); err != nil {
		c.logger.WithError(err).Warn("block query failed")
		return true
	}
	return resp.Solid
}

func (c *Client) MinY(worldName string) int {
	var resp struct {
		MinY int `json:"min_y"`
	}
	if err := c.post("/v1/world", map[string]any{"world": worldName}, &resp); err != nil {
		c.logger.WithError(err).Warn("world query failed")
		return 0
	}
	return resp.MinY
}
