// Package messaging renders and delivers player-facing text. Message
// bodies live in a catalog keyed by dotted ids so operators can re-word
// everything without touching code.
package messaging

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultMessages is the built-in catalog. A messages file only needs to
// list the keys it overrides.
var defaultMessages = map[string]string{
	"check.started":          "&eStarted a cheating check on {player}.",
	"check.subject":          "&cYou are suspected of cheating! Contact staff within {time} or you will be banned.",
	"check.contact":          "&eJoin our Discord to talk to staff: {link}",
	"check.reminder":         "&eYou are still being checked. {time} remaining.",
	"check.title":            "&cCHEATING CHECK",
	"check.subtitle":         "&eContact staff within {time}",
	"check.timer-bar":        "&cCheck: {time} remaining",
	"check.already-checked":  "&c{player} is already being checked.",
	"check.not-checked":      "&c{player} is not being checked.",
	"check.offline":          "&cPlayer {player} is not online.",
	"check.bypassed":         "&c{player} is exempt from checks.",
	"check.afk-queued":       "&e{player} is AFK. The check will start when they return.",
	"check.afk-already":      "&e{player} already has a pending check.",
	"check.afk-started":      "&e{player} is no longer AFK, starting the check requested by {initiator}.",
	"check.paused":           "&eCheck on {player} paused.",
	"check.paused-subject":   "&eYour check has been paused. Stay put.",
	"check.resumed":          "&eCheck on {player} resumed. {time} remaining.",
	"check.resumed-subject":  "&cYour check has resumed. {time} remaining.",
	"check.time-added":       "&eAdded {time} to the check on {player}.",
	"check.invalid-time":     "&cTime must be a positive number of seconds.",
	"check.clean":            "&a{player} was checked and found clean.",
	"check.stopped":          "&eCheck on {player} stopped.",
	"check.stopped-subject":  "&aYour check was stopped by {staff}.",
	"check.stopped-staff":    "&e{player} is no longer being checked (stopped by {staff}).",
	"check.cheat-manual":     "&c{player} was caught using {cheat} by {staff}. No auto-ban is configured, punish manually.",
	"check.banned-public":    "&c{player} was banned for cheating.",
	"check.banned-staff":     "&c{player} was banned for {cheat} by {staff}.",
	"check.timeout":          "&c{player} failed to respond to a check and was banned.",
	"check.quit-banned":      "&c{player} logged out during a cheating check and was banned.",
	"check.quit":             "&e{player} logged out during a cheating check.",
	"check.restricted":       "&cYou cannot do that so soon after a check.",
	"check.restriction-over": "&aYour post-check restriction has ended.",
	"check.unknown-cheat":    "&cUnknown cheat type: {cheat}.",
	"check.cancelled-all":    "&eCancelled {count} active checks.",
	"screenshare.subject":    "&cPrepare for a screenshare. Do not touch your mouse, keyboard or game files.",
	"screenshare.staff":      "&eScreenshare requested for {player} by {staff}.",
	"freeze.frozen":          "&cYou have been frozen! Do not log out.",
	"freeze.unfrozen":        "&aYou have been unfrozen.",
	"freeze.staff-frozen":    "&e{player} was frozen by {staff}.",
	"freeze.staff-unfrozen":  "&e{player} was unfrozen by {staff}.",
	"freeze.already":         "&c{player} is already frozen.",
	"freeze.not-frozen":      "&c{player} is not frozen.",
	"freeze.no-move":         "&cYou cannot move while frozen.",
	"freeze.no-command":      "&cYou cannot use commands while frozen.",
	"freeze.no-interact":     "&cYou cannot do that while frozen.",
	"afk.now":                "&7{player} is now AFK.",
	"afk.back":               "&7{player} is no longer AFK.",
	"bypass.added":           "&e{player} added to the check bypass list.",
	"bypass.removed":         "&e{player} removed from the check bypass list.",
	"bypass.missing":         "&c{player} is not on the bypass list.",
}

// Catalog holds renderable message templates plus the chat prefix.
type Catalog struct {
	prefix   string
	messages map[string]string
}

// DefaultCatalog returns the built-in messages with the default prefix.
func DefaultCatalog() *Catalog {
	msgs := make(map[string]string, len(defaultMessages))
	for k, v := range defaultMessages {
		msgs[k] = v
	}
	return &Catalog{prefix: "&4[CheaterCheck]&r ", messages: msgs}
}

type catalogFile struct {
	Prefix   *string           `yaml:"prefix"`
	Messages map[string]string `yaml:"messages"`
}

// LoadCatalog reads a messages file and merges it over the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse messages file: %w", err)
	}
	c := DefaultCatalog()
	if f.Prefix != nil {
		c.prefix = *f.Prefix
	}
	for k, v := range f.Messages {
		c.messages[k] = v
	}
	return c, nil
}

// Render produces the prefixed message for key with placeholders applied.
// Unknown keys render as the key itself so a misconfiguration is visible
// rather than silent.
func (c *Catalog) Render(key string, ph map[string]string) string {
	return c.prefix + c.RenderRaw(key, ph)
}

// RenderRaw renders without the chat prefix, for titles and bar text.
func (c *Catalog) RenderRaw(key string, ph map[string]string) string {
	body, ok := c.messages[key]
	if !ok {
		body = key
	}
	for k, v := range ph {
		body = strings.ReplaceAll(body, "{"+k+"}", v)
	}
	return body
}

// FormatSeconds renders a second count the way players expect, e.g.
// "4m 30s" or "45s".
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}
