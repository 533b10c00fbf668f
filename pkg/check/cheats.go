package check

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CheatDefinition describes one recognised cheat type and how a conviction
// for it is punished.
type CheatDefinition struct {
	// BanCommand overrides the default ban command template. Supports
	// {player}, {cheat} and {time} placeholders.
	BanCommand string `yaml:"ban_command"`
	// BanMessage overrides the broadcast shown when a player is banned.
	BanMessage string `yaml:"ban_message"`
	// BanTime is substituted for {time} in the command, e.g. "30d".
	BanTime string `yaml:"ban_time"`
	// AutoBan runs the ban command without staff confirmation.
	AutoBan bool `yaml:"auto_ban"`
}

// CheatCatalog maps cheat names to their definitions, case-insensitively.
type CheatCatalog struct {
	cheats map[string]CheatDefinition
}

// DefaultCheats returns the built-in cheat types.
func DefaultCheats() *CheatCatalog {
	return &CheatCatalog{cheats: map[string]CheatDefinition{
		"killaura":  {BanTime: "30d", AutoBan: true},
		"fly":       {BanTime: "30d", AutoBan: true},
		"speedhack": {BanTime: "14d", AutoBan: true},
		"xray":      {BanTime: "14d", AutoBan: true},
	}}
}

// LoadCheats reads cheat definitions from a YAML file. The file fully
// replaces the defaults so operators control the exact set.
func LoadCheats(path string) (*CheatCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cheats file: %w", err)
	}
	var raw map[string]CheatDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse cheats file: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("cheats file %s defines no cheat types", path)
	}
	cheats := make(map[string]CheatDefinition, len(raw))
	for name, def := range raw {
		cheats[strings.ToLower(name)] = def
	}
	return &CheatCatalog{cheats: cheats}, nil
}

// Resolve looks up a cheat definition by name.
func (c *CheatCatalog) Resolve(name string) (CheatDefinition, bool) {
	def, ok := c.cheats[strings.ToLower(name)]
	return def, ok
}

// Names returns the known cheat names, sorted.
func (c *CheatCatalog) Names() []string {
	names := make([]string, 0, len(c.cheats))
	for name := range c.cheats {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
