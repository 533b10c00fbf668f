package check

import "github.com/mineguard/cheatercheck/pkg/world"

// Config is the check section of the settings file.
type Config struct {
	// TimeoutSeconds is how long a target has to respond before the
	// automatic timeout ban.
	TimeoutSeconds          int  `yaml:"timeout_seconds"`
	ReminderIntervalSeconds int  `yaml:"reminder_interval_seconds"`
	NotifyStaff             bool `yaml:"notify_staff"`
	PublicBanMessage        bool `yaml:"public_ban_message"`
	AutoBanOnQuit           bool `yaml:"auto_ban_on_quit"`

	// Command templates; {player}, {cheat} and {time} are substituted.
	BanCommand     string `yaml:"ban_command"`
	QuitCommand    string `yaml:"quit_command"`
	TimeoutCommand string `yaml:"timeout_command"`

	// DiscordLink, when set, is sent to the target so they can reach
	// staff during the check.
	DiscordLink string `yaml:"discord_link"`

	PostCheckRestrictionSeconds int `yaml:"post_check_restriction_seconds"`
	PendingPollIntervalMs       int `yaml:"pending_poll_interval_ms"`

	Title    TitleConfig    `yaml:"title"`
	Teleport TeleportConfig `yaml:"teleport"`
}

// TitleConfig controls the full-screen title shown during a check.
type TitleConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	FadeInTicks     int  `yaml:"fade_in_ticks"`
	StayTicks       int  `yaml:"stay_ticks"`
	FadeOutTicks    int  `yaml:"fade_out_ticks"`
}

// TeleportConfig controls moving the target to the check room.
type TeleportConfig struct {
	Enabled      bool           `yaml:"enabled"`
	Location     world.Location `yaml:"location"`
	DelayMs      int            `yaml:"delay_ms"`
	RetryDelayMs int            `yaml:"retry_delay_ms"`
	// RestoreOnClean teleports a cleared player back to where they were
	// before the check started.
	RestoreOnClean bool `yaml:"restore_on_clean"`
}

// DefaultConfig returns the defaults applied when the section is absent.
func DefaultConfig() Config {
	return Config{
		TimeoutSeconds:              300,
		ReminderIntervalSeconds:     10,
		NotifyStaff:                 true,
		PublicBanMessage:            true,
		AutoBanOnQuit:               true,
		BanCommand:                  "ban {player} Cheating ({cheat})",
		QuitCommand:                 "ban {player} Logged out during a cheating check",
		TimeoutCommand:              "ban {player} Failed to respond to a cheating check",
		PostCheckRestrictionSeconds: 10,
		PendingPollIntervalMs:       1000,
		Title: TitleConfig{
			Enabled:         true,
			IntervalSeconds: 30,
			FadeInTicks:     10,
			StayTicks:       70,
			FadeOutTicks:    20,
		},
		Teleport: TeleportConfig{
			Enabled:        false,
			DelayMs:        100,
			RetryDelayMs:   250,
			RestoreOnClean: true,
		},
	}
}
