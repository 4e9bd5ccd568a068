package bot

import (
	"fmt"
	"os"

	coreconfig "nextmsgbot/core/config"
	coredatabase "nextmsgbot/core/database"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const defaultMaxChannelsPerUser = 5

// Settings holds the bot-specific knobs on top of the shared core config.
type Settings struct {
	// ArchiveChannelID is the private channel where configured responses
	// are stored. Required.
	ArchiveChannelID int64 `yaml:"archive_channel_id" envconfig:"TELEGRAM_ARCHIVE_CHANNEL_ID"`
	// AdminChannelID restricts the bot to members of this channel.
	// 0 disables the access gate.
	AdminChannelID int64  `yaml:"admin_channel_id" envconfig:"TELEGRAM_ADMIN_CHANNEL_ID"`
	AdminInviteURL string `yaml:"admin_invite_url" envconfig:"TELEGRAM_ADMIN_CHANNEL_INVITE_LINK"`
	// MaxChannelsPerUser caps how many channels one user may configure.
	MaxChannelsPerUser int `yaml:"max_channels_per_user" envconfig:"BOT_MAX_CHANNELS_PER_USER"`
}

// Config aggregates core, database and bot settings.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Bot      Settings            `yaml:"bot"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// LoadConfig reads the YAML config file, applies environment overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := normalizeSettings(&cfg.Bot); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeSettings(s *Settings) error {
	if s.ArchiveChannelID == 0 {
		return &ValidationError{Reason: "bot.archive_channel_id is required"}
	}
	if s.AdminChannelID == 0 && s.AdminInviteURL != "" {
		return &ValidationError{Reason: "bot.admin_invite_url is set but bot.admin_channel_id is not"}
	}
	if s.MaxChannelsPerUser < 0 {
		return &ValidationError{Reason: "bot.max_channels_per_user must be >= 0"}
	}
	if s.MaxChannelsPerUser == 0 {
		s.MaxChannelsPerUser = defaultMaxChannelsPerUser
	}
	return nil
}
