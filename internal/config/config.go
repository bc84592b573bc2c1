package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken  string          `yaml:"discord_token"`
	AppGuildID    string          `yaml:"app_guild_id"`
	DatabasePath  string          `yaml:"database_path"`
	LogLevel      string          `yaml:"log_level"`
	RetentionDays int             `yaml:"retention_days"`
	SupportRoleID string          `yaml:"support_role_id"`
	Documents     DocumentsConfig `yaml:"documents"`
	Health        HealthConfig    `yaml:"health"`
	Channels      ChannelConfig   `yaml:"channels"`
	Booster       BoosterConfig   `yaml:"booster"`
	AntiSpam      AntiSpamConfig  `yaml:"antispam"`
	Tickets       TicketConfig    `yaml:"tickets"`
	TempVoice     TempVoiceConfig `yaml:"tempvoice"`
	EmbedColors   EmbedColors     `yaml:"embed_colors"`
}

type DocumentsConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// ChannelConfig holds the fallback channel ids used when a guild has no
// stored override.
type ChannelConfig struct {
	Alert        string `yaml:"alert"`
	ErrorLog     string `yaml:"error_log"`
	Welcome      string `yaml:"welcome"`
	Rules        string `yaml:"rules"`
	BoosterLog   string `yaml:"booster_log"`
	StaffLog     string `yaml:"staff_log"`
	Announcement string `yaml:"announcement"`
}

type BoosterConfig struct {
	MediaURL  string `yaml:"media_url"`
	MinBoosts int    `yaml:"min_boosts"`
}

type AntiSpamConfig struct {
	Enabled           bool   `yaml:"enabled"`
	MessageLimit      int    `yaml:"message_limit"`
	TimeWindowMS      int    `yaml:"time_window_ms"`
	DuplicateLimit    int    `yaml:"duplicate_limit"`
	WarningCooldownMS int    `yaml:"warning_cooldown_ms"`
	SweepSpec         string `yaml:"sweep_spec"`
}

type TicketConfig struct {
	PaymentInfo        string `yaml:"payment_info"`
	AutoArchiveMinutes int    `yaml:"auto_archive_minutes"`
}

type TempVoiceConfig struct {
	CategoryName  string `yaml:"category_name"`
	GeneratorName string `yaml:"generator_name"`
	InterfaceName string `yaml:"interface_name"`
	Bitrate       int    `yaml:"bitrate"`
}

type EmbedColors struct {
	Action  int `yaml:"action"`
	Warning int `yaml:"warning"`
	Error   int `yaml:"error"`
	Success int `yaml:"success"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath:  "/data/guildkeeper.db",
		LogLevel:      "info",
		RetentionDays: 30,
		Documents:     DocumentsConfig{Driver: "sqlite"},
		Health:        HealthConfig{Enabled: false, Addr: ":8080"},
		Booster:       BoosterConfig{MinBoosts: 2},
		AntiSpam: AntiSpamConfig{
			Enabled:           true,
			MessageLimit:      5,
			TimeWindowMS:      5000,
			DuplicateLimit:    20,
			WarningCooldownMS: 30000,
			SweepSpec:         "@every 60s",
		},
		Tickets: TicketConfig{
			PaymentInfo:        "Send your payment proof in this ticket after transferring.",
			AutoArchiveMinutes: 1440,
		},
		TempVoice: TempVoiceConfig{
			CategoryName:  "Temp Voice",
			GeneratorName: "➕ Create Voice",
			InterfaceName: "🔊・voice-interface",
			Bitrate:       96000,
		},
		EmbedColors: EmbedColors{
			Action:  0x5865F2,
			Warning: 0xFEE75C,
			Error:   0xED4245,
			Success: 0x57F287,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	// A missing .env is normal in containers.
	_ = godotenv.Load()

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	cfg.Documents.Driver = normalizeDriver(cfg.Documents.Driver)
	normalizeAntiSpam(&cfg.AntiSpam)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.AppGuildID = envString("DISCORD_GUILD_ID", cfg.AppGuildID)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.RetentionDays = envInt("RETENTION_DAYS", cfg.RetentionDays)
	cfg.SupportRoleID = envString("SUPPORT_ROLE_ID", cfg.SupportRoleID)
	cfg.Documents.Driver = envString("DOCUMENTS_DRIVER", cfg.Documents.Driver)
	cfg.Documents.DSN = envString("DOCUMENTS_DSN", cfg.Documents.DSN)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Channels.Alert = envString("ALERT_CHANNEL_ID", cfg.Channels.Alert)
	cfg.Channels.ErrorLog = envString("ERROR_LOG_CHANNEL_ID", cfg.Channels.ErrorLog)
	cfg.Channels.Welcome = envString("WELCOME_CHANNEL_ID", cfg.Channels.Welcome)
	cfg.Channels.Rules = envString("RULES_CHANNEL_ID", cfg.Channels.Rules)
	cfg.Channels.BoosterLog = envString("BOOSTER_LOG_CHANNEL_ID", cfg.Channels.BoosterLog)
	cfg.Channels.StaffLog = envString("STAFF_LOG_CHANNEL_ID", cfg.Channels.StaffLog)
	cfg.Channels.Announcement = envString("ANNOUNCEMENT_CHANNEL_ID", cfg.Channels.Announcement)
	cfg.Booster.MediaURL = envString("BOOSTER_MEDIA_URL", cfg.Booster.MediaURL)
	cfg.AntiSpam.Enabled = envBool("ANTISPAM_ENABLED", cfg.AntiSpam.Enabled)
	cfg.AntiSpam.MessageLimit = envInt("ANTISPAM_MESSAGE_LIMIT", cfg.AntiSpam.MessageLimit)
	cfg.AntiSpam.TimeWindowMS = envInt("ANTISPAM_TIME_WINDOW_MS", cfg.AntiSpam.TimeWindowMS)
	cfg.AntiSpam.DuplicateLimit = envInt("ANTISPAM_DUPLICATE_LIMIT", cfg.AntiSpam.DuplicateLimit)
	cfg.AntiSpam.WarningCooldownMS = envInt("ANTISPAM_WARNING_COOLDOWN_MS", cfg.AntiSpam.WarningCooldownMS)
	cfg.AntiSpam.SweepSpec = envString("ANTISPAM_SWEEP_SPEC", cfg.AntiSpam.SweepSpec)
	cfg.Tickets.PaymentInfo = envString("TICKET_PAYMENT_INFO", cfg.Tickets.PaymentInfo)
	cfg.EmbedColors.Action = envInt("EMBED_COLOR_ACTION", cfg.EmbedColors.Action)
	cfg.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.EmbedColors.Warning)
	cfg.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.EmbedColors.Error)
	cfg.EmbedColors.Success = envInt("EMBED_COLOR_SUCCESS", cfg.EmbedColors.Success)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}

func normalizeDriver(value string) string {
	switch strings.ToLower(value) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return "sqlite"
	}
}

func normalizeAntiSpam(cfg *AntiSpamConfig) {
	defaults := DefaultConfig().AntiSpam
	if cfg.MessageLimit <= 0 {
		cfg.MessageLimit = defaults.MessageLimit
	}
	if cfg.TimeWindowMS <= 0 {
		cfg.TimeWindowMS = defaults.TimeWindowMS
	}
	if cfg.DuplicateLimit <= 0 {
		cfg.DuplicateLimit = defaults.DuplicateLimit
	}
	if cfg.WarningCooldownMS < 0 {
		cfg.WarningCooldownMS = defaults.WarningCooldownMS
	}
	if strings.TrimSpace(cfg.SweepSpec) == "" {
		cfg.SweepSpec = defaults.SweepSpec
	}
}
