package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrNotFound = errors.New("storage: not found")

type Store struct {
	db *sqlx.DB
}

// GuildSettings overrides the configured channel and role ids for one guild.
// Empty fields fall back to the config defaults.
type GuildSettings struct {
	GuildID             string `db:"guild_id"`
	AlertChannel        string `db:"alert_channel"`
	ErrorLogChannel     string `db:"error_log_channel"`
	WelcomeChannel      string `db:"welcome_channel"`
	RulesChannel        string `db:"rules_channel"`
	BoosterLogChannel   string `db:"booster_log_channel"`
	BoosterMediaURL     string `db:"booster_media_url"`
	StaffLogChannel     string `db:"staff_log_channel"`
	SupportRoleID       string `db:"support_role_id"`
	GeneratorChannelID  string `db:"generator_channel_id"`
	TempVoiceCategoryID string `db:"tempvoice_category_id"`
	InterfaceChannelID  string `db:"interface_channel_id"`
}

type AuditLog struct {
	ID        int64     `db:"id"`
	GuildID   string    `db:"guild_id"`
	UserID    string    `db:"user_id"`
	Level     string    `db:"level"`
	Event     string    `db:"event"`
	Details   string    `db:"details"`
	CreatedAt time.Time `db:"-"`
}

func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations,
		Root:       "migrations",
	}
	if _, err := migrate.Exec(s.db.DB, "sqlite3", source, migrate.Up); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (s *Store) GetGuildSettings(ctx context.Context, guildID string) (GuildSettings, error) {
	var settings GuildSettings
	err := s.db.GetContext(ctx, &settings, `
		SELECT guild_id, alert_channel, error_log_channel, welcome_channel, rules_channel,
		booster_log_channel, booster_media_url, staff_log_channel, support_role_id,
		generator_channel_id, tempvoice_category_id, interface_channel_id
		FROM guild_settings WHERE guild_id = ?`, guildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GuildSettings{GuildID: guildID}, nil
		}
		return GuildSettings{}, err
	}
	return settings, nil
}

func (s *Store) UpsertGuildSettings(ctx context.Context, settings GuildSettings) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO guild_settings (
			guild_id, alert_channel, error_log_channel, welcome_channel, rules_channel,
			booster_log_channel, booster_media_url, staff_log_channel, support_role_id,
			generator_channel_id, tempvoice_category_id, interface_channel_id
		) VALUES (
			:guild_id, :alert_channel, :error_log_channel, :welcome_channel, :rules_channel,
			:booster_log_channel, :booster_media_url, :staff_log_channel, :support_role_id,
			:generator_channel_id, :tempvoice_category_id, :interface_channel_id
		)
		ON CONFLICT(guild_id) DO UPDATE SET
			alert_channel = excluded.alert_channel,
			error_log_channel = excluded.error_log_channel,
			welcome_channel = excluded.welcome_channel,
			rules_channel = excluded.rules_channel,
			booster_log_channel = excluded.booster_log_channel,
			booster_media_url = excluded.booster_media_url,
			staff_log_channel = excluded.staff_log_channel,
			support_role_id = excluded.support_role_id,
			generator_channel_id = excluded.generator_channel_id,
			tempvoice_category_id = excluded.tempvoice_category_id,
			interface_channel_id = excluded.interface_channel_id
	`, settings)
	return err
}

// UpdateGuildSettings loads the stored row, applies fn and writes it back.
func (s *Store) UpdateGuildSettings(ctx context.Context, guildID string, fn func(*GuildSettings)) error {
	settings, err := s.GetGuildSettings(ctx, guildID)
	if err != nil {
		return err
	}
	fn(&settings)
	settings.GuildID = guildID
	return s.UpsertGuildSettings(ctx, settings)
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, guild_id, user_id, level, event, details, created_at
		FROM audit_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) AddDomainAllow(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO domain_allowlist (guild_id, domain) VALUES (?, ?)`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) RemoveDomainAllow(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM domain_allowlist WHERE guild_id = ? AND domain = ?`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) ListDomainAllow(ctx context.Context, guildID string) ([]string, error) {
	var domains []string
	err := s.db.SelectContext(ctx, &domains, `SELECT domain FROM domain_allowlist WHERE guild_id = ? ORDER BY domain`, guildID)
	return domains, err
}

func (s *Store) AddDomainBlock(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO domain_blocklist (guild_id, domain) VALUES (?, ?)`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) RemoveDomainBlock(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM domain_blocklist WHERE guild_id = ? AND domain = ?`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) ListDomainBlock(ctx context.Context, guildID string) ([]string, error) {
	var domains []string
	err := s.db.SelectContext(ctx, &domains, `SELECT domain FROM domain_blocklist WHERE guild_id = ? ORDER BY domain`, guildID)
	return domains, err
}
