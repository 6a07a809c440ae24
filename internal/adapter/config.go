package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/spf13/viper"
)

// SourceType identifies the media server flavour
type SourceType string

const (
	SourceTypeEmby     SourceType = "emby"
	SourceTypeJellyfin SourceType = "jellyfin"
	SourceTypeAuto     SourceType = "auto" // Probe the server on first use
)

// MountMethod selects how the volume is mounted
type MountMethod string

const (
	MountMethodSyscall MountMethod = "syscall" // mount(2) directly
	MountMethodPmount  MountMethod = "pmount"  // pmount/pumount helpers
)

// PartialFailure selects what is persisted when some file operations fail
type PartialFailure string

const (
	PartialFailureConservative PartialFailure = "conservative" // persist nothing
	PartialFailurePerFile      PartialFailure = "per_file"     // persist what succeeded
)

// MailProvider selects the notification transport
type MailProvider string

const (
	MailProviderSMTP     MailProvider = "smtp"
	MailProviderSendGrid MailProvider = "sendgrid"
)

// Config holds all application configuration.
// It is built once by LoadConfig and never mutated afterwards.
type Config struct {
	Drive    DriveConfig    `mapstructure:"drive"`
	Emby     EmbyConfig     `mapstructure:"emby"`
	Mail     MailConfig     `mapstructure:"mail"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	History  HistoryConfig  `mapstructure:"history"`
}

// DriveConfig describes the target volume
type DriveConfig struct {
	SourcePath   string        `mapstructure:"source_path"`                                           // Alternate source root, empty to use server paths
	TargetUUID   string        `mapstructure:"target_uuid" validate:"required"`                       // Filesystem UUID to watch
	MountMethod  MountMethod   `mapstructure:"mount_method" validate:"oneof=syscall pmount"`          // How to mount
	MountRoot    string        `mapstructure:"mount_root" validate:"required_if=MountMethod syscall"` // Parent of syscall mountpoints
	UnmountRetry time.Duration `mapstructure:"unmount_retry" validate:"gt=0"`                         // Wait between busy unmount attempts
}

// EmbyConfig holds the remote catalog connection
type EmbyConfig struct {
	Type       SourceType    `mapstructure:"type" validate:"oneof=emby jellyfin auto"`
	Server     string        `mapstructure:"server" validate:"required,url"`
	UserID     string        `mapstructure:"user_id"`
	UserName   string        `mapstructure:"user_name" validate:"required"`
	UserPass   string        `mapstructure:"user_pass"`
	PlaylistID string        `mapstructure:"playlist_id" validate:"required"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// MailConfig holds the completion notification channel.
// Leaving smtp_server (or sendgrid_api_key) empty disables notifications.
type MailConfig struct {
	Provider       MailProvider `mapstructure:"provider" validate:"oneof=smtp sendgrid"`
	SMTPPort       int          `mapstructure:"smtp_port" validate:"gte=0,lte=65535"`
	SMTPServer     string       `mapstructure:"smtp_server"`
	Sender         string       `mapstructure:"sender" validate:"omitempty,email"`
	Receiver       string       `mapstructure:"receiver" validate:"omitempty,email"`
	Password       string       `mapstructure:"password"`
	SendGridAPIKey string       `mapstructure:"sendgrid_api_key"`
}

// TransferConfig tunes the diff and transfer engine
type TransferConfig struct {
	PartialFailure PartialFailure `mapstructure:"partial_failure" validate:"oneof=conservative per_file"`
	DryRun         bool           `mapstructure:"dry_run"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File       string `mapstructure:"file"` // Empty logs to stderr only
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// HistoryConfig locates the cycle history database
type HistoryConfig struct {
	Path string `mapstructure:"path"` // Empty disables history
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Drive: DriveConfig{
			MountMethod:  MountMethodSyscall,
			MountRoot:    "/media",
			UnmountRetry: 60 * time.Second,
		},
		Emby: EmbyConfig{
			Type:    SourceTypeEmby,
			Timeout: 60 * time.Second,
		},
		Mail: MailConfig{
			Provider: MailProviderSMTP,
			SMTPPort: 465,
		},
		Transfer: TransferConfig{
			PartialFailure: PartialFailureConservative,
		},
		Logging: LoggingConfig{
			Level:      "INFO",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		History: HistoryConfig{
			Path: defaultHistoryPath(),
		},
	}
}

// defaultHistoryPath returns the default history database path
func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "hddsync", "history.db")
}

// defaultConfigPaths returns the directories searched for config.yml, in order.
// The executable's own directory comes first so the config can live next to it.
func defaultConfigPaths() []string {
	var paths []string
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Dir(exe))
	}
	return append(paths, "/etc/hddsync", ".")
}

// LoadConfig loads configuration from file and environment.
// An explicit path must exist; otherwise a missing file leaves defaults in place.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		for _, p := range defaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	// Environment variable overrides, e.g. HDDSYNC_DRIVE_TARGET_UUID
	v.SetEnvPrefix("HDDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// registerDefaults makes every key known to viper so env overrides apply
// even when the key is absent from the file.
func registerDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("drive.source_path", cfg.Drive.SourcePath)
	v.SetDefault("drive.target_uuid", cfg.Drive.TargetUUID)
	v.SetDefault("drive.mount_method", string(cfg.Drive.MountMethod))
	v.SetDefault("drive.mount_root", cfg.Drive.MountRoot)
	v.SetDefault("drive.unmount_retry", cfg.Drive.UnmountRetry)

	v.SetDefault("emby.type", string(cfg.Emby.Type))
	v.SetDefault("emby.server", cfg.Emby.Server)
	v.SetDefault("emby.user_id", cfg.Emby.UserID)
	v.SetDefault("emby.user_name", cfg.Emby.UserName)
	v.SetDefault("emby.user_pass", cfg.Emby.UserPass)
	v.SetDefault("emby.playlist_id", cfg.Emby.PlaylistID)
	v.SetDefault("emby.timeout", cfg.Emby.Timeout)

	v.SetDefault("mail.provider", string(cfg.Mail.Provider))
	v.SetDefault("mail.smtp_port", cfg.Mail.SMTPPort)
	v.SetDefault("mail.smtp_server", cfg.Mail.SMTPServer)
	v.SetDefault("mail.sender", cfg.Mail.Sender)
	v.SetDefault("mail.receiver", cfg.Mail.Receiver)
	v.SetDefault("mail.password", cfg.Mail.Password)
	v.SetDefault("mail.sendgrid_api_key", cfg.Mail.SendGridAPIKey)

	v.SetDefault("transfer.partial_failure", string(cfg.Transfer.PartialFailure))
	v.SetDefault("transfer.dry_run", cfg.Transfer.DryRun)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)

	v.SetDefault("history.path", cfg.History.Path)
}

// Validate checks required fields and enumerations
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	return nil
}

// Recipient returns the notification recipient, defaulting to the sender
func (m MailConfig) Recipient() string {
	if m.Receiver != "" {
		return m.Receiver
	}
	return m.Sender
}

// NotificationsEnabled returns true if the selected provider has enough settings to send
func (m MailConfig) NotificationsEnabled() bool {
	switch m.Provider {
	case MailProviderSendGrid:
		return m.SendGridAPIKey != "" && m.Sender != ""
	default:
		return m.SMTPServer != "" && m.Sender != ""
	}
}

// LogValue masks secrets when the config is logged
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Group("drive",
			slog.String("target_uuid", c.Drive.TargetUUID),
			slog.String("source_path", c.Drive.SourcePath),
			slog.String("mount_method", string(c.Drive.MountMethod)),
			slog.Duration("unmount_retry", c.Drive.UnmountRetry),
		),
		slog.Group("emby",
			slog.String("type", string(c.Emby.Type)),
			slog.String("server", c.Emby.Server),
			slog.String("user_name", c.Emby.UserName),
			slog.String("user_pass", maskSecret(c.Emby.UserPass)),
			slog.String("playlist_id", c.Emby.PlaylistID),
		),
		slog.Group("mail",
			slog.String("provider", string(c.Mail.Provider)),
			slog.Bool("enabled", c.Mail.NotificationsEnabled()),
			slog.String("password", maskSecret(c.Mail.Password)),
			slog.String("sendgrid_api_key", maskSecret(c.Mail.SendGridAPIKey)),
		),
		slog.String("partial_failure", string(c.Transfer.PartialFailure)),
		slog.Bool("dry_run", c.Transfer.DryRun),
	)
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "*****"
	}
	return s[:4] + "*****"
}
