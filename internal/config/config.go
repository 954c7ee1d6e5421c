package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrUnavailable is returned when the configuration cannot be read.
var ErrUnavailable = errors.New("configuration unavailable")

const envPrefix = "REFRESHSPARSE"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Jellyfin  JellyfinConfig  `mapstructure:"jellyfin"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Refresh   RefreshOptions  `mapstructure:"refresh"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// JellyfinConfig holds media server connection settings.
// An empty URL disables the connection and refreshes become dry runs.
type JellyfinConfig struct {
	URL            string `mapstructure:"url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	PageSize       int    `mapstructure:"page_size"`
	// FetchImagePaths resolves image file paths during sync, one request
	// per item with images. Needed for the "local" image policy.
	FetchImagePaths bool `mapstructure:"fetch_image_paths"`
}

// Enabled reports whether a media server is configured.
func (c JellyfinConfig) Enabled() bool {
	return c.URL != ""
}

// SchedulerConfig holds cron expressions for the scheduled tasks.
type SchedulerConfig struct {
	RefreshMoviesCron   string `mapstructure:"refresh_movies_cron"`
	RefreshSeriesCron   string `mapstructure:"refresh_series_cron"`
	RefreshEpisodesCron string `mapstructure:"refresh_episodes_cron"`
	LibrarySyncCron     string `mapstructure:"library_sync_cron"`
	RunOnStart          bool   `mapstructure:"run_on_start"`
}

// RefreshOptions are the operator-editable sparse detection settings.
type RefreshOptions struct {
	MaxDays                int    `mapstructure:"max_days"`
	RefreshCooldownMinutes int    `mapstructure:"refresh_cooldown_minutes"`
	MinimumProviderIDs     int    `mapstructure:"minimum_provider_ids"`
	MissingOverview        bool   `mapstructure:"missing_overview"`
	MissingName            bool   `mapstructure:"missing_name"`
	NameIsDate             bool   `mapstructure:"name_is_date"`
	OverviewBadName        bool   `mapstructure:"overview_bad_name"`
	BadNames               string `mapstructure:"bad_names"`
	MissingImage           string `mapstructure:"missing_image"`
	ReplaceAllImages       bool   `mapstructure:"replace_all_images"`
	ReplaceAllMetadata     bool   `mapstructure:"replace_all_metadata"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8097,
		},
		Database: DatabaseConfig{
			Path: "./data/refreshsparse.db",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Jellyfin: JellyfinConfig{
			TimeoutSeconds: 30,
			PageSize:       200,
		},
		Scheduler: SchedulerConfig{
			RefreshMoviesCron:   "0 3 * * *",
			RefreshSeriesCron:   "15 3 * * *",
			RefreshEpisodesCron: "30 3 * * *",
			LibrarySyncCron:     "0 2 * * *",
		},
		Refresh: RefreshOptions{
			MaxDays:                -1,
			RefreshCooldownMinutes: 1440,
			MinimumProviderIDs:     1,
			MissingOverview:        true,
			MissingName:            true,
			NameIsDate:             true,
			MissingImage:           "any",
		},
	}
}

// Source owns the viper instance backing the configuration. The refresh
// section is re-read from disk on every access so edits apply to the next run.
type Source struct {
	v      *viper.Viper
	path   string
	loaded bool
	mu     sync.Mutex
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, *Source, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	src := &Source{v: newViper(configPath), path: configPath}
	if err := src.read(); err != nil {
		return nil, nil, err
	}

	cfg := &Config{}
	if err := src.v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		listToStringHook,
	))); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, src, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.refreshsparse")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// read (re)loads the config file. A missing file falls back to defaults and
// env, including when a previously loaded file has since been removed.
func (s *Source) read() error {
	err := s.v.ReadInConfig()
	if err == nil {
		s.loaded = true
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
		if s.loaded {
			// viper has no way to forget a file's values.
			s.v = newViper(s.path)
			s.loaded = false
		}
		return nil
	}
	return fmt.Errorf("%w: failed to read config file: %v", ErrUnavailable, err)
}

// listToStringHook lets string settings such as refresh.bad_names be written
// as YAML lists.
func listToStringHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() != reflect.Slice || from.Elem().Kind() == reflect.Uint8 {
		return data, nil
	}
	return joinList(data), nil
}

// joinList flattens a list setting into one newline-delimited string.
func joinList(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return strings.Join(cast.ToStringSlice(v), "\n")
	}
}

// RefreshOptions re-reads the configuration and returns the refresh section.
func (s *Source) RefreshOptions() (RefreshOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.read(); err != nil {
		return RefreshOptions{}, err
	}

	// Leaf lookups so REFRESHSPARSE_REFRESH_* overrides apply.
	return RefreshOptions{
		MaxDays:                s.v.GetInt("refresh.max_days"),
		RefreshCooldownMinutes: s.v.GetInt("refresh.refresh_cooldown_minutes"),
		MinimumProviderIDs:     s.v.GetInt("refresh.minimum_provider_ids"),
		MissingOverview:        s.v.GetBool("refresh.missing_overview"),
		MissingName:            s.v.GetBool("refresh.missing_name"),
		NameIsDate:             s.v.GetBool("refresh.name_is_date"),
		OverviewBadName:        s.v.GetBool("refresh.overview_bad_name"),
		BadNames:               joinList(s.v.Get("refresh.bad_names")),
		MissingImage:           s.v.GetString("refresh.missing_image"),
		ReplaceAllImages:       s.v.GetBool("refresh.replace_all_images"),
		ReplaceAllMetadata:     s.v.GetBool("refresh.replace_all_metadata"),
	}, nil
}

// ReplaceAllImages reads refresh.replace_all_images from live configuration.
func (s *Source) ReplaceAllImages() bool {
	return s.liveBool("refresh.replace_all_images")
}

// ReplaceAllMetadata reads refresh.replace_all_metadata from live configuration.
func (s *Source) ReplaceAllMetadata() bool {
	return s.liveBool("refresh.replace_all_metadata")
}

func (s *Source) liveBool(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	// On a read failure viper keeps the last good values.
	_ = s.read()
	return s.v.GetBool(key)
}

// ConfigFile returns the path of the config file in use, if any.
func (s *Source) ConfigFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.ConfigFileUsed()
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.path", d.Database.Path)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", d.Logging.Path)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("jellyfin.url", d.Jellyfin.URL)
	v.SetDefault("jellyfin.api_key", d.Jellyfin.APIKey)
	v.SetDefault("jellyfin.timeout_seconds", d.Jellyfin.TimeoutSeconds)
	v.SetDefault("jellyfin.page_size", d.Jellyfin.PageSize)
	v.SetDefault("jellyfin.fetch_image_paths", d.Jellyfin.FetchImagePaths)

	v.SetDefault("scheduler.refresh_movies_cron", d.Scheduler.RefreshMoviesCron)
	v.SetDefault("scheduler.refresh_series_cron", d.Scheduler.RefreshSeriesCron)
	v.SetDefault("scheduler.refresh_episodes_cron", d.Scheduler.RefreshEpisodesCron)
	v.SetDefault("scheduler.library_sync_cron", d.Scheduler.LibrarySyncCron)
	v.SetDefault("scheduler.run_on_start", d.Scheduler.RunOnStart)

	v.SetDefault("refresh.max_days", d.Refresh.MaxDays)
	v.SetDefault("refresh.refresh_cooldown_minutes", d.Refresh.RefreshCooldownMinutes)
	v.SetDefault("refresh.minimum_provider_ids", d.Refresh.MinimumProviderIDs)
	v.SetDefault("refresh.missing_overview", d.Refresh.MissingOverview)
	v.SetDefault("refresh.missing_name", d.Refresh.MissingName)
	v.SetDefault("refresh.name_is_date", d.Refresh.NameIsDate)
	v.SetDefault("refresh.overview_bad_name", d.Refresh.OverviewBadName)
	v.SetDefault("refresh.bad_names", d.Refresh.BadNames)
	v.SetDefault("refresh.missing_image", d.Refresh.MissingImage)
	v.SetDefault("refresh.replace_all_images", d.Refresh.ReplaceAllImages)
	v.SetDefault("refresh.replace_all_metadata", d.Refresh.ReplaceAllMetadata)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
