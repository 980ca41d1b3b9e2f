package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Library    LibraryConfig    `mapstructure:"library"`
	Indexer    IndexerConfig    `mapstructure:"indexer"`
	Downloader DownloaderConfig `mapstructure:"downloader"`
	History    HistoryConfig    `mapstructure:"history"`
	Tasks      TasksConfig      `mapstructure:"tasks"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path       string `mapstructure:"path"`
	BackupDir  string `mapstructure:"backup_dir"`
	BackupKeep int    `mapstructure:"backup_keep"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// LibraryConfig holds media library configuration.
type LibraryConfig struct {
	RootDir string `mapstructure:"root_dir"`
}

// IndexerConfig holds release index connection configuration.
type IndexerConfig struct {
	URL           string `mapstructure:"url"`
	APIKey        string `mapstructure:"api_key"`
	Timeout       int    `mapstructure:"timeout"`
	SkipSSLVerify bool   `mapstructure:"skip_ssl_verify"`
}

// DownloaderConfig holds download client configuration.
type DownloaderConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	UseSSL   bool   `mapstructure:"use_ssl"`
	Category string `mapstructure:"category"`
}

// HistoryConfig holds history retention configuration.
type HistoryConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// TasksConfig holds default intervals, in minutes, for each recurring task.
// Persisted task state wins over these after first run.
type TasksConfig struct {
	IndexSyncMinutes       int `mapstructure:"index_sync_minutes"`
	LibraryScanMinutes     int `mapstructure:"library_scan_minutes"`
	CleanupMinutes         int `mapstructure:"cleanup_minutes"`
	MetadataRefreshMinutes int `mapstructure:"metadata_refresh_minutes"`
	BackupMinutes          int `mapstructure:"backup_minutes"`
	DownloadMonitorMinutes int `mapstructure:"download_monitor_minutes"`
	RequestedSearchMinutes int `mapstructure:"requested_search_minutes"`
	CompletedScanMinutes   int `mapstructure:"completed_scan_minutes"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.driftwood")
	}

	v.SetEnvPrefix("DRIFTWOOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Missing config file is fine, defaults + env vars carry the day.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.path", "./data/driftwood.db")
	v.SetDefault("database.backup_dir", "./data/backups")
	v.SetDefault("database.backup_keep", 7)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("library.root_dir", "./data/library")

	v.SetDefault("indexer.url", "")
	v.SetDefault("indexer.api_key", "")
	v.SetDefault("indexer.timeout", 90)
	v.SetDefault("indexer.skip_ssl_verify", false)

	v.SetDefault("downloader.host", "")
	v.SetDefault("downloader.port", 8080)
	v.SetDefault("downloader.category", "driftwood")

	v.SetDefault("history.retention_days", 365)

	v.SetDefault("tasks.index_sync_minutes", 60)
	v.SetDefault("tasks.library_scan_minutes", 720)
	v.SetDefault("tasks.cleanup_minutes", 1440)
	v.SetDefault("tasks.metadata_refresh_minutes", 1440)
	v.SetDefault("tasks.backup_minutes", 1440)
	v.SetDefault("tasks.download_monitor_minutes", 1)
	v.SetDefault("tasks.requested_search_minutes", 15)
	v.SetDefault("tasks.completed_scan_minutes", 5)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
