// Package conf loads, validates, and persists application settings using
// viper, with an embedded default configuration written out on first run.
package conf

import (
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var defaultConfig []byte

// RotationType denotes the log rotation strategy for file loggers.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// LogConfig holds settings shared by all rotated file loggers.
type LogConfig struct {
	Enabled  bool         // true to enable file logging
	Path     string       // directory for log files
	Rotation RotationType // rotation strategy
	MaxSize  int64        // max size in bytes for size rotation
}

// MainSettings identifies this node.
type MainSettings struct {
	Name string    // node name, used as client id and in log records
	Log  LogConfig // main log configuration
}

// SQLiteSettings hold the SQLite database backend configuration.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings hold the MySQL database backend configuration.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// DatabaseSettings selects and configures the storage backend.
type DatabaseSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// TrainingSettings control the periodic retraining pass.
type TrainingSettings struct {
	Schedule        string        // daily start time "HH:MM" (local)
	LookbackDays    int           // training window length in days
	MinSamples      int           // minimum samples required per entity window
	Workers         int           // bounded parallelism within a pass, 1 = sequential
	EntityTimeout   time.Duration // per-entity training+evaluation budget
	Kinds           []string      // enabled model kinds
	HoldoutFraction float64       // fraction of the window reserved for evaluation
	MinImprovement  float64       // required relative MAE improvement, 0 = strictly better
	RunOnStart      bool          // kick off one pass immediately on serve startup
	AuditLog        string        // path of the run audit JSONL file
}

// UpdaterSettings control actual-value backfill for past predictions.
type UpdaterSettings struct {
	Enabled   bool
	Interval  time.Duration // how often backfill runs
	Tolerance time.Duration // max distance between target time and a reading
	BatchSize int           // predictions per batch
	MaxBatch  int           // max batches per tick
}

// AggregationSettings control hourly accuracy aggregation.
type AggregationSettings struct {
	Enabled       bool
	Interval      time.Duration // how often aggregation runs
	MinSamples    int           // minimum predictions per hour bucket
	RetentionDays int           // aggregate rows older than this are purged
}

// ForecastSettings control forecast generation from active models.
type ForecastSettings struct {
	Enabled     bool
	Interval    time.Duration // forecast cadence, aligned to clock boundaries
	Horizons    []int         // forecast horizons in minutes
	Confidence  float64       // confidence level for prediction bounds
	CacheTTL    time.Duration // restored predictor cache lifetime
	Updater     UpdaterSettings
	Aggregation AggregationSettings
}

// DriftSettings control input distribution drift monitoring.
type DriftSettings struct {
	Enabled       bool
	Interval      time.Duration // how often drift checks run
	CurrentWindow time.Duration // recent window compared against reference
	ReferenceDays int           // reference window length in days
	MinSamples    int           // minimum samples in each window
	AlertSeverity string        // minimum severity that triggers alerts
}

// MQTTSettings configure the broker connection used for run and drift events.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // e.g. tcp://localhost:1883
	Topic    string // topic prefix
	Username string
	Password string
	Retain   bool
}

// NotificationSettings configure shoutrrr push alerts.
type NotificationSettings struct {
	Enabled     bool
	Urls        []string // shoutrrr service URLs
	MinSeverity string   // minimum severity pushed
}

// TelemetrySettings configure the Prometheus metrics endpoint.
type TelemetrySettings struct {
	Enabled bool
	Listen  string // address and port, e.g. "0.0.0.0:8090"
}

// WebServerSettings configure the REST API server.
type WebServerSettings struct {
	Enabled bool
	Port    string
}

// SentrySettings configure opt-in error telemetry.
type SentrySettings struct {
	Enabled bool // disabled by default, requires explicit opt-in
	DSN     string
}

// FTPSettings configure the FTP artifact export target.
type FTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SFTPSettings configure the SFTP artifact export target.
type SFTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	KeyFile  string
}

// ExportSettings configure off-box copies of promoted model artifacts.
type ExportSettings struct {
	Enabled bool
	Type    string // local, ftp or sftp
	Path    string // target directory
	FTP     FTPSettings
	SFTP    SFTPSettings
}

// Settings is the root configuration object.
type Settings struct {
	Debug bool

	Main         MainSettings
	Database     DatabaseSettings
	Training     TrainingSettings
	Forecast     ForecastSettings
	Drift        DriftSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Telemetry    TelemetrySettings
	WebServer    WebServerSettings
	Sentry       SentrySettings
	Export       ExportSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into a validated Settings struct.
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = settings

	return settingsInstance, nil
}

// initViper configures viper's search paths, env binding, and defaults, and
// creates a default config file when none exists yet.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("foresight")
	viper.AutomaticEnv()

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// no config yet, write the embedded default to the first path
		configPath := filepath.Join(configPaths[0], "config.yaml")
		if err := createDefaultConfig(configPath); err != nil {
			return err
		}
		return viper.ReadInConfig()
	}

	return nil
}

// createDefaultConfig writes the embedded default configuration to configPath.
func createDefaultConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	log.Println("Created default config file at:", configPath)
	return nil
}

// GetDefaultConfigPaths returns the config file search paths in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	var paths []string

	configDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, filepath.Join(configDir, "foresight-go"))
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "foresight-go"))
	}

	paths = append(paths, "/etc/foresight-go", ".")

	if len(paths) == 0 {
		return nil, fmt.Errorf("no valid config paths found")
	}
	return paths, nil
}

// Setting returns the shared Settings instance, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetTestSettings installs a Settings instance without touching the config
// file machinery. Intended for tests only.
func SetTestSettings(s *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	once.Do(func() {})
	settingsInstance = s
}

// SaveSettings atomically persists the current settings as YAML to the
// config file in use.
func SaveSettings() error {
	settingsMutex.RLock()
	settingsCopy := *settingsInstance
	settingsMutex.RUnlock()

	configPath := viper.ConfigFileUsed()
	if configPath == "" {
		return fmt.Errorf("no config file in use")
	}

	data, err := yaml.Marshal(&settingsCopy)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// write to a temp file in the same directory, then rename over the original
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temp config file: %w", err)
	}
	tempName := tempFile.Name()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempName)
		return fmt.Errorf("error writing temp config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("error closing temp config file: %w", err)
	}

	if err := os.Rename(tempName, configPath); err != nil {
		_ = os.Remove(tempName)
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
