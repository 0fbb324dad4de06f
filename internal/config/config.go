package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Receiver  ReceiverConfig
	API       APIConfig
	Detection DetectionConfig
	Alerts    AlertsConfig
	Display   DisplayConfig
	Storage   StorageConfig
	Logging   LoggingConfig
	Catalog   CatalogConfig
}

type ReceiverConfig struct {
	GRPCPort int    `toml:"grpc_port"`
	HTTPPort int    `toml:"http_port"`
	Bind     string `toml:"bind"`
}

type APIConfig struct {
	Port                int    `toml:"port"`
	Bind                string `toml:"bind"`
	ReadTimeoutSeconds  int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `toml:"write_timeout_seconds"`
}

// DetectionConfig holds the rule thresholds. IntervalSeconds of zero disables
// periodic refresh; detection then only runs on demand.
type DetectionConfig struct {
	IntervalSeconds           int     `toml:"interval_seconds"`
	DuplicateWindowMinutes    float64 `toml:"duplicate_window_minutes"`
	DuplicateHighMinutes      float64 `toml:"duplicate_high_minutes"`
	PatternMinResponses       int     `toml:"pattern_min_responses"`
	FastCompletionRatio       float64 `toml:"fast_completion_ratio"`
	DefaultSecondsPerQuestion float64 `toml:"default_seconds_per_question"`
	DeviceClusterThreshold    int     `toml:"device_cluster_threshold"`
}

type AlertsConfig struct {
	Notifications NotificationConfig `toml:"notifications"`
}

type NotificationConfig struct {
	SystemNotify          bool    `toml:"system_notify"`
	MinSeverity           string  `toml:"min_severity"`
	WebhookURL            string  `toml:"webhook_url"`
	WebhookRatePerMinute  float64 `toml:"webhook_rate_per_minute"`
	WebhookTimeoutSeconds int     `toml:"webhook_timeout_seconds"`
}

type DisplayConfig struct {
	EventBufferSize int `toml:"event_buffer_size"`
	RefreshRateMS   int `toml:"refresh_rate_ms"`
}

// StorageConfig selects the persistence backend. Backend is one of "sqlite",
// "badger" or "memory".
type StorageConfig struct {
	Backend               string `toml:"backend"`
	DBPath                string `toml:"db_path"`
	BadgerDir             string `toml:"badger_dir"`
	ResponseRetentionDays int    `toml:"response_retention_days"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type CatalogConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

type LoadResult struct {
	Config   Config
	Warnings []string
}

func DefaultConfig() Config {
	return Config{
		Receiver: ReceiverConfig{
			GRPCPort: 4317,
			HTTPPort: 4318,
			Bind:     "127.0.0.1",
		},
		API: APIConfig{
			Port:                8080,
			Bind:                "127.0.0.1",
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 30,
		},
		Detection: DetectionConfig{
			IntervalSeconds:           60,
			DuplicateWindowMinutes:    10,
			DuplicateHighMinutes:      5,
			PatternMinResponses:       3,
			FastCompletionRatio:       0.2,
			DefaultSecondsPerQuestion: 60,
			DeviceClusterThreshold:    2,
		},
		Alerts: AlertsConfig{
			Notifications: NotificationConfig{
				SystemNotify:          true,
				MinSeverity:           "high",
				WebhookRatePerMinute:  30,
				WebhookTimeoutSeconds: 10,
			},
		},
		Display: DisplayConfig{
			EventBufferSize: 1000,
			RefreshRateMS:   500,
		},
		Storage: StorageConfig{
			Backend:               "sqlite",
			DBPath:                "~/.local/share/fieldwatch/fieldwatch.db",
			BadgerDir:             "~/.local/share/fieldwatch/badger",
			ResponseRetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Catalog: CatalogConfig{
			Path:  "~/.config/fieldwatch/surveys.yaml",
			Watch: true,
		},
	}
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fieldwatch", "config.toml")
}

func Load() (*LoadResult, error) {
	return LoadFrom(defaultConfigPath())
}

func LoadFrom(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &LoadResult{Config: DefaultConfig()}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	result, err := parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

func LoadFromString(data string) (*LoadResult, error) {
	if data == "" {
		return &LoadResult{Config: DefaultConfig()}, nil
	}

	result, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(&result.Config); err != nil {
		return nil, err
	}
	return result, nil
}

var knownTopLevel = map[string]bool{
	"receiver":  true,
	"api":       true,
	"detection": true,
	"alerts":    true,
	"display":   true,
	"storage":   true,
	"logging":   true,
	"catalog":   true,
}

func parse(data string) (*LoadResult, error) {
	result := &LoadResult{Config: DefaultConfig()}

	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, err
	}
	for key := range raw {
		if !knownTopLevel[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown config key: %q", key))
		}
	}

	var tf tomlFile
	if _, err := toml.Decode(data, &tf); err != nil {
		return nil, err
	}

	mergeFromRaw(&result.Config, &tf, raw)
	return result, nil
}

type tomlFile struct {
	Receiver  *ReceiverConfig  `toml:"receiver"`
	API       *APIConfig       `toml:"api"`
	Detection *DetectionConfig `toml:"detection"`
	Alerts    *AlertsConfig    `toml:"alerts"`
	Display   *DisplayConfig   `toml:"display"`
	Storage   *StorageConfig   `toml:"storage"`
	Logging   *LoggingConfig   `toml:"logging"`
	Catalog   *CatalogConfig   `toml:"catalog"`
}

// mergeFromRaw copies only the keys present in the file so absent keys keep
// their defaults, including zero-valued ones like system_notify = false.
func mergeFromRaw(cfg *Config, tf *tomlFile, raw map[string]any) {
	if tf.Receiver != nil {
		if section, ok := rawSection(raw, "receiver"); ok {
			setIfPresent(section, "grpc_port", &cfg.Receiver.GRPCPort, tf.Receiver.GRPCPort)
			setIfPresent(section, "http_port", &cfg.Receiver.HTTPPort, tf.Receiver.HTTPPort)
			setIfPresent(section, "bind", &cfg.Receiver.Bind, tf.Receiver.Bind)
		}
	}
	if tf.API != nil {
		if section, ok := rawSection(raw, "api"); ok {
			setIfPresent(section, "port", &cfg.API.Port, tf.API.Port)
			setIfPresent(section, "bind", &cfg.API.Bind, tf.API.Bind)
			setIfPresent(section, "read_timeout_seconds", &cfg.API.ReadTimeoutSeconds, tf.API.ReadTimeoutSeconds)
			setIfPresent(section, "write_timeout_seconds", &cfg.API.WriteTimeoutSeconds, tf.API.WriteTimeoutSeconds)
		}
	}
	if tf.Detection != nil {
		if section, ok := rawSection(raw, "detection"); ok {
			d := tf.Detection
			setIfPresent(section, "interval_seconds", &cfg.Detection.IntervalSeconds, d.IntervalSeconds)
			setIfPresent(section, "duplicate_window_minutes", &cfg.Detection.DuplicateWindowMinutes, d.DuplicateWindowMinutes)
			setIfPresent(section, "duplicate_high_minutes", &cfg.Detection.DuplicateHighMinutes, d.DuplicateHighMinutes)
			setIfPresent(section, "pattern_min_responses", &cfg.Detection.PatternMinResponses, d.PatternMinResponses)
			setIfPresent(section, "fast_completion_ratio", &cfg.Detection.FastCompletionRatio, d.FastCompletionRatio)
			setIfPresent(section, "default_seconds_per_question", &cfg.Detection.DefaultSecondsPerQuestion, d.DefaultSecondsPerQuestion)
			setIfPresent(section, "device_cluster_threshold", &cfg.Detection.DeviceClusterThreshold, d.DeviceClusterThreshold)
		}
	}
	if tf.Alerts != nil {
		if section, ok := rawSection(raw, "alerts"); ok {
			if notif, ok := rawSection(section, "notifications"); ok {
				n := tf.Alerts.Notifications
				setIfPresent(notif, "system_notify", &cfg.Alerts.Notifications.SystemNotify, n.SystemNotify)
				setIfPresent(notif, "min_severity", &cfg.Alerts.Notifications.MinSeverity, n.MinSeverity)
				setIfPresent(notif, "webhook_url", &cfg.Alerts.Notifications.WebhookURL, n.WebhookURL)
				setIfPresent(notif, "webhook_rate_per_minute", &cfg.Alerts.Notifications.WebhookRatePerMinute, n.WebhookRatePerMinute)
				setIfPresent(notif, "webhook_timeout_seconds", &cfg.Alerts.Notifications.WebhookTimeoutSeconds, n.WebhookTimeoutSeconds)
			}
		}
	}
	if tf.Display != nil {
		if section, ok := rawSection(raw, "display"); ok {
			setIfPresent(section, "event_buffer_size", &cfg.Display.EventBufferSize, tf.Display.EventBufferSize)
			setIfPresent(section, "refresh_rate_ms", &cfg.Display.RefreshRateMS, tf.Display.RefreshRateMS)
		}
	}
	if tf.Storage != nil {
		if section, ok := rawSection(raw, "storage"); ok {
			setIfPresent(section, "backend", &cfg.Storage.Backend, tf.Storage.Backend)
			setIfPresent(section, "db_path", &cfg.Storage.DBPath, tf.Storage.DBPath)
			setIfPresent(section, "badger_dir", &cfg.Storage.BadgerDir, tf.Storage.BadgerDir)
			setIfPresent(section, "response_retention_days", &cfg.Storage.ResponseRetentionDays, tf.Storage.ResponseRetentionDays)
		}
	}
	if tf.Logging != nil {
		if section, ok := rawSection(raw, "logging"); ok {
			setIfPresent(section, "level", &cfg.Logging.Level, tf.Logging.Level)
			setIfPresent(section, "format", &cfg.Logging.Format, tf.Logging.Format)
		}
	}
	if tf.Catalog != nil {
		if section, ok := rawSection(raw, "catalog"); ok {
			setIfPresent(section, "path", &cfg.Catalog.Path, tf.Catalog.Path)
			setIfPresent(section, "watch", &cfg.Catalog.Watch, tf.Catalog.Watch)
		}
	}
}

func setIfPresent[T any](section map[string]any, key string, dst *T, v T) {
	if _, exists := section[key]; exists {
		*dst = v
	}
}

func rawSection(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

var (
	validBackends   = map[string]bool{"sqlite": true, "badger": true, "memory": true}
	validSeverities = map[string]bool{"low": true, "medium": true, "high": true}
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"auto": true, "json": true, "console": true}
)

func validate(cfg *Config) error {
	var errs []string

	if cfg.Receiver.GRPCPort < 1 || cfg.Receiver.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("grpc_port must be 1-65535, got %d", cfg.Receiver.GRPCPort))
	}
	if cfg.Receiver.HTTPPort < 1 || cfg.Receiver.HTTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("http_port must be 1-65535, got %d", cfg.Receiver.HTTPPort))
	}
	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		errs = append(errs, fmt.Sprintf("api port must be 1-65535, got %d", cfg.API.Port))
	}
	if cfg.API.ReadTimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("api read_timeout_seconds must be positive, got %d", cfg.API.ReadTimeoutSeconds))
	}
	if cfg.API.WriteTimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("api write_timeout_seconds must be positive, got %d", cfg.API.WriteTimeoutSeconds))
	}

	d := cfg.Detection
	if d.IntervalSeconds < 0 {
		errs = append(errs, fmt.Sprintf("detection interval_seconds must not be negative, got %d", d.IntervalSeconds))
	}
	if d.DuplicateWindowMinutes <= 0 {
		errs = append(errs, fmt.Sprintf("duplicate_window_minutes must be positive, got %f", d.DuplicateWindowMinutes))
	}
	if d.DuplicateHighMinutes <= 0 || d.DuplicateHighMinutes > d.DuplicateWindowMinutes {
		errs = append(errs, fmt.Sprintf("duplicate_high_minutes must be positive and not exceed duplicate_window_minutes, got %f", d.DuplicateHighMinutes))
	}
	if d.PatternMinResponses < 1 {
		errs = append(errs, fmt.Sprintf("pattern_min_responses must be positive, got %d", d.PatternMinResponses))
	}
	if d.FastCompletionRatio <= 0 || d.FastCompletionRatio >= 1 {
		errs = append(errs, fmt.Sprintf("fast_completion_ratio must be between 0 and 1, got %f", d.FastCompletionRatio))
	}
	if d.DefaultSecondsPerQuestion <= 0 {
		errs = append(errs, fmt.Sprintf("default_seconds_per_question must be positive, got %f", d.DefaultSecondsPerQuestion))
	}
	if d.DeviceClusterThreshold < 1 {
		errs = append(errs, fmt.Sprintf("device_cluster_threshold must be positive, got %d", d.DeviceClusterThreshold))
	}

	n := cfg.Alerts.Notifications
	if !validSeverities[n.MinSeverity] {
		errs = append(errs, fmt.Sprintf("notifications min_severity must be low, medium or high, got %q", n.MinSeverity))
	}
	if n.WebhookURL != "" {
		if u, err := url.Parse(n.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("notifications webhook_url must be an http(s) URL, got %q", n.WebhookURL))
		}
	}
	if n.WebhookRatePerMinute <= 0 {
		errs = append(errs, fmt.Sprintf("webhook_rate_per_minute must be positive, got %f", n.WebhookRatePerMinute))
	}
	if n.WebhookTimeoutSeconds < 1 {
		errs = append(errs, fmt.Sprintf("webhook_timeout_seconds must be positive, got %d", n.WebhookTimeoutSeconds))
	}

	if cfg.Display.EventBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("event_buffer_size must be positive, got %d", cfg.Display.EventBufferSize))
	}
	if cfg.Display.RefreshRateMS < 1 {
		errs = append(errs, fmt.Sprintf("refresh_rate_ms must be positive, got %d", cfg.Display.RefreshRateMS))
	}

	if !validBackends[cfg.Storage.Backend] {
		errs = append(errs, fmt.Sprintf("storage backend must be sqlite, badger or memory, got %q", cfg.Storage.Backend))
	}
	if cfg.Storage.ResponseRetentionDays <= 0 {
		errs = append(errs, fmt.Sprintf("storage response_retention_days must be positive, got %d", cfg.Storage.ResponseRetentionDays))
	}

	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging level must be debug, info, warn or error, got %q", cfg.Logging.Level))
	}
	if !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging format must be auto, json or console, got %q", cfg.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation error: %s", strings.Join(errs, "; "))
	}
	return nil
}
