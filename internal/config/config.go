// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the YAML file.
const (
	EnvLineToken  = "DOMAINMON_LINE_TOKEN"
	EnvAdminToken = "DOMAINMON_ADMIN_TOKEN"
	EnvSMTPPass   = "DOMAINMON_SMTP_PASSWORD"
)

type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Database      DatabaseConfig     `yaml:"database"`
	Prometheus    PrometheusConfig   `yaml:"prometheus"`
	Monitoring    MonitoringConfig   `yaml:"monitoring"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
	Domains       []DomainConfig     `yaml:"domains"`
	Include       IncludeConfig      `yaml:"include"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// AdminToken guards the mutating endpoints (monitor control, push).
	AdminToken string `yaml:"admin_token"`
}

type DatabaseConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
	// ArchiveAfter is how long a resolved alert stays unarchived. Zero
	// disables archiving.
	ArchiveAfter time.Duration `yaml:"archive_after"`
}

type PrometheusConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MetricsPath string `yaml:"metrics_path"`
}

type MonitoringConfig struct {
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	Workers             int           `yaml:"workers"`
	SSLWarningDays      int           `yaml:"ssl_warning_days"`
	SSLCriticalDays     int           `yaml:"ssl_critical_days"`
	AssumedCertLifetime time.Duration `yaml:"assumed_cert_lifetime"`
	Autostart           *bool         `yaml:"autostart"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type NotificationConfig struct {
	Line     LineConfig     `yaml:"line"`
	Email    EmailConfig    `yaml:"email"`
	Throttle ThrottleConfig `yaml:"throttle"`
}

type LineConfig struct {
	Enabled            bool    `yaml:"enabled"`
	ChannelAccessToken string  `yaml:"channel_access_token"`
	Endpoint           string  `yaml:"endpoint"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	Subject  string `yaml:"subject"`
}

type ThrottleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Window          time.Duration `yaml:"window"`
	MaxPerRecipient int           `yaml:"max_per_recipient"`
	MaxTotal        int           `yaml:"max_total"`
}

// DomainConfig is the file-side description of a monitored domain. It is
// synced into the configuration store on startup and on reload.
type DomainConfig struct {
	Domain      string `yaml:"domain"`
	Enabled     *bool  `yaml:"enabled"`
	RecordType  string `yaml:"record_type"`
	TargetValue string `yaml:"target_value"`
}

type IncludeConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	Pattern   string `yaml:"pattern"`
}

// partialConfig is the shape of an include file: only domains are merged.
type partialConfig struct {
	Domains []DomainConfig `yaml:"domains"`
}

var validRecordTypes = map[string]bool{
	"A": true, "AAAA": true, "CNAME": true, "TXT": true, "MX": true, "NS": true,
}

func Load(filename string) (*Config, error) {
	cfg, err := loadConfigFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load main config file: %w", err)
	}

	if cfg.Include.Enabled && cfg.Include.Directory != "" {
		if err := loadIncludes(cfg, filepath.Dir(filename)); err != nil {
			return nil, fmt.Errorf("failed to load includes: %w", err)
		}
	}

	applyEnv(cfg)
	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse builds a Config from raw YAML without touching the filesystem.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	applyEnv(&cfg)
	setDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadConfigFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &cfg, nil
}

func loadIncludes(cfg *Config, baseDir string) error {
	includeDir := cfg.Include.Directory
	if !filepath.IsAbs(includeDir) {
		includeDir = filepath.Join(baseDir, includeDir)
	}

	if _, err := os.Stat(includeDir); os.IsNotExist(err) {
		return fmt.Errorf("include directory does not exist: %s", includeDir)
	}

	pattern := cfg.Include.Pattern
	if pattern == "" {
		pattern = "*.yaml"
	}

	matches, err := filepath.Glob(filepath.Join(includeDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to glob include pattern: %w", err)
	}
	if pattern == "*.yaml" {
		ymlMatches, err := filepath.Glob(filepath.Join(includeDir, "*.yml"))
		if err != nil {
			return fmt.Errorf("failed to glob .yml files: %w", err)
		}
		matches = append(matches, ymlMatches...)
	}
	sort.Slice(matches, func(i, j int) bool {
		return filepath.Base(matches[i]) < filepath.Base(matches[j])
	})

	for _, match := range matches {
		data, err := os.ReadFile(match)
		if err != nil {
			return fmt.Errorf("failed to read include file %s: %w", match, err)
		}
		var partial partialConfig
		if err := yaml.Unmarshal(data, &partial); err != nil {
			return fmt.Errorf("failed to parse include file %s: %w", match, err)
		}
		mergeDomains(cfg, partial.Domains)
	}

	return nil
}

// mergeDomains appends new domains and lets later definitions replace
// earlier ones with the same name.
func mergeDomains(cfg *Config, domains []DomainConfig) {
	index := make(map[string]int, len(cfg.Domains))
	for i, d := range cfg.Domains {
		index[NormalizeDomain(d.Domain)] = i
	}
	for _, d := range domains {
		key := NormalizeDomain(d.Domain)
		if i, ok := index[key]; ok {
			cfg.Domains[i] = d
			continue
		}
		cfg.Domains = append(cfg.Domains, d)
		index[key] = len(cfg.Domains) - 1
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvLineToken); v != "" {
		cfg.Notifications.Line.ChannelAccessToken = v
	}
	if v := os.Getenv(EnvAdminToken); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv(EnvSMTPPass); v != "" {
		cfg.Notifications.Email.Password = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}

	if cfg.Database.Type == "" {
		cfg.Database.Type = "boltdb"
	}
	if cfg.Database.Path == "" {
		if cfg.Database.Type == "sqlite" {
			cfg.Database.Path = "./data/domainmon.sqlite"
		} else {
			cfg.Database.Path = "./data/domainmon.db"
		}
	}

	if cfg.Monitoring.Interval == 0 {
		cfg.Monitoring.Interval = 5 * time.Minute
	}
	if cfg.Monitoring.Timeout == 0 {
		cfg.Monitoring.Timeout = 10 * time.Second
	}
	if cfg.Monitoring.Workers == 0 {
		cfg.Monitoring.Workers = 1
	}
	if cfg.Monitoring.SSLWarningDays == 0 {
		cfg.Monitoring.SSLWarningDays = 30
	}
	if cfg.Monitoring.SSLCriticalDays == 0 {
		cfg.Monitoring.SSLCriticalDays = 7
	}
	if cfg.Monitoring.AssumedCertLifetime == 0 {
		cfg.Monitoring.AssumedCertLifetime = 90 * 24 * time.Hour
	}

	if cfg.Prometheus.MetricsPath == "" {
		cfg.Prometheus.MetricsPath = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Include.Pattern == "" {
		cfg.Include.Pattern = "*.yaml"
	}

	if cfg.Notifications.Line.Endpoint == "" {
		cfg.Notifications.Line.Endpoint = "https://api.line.me/v2/bot/message/push"
	}
	if cfg.Notifications.Line.RequestsPerSecond == 0 {
		cfg.Notifications.Line.RequestsPerSecond = 10
	}
	if cfg.Notifications.Email.Port == 0 {
		cfg.Notifications.Email.Port = 587
	}
	if cfg.Notifications.Email.Subject == "" {
		cfg.Notifications.Email.Subject = "Domain monitor notification"
	}
	if cfg.Notifications.Throttle.Window == 0 {
		cfg.Notifications.Throttle.Window = 15 * time.Minute
	}
	if cfg.Notifications.Throttle.MaxPerRecipient == 0 {
		cfg.Notifications.Throttle.MaxPerRecipient = 5
	}
	if cfg.Notifications.Throttle.MaxTotal == 0 {
		cfg.Notifications.Throttle.MaxTotal = 20
	}

	for i := range cfg.Domains {
		cfg.Domains[i].Domain = NormalizeDomain(cfg.Domains[i].Domain)
		cfg.Domains[i].RecordType = strings.ToUpper(strings.TrimSpace(cfg.Domains[i].RecordType))
	}
}

func validate(cfg *Config) error {
	switch cfg.Database.Type {
	case "boltdb", "sqlite":
	default:
		return fmt.Errorf("database.type must be boltdb or sqlite, got %q", cfg.Database.Type)
	}

	if cfg.Database.ArchiveAfter < 0 {
		return fmt.Errorf("database.archive_after cannot be negative")
	}

	if cfg.Monitoring.Interval <= 0 {
		return fmt.Errorf("monitoring.interval must be positive")
	}
	if cfg.Monitoring.Timeout <= 0 {
		return fmt.Errorf("monitoring.timeout must be positive")
	}
	if cfg.Monitoring.Workers < 1 {
		return fmt.Errorf("monitoring.workers must be at least 1")
	}
	if cfg.Monitoring.SSLCriticalDays > cfg.Monitoring.SSLWarningDays {
		return fmt.Errorf("monitoring.ssl_critical_days (%d) cannot exceed ssl_warning_days (%d)",
			cfg.Monitoring.SSLCriticalDays, cfg.Monitoring.SSLWarningDays)
	}

	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}

	if cfg.Notifications.Line.Enabled && cfg.Notifications.Line.ChannelAccessToken == "" {
		return fmt.Errorf("notifications.line.channel_access_token is required when LINE is enabled")
	}
	if cfg.Notifications.Email.Enabled {
		if cfg.Notifications.Email.Host == "" {
			return fmt.Errorf("notifications.email.host is required when email is enabled")
		}
		if cfg.Notifications.Email.From == "" {
			return fmt.Errorf("notifications.email.from is required when email is enabled")
		}
	}

	if cfg.Include.Enabled {
		if cfg.Include.Directory == "" {
			return fmt.Errorf("include.directory must be specified when include.enabled is true")
		}
		if strings.ContainsAny(cfg.Include.Pattern, `/\`) {
			return fmt.Errorf("include.pattern contains invalid glob pattern: %s", cfg.Include.Pattern)
		}
		if _, err := filepath.Match(cfg.Include.Pattern, "test.yaml"); err != nil {
			return fmt.Errorf("include.pattern contains invalid glob pattern: %s", cfg.Include.Pattern)
		}
	}

	seen := make(map[string]bool)
	for _, d := range cfg.Domains {
		if d.Domain == "" {
			return fmt.Errorf("domains: entry with empty domain")
		}
		if strings.ContainsAny(d.Domain, "/: ") {
			return fmt.Errorf("domain %q must be a bare host name", d.Domain)
		}
		if seen[d.Domain] {
			return fmt.Errorf("duplicate domain: %s", d.Domain)
		}
		seen[d.Domain] = true
		if d.RecordType != "" && !validRecordTypes[d.RecordType] {
			return fmt.Errorf("domain %s has unsupported record_type %q", d.Domain, d.RecordType)
		}
	}

	return nil
}

// IsEnabled reports whether the domain should be probed. Unset means enabled.
func (d DomainConfig) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// AutostartEnabled reports whether serve starts the monitor on boot.
func (m MonitoringConfig) AutostartEnabled() bool {
	return m.Autostart == nil || *m.Autostart
}

// NormalizeDomain lowercases a host name and strips a trailing dot.
func NormalizeDomain(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}
