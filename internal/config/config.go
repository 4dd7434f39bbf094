package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/breathe-tracking/internal/alerts"
	"github.com/oshokin/breathe-tracking/internal/domain/reading"
	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/threshold"
)

// Config holds the settings shared by the breathe-tracking binaries.
type Config struct {
	// ServerAddress is the gRPC address of the incident store.
	ServerAddress string `yaml:"server_addr"`
	// Timeout bounds network operations and RPC calls.
	Timeout time.Duration `yaml:"timeout"`
	// StateFile is the JSON file of the incident store when no database is configured.
	StateFile string `yaml:"state_file,omitempty"`
	// DatabaseURL selects the PostgreSQL repository when set.
	DatabaseURL string `yaml:"database_url,omitempty"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`
	// HTTPAddress is where the monitor serves health, metrics and the session API.
	HTTPAddress string `yaml:"http_addr,omitempty"`

	Sensor        Sensor                  `yaml:"sensor"`
	Alerts        Alerts                  `yaml:"alerts"`
	Incidents     Incidents               `yaml:"incidents"`
	Notifications Notifications           `yaml:"notifications"`
	Kafka         Kafka                   `yaml:"kafka"`
	Limits        map[string]MetricLimits `yaml:"limits,omitempty"`
}

// Sensor identifies the monitored sensor.
type Sensor struct {
	ID       string `yaml:"id"`
	Location string `yaml:"location"`
}

// Alerts configures the alert history.
type Alerts struct {
	// Policy is replace-merge or insert-new-only.
	Policy string `yaml:"policy"`
	// HistoryCap defaults to the cap paired with the policy.
	HistoryCap int `yaml:"history_cap"`
}

// Incidents configures the incident lists.
type Incidents struct {
	// ListLimit caps the sensor incident subscription.
	ListLimit int `yaml:"list_limit"`
	// PendingDisplay caps the rendered pending summaries.
	PendingDisplay int `yaml:"pending_display"`
	// SubmittedHistory caps the locally submitted report history.
	SubmittedHistory int `yaml:"submitted_history"`
}

// Notifications configures outbound email.
type Notifications struct {
	// AdminEmail receives report and resolution emails.
	AdminEmail string `yaml:"admin_email,omitempty"`
	// MailRelayURL is the HTTP endpoint of the mail relay.
	MailRelayURL string `yaml:"mail_relay_url,omitempty"`
}

// Kafka configures the sensor feed. The feed is disabled without brokers.
type Kafka struct {
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
	GroupID string   `yaml:"group_id,omitempty"`
	// DisconnectAfter is the silence after which the sensor counts as disconnected.
	DisconnectAfter time.Duration `yaml:"disconnect_after,omitempty"`
}

// MetricLimits overrides the built-in limits of one metric.
type MetricLimits struct {
	Safe      float64 `yaml:"safe"`
	Danger    float64 `yaml:"danger"`
	Unit      string  `yaml:"unit"`
	Direction string  `yaml:"direction,omitempty"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "breathe-tracking-settings.yaml"

	// DefaultStateFilename is the default filename of the incident store.
	DefaultStateFilename = "breathe-incidents.json"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultHTTPAddress is the default listen address of the monitor HTTP API.
	DefaultHTTPAddress = ":8080"

	// DefaultListLimit is the default size of the sensor incident subscription.
	DefaultListLimit = 30

	// DefaultPendingDisplay is the default number of pending summaries shown.
	DefaultPendingDisplay = 4

	// DefaultSubmittedHistory is the default number of submitted reports remembered.
	DefaultSubmittedHistory = 4

	// DefaultDisconnectAfter is the default silence before the sensor counts as disconnected.
	DefaultDisconnectAfter = 30 * time.Second

	// DefaultKafkaTopic is the default topic of sensor readings.
	DefaultKafkaTopic = "sensor-readings"

	// DefaultKafkaGroupID is the default consumer group of the monitor.
	DefaultKafkaGroupID = "breathe-monitor"

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
)

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions: the file may carry a database password.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills defaults for optional fields.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.StateFile == "" {
		settings.StateFile = DefaultStateFilename
	}

	if settings.HTTPAddress == "" {
		settings.HTTPAddress = DefaultHTTPAddress
	}

	if _, ok := logger.ParseLogLevel(settings.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}

	if err := validateAlerts(&settings.Alerts); err != nil {
		return err
	}

	if err := validateIncidents(&settings.Incidents); err != nil {
		return err
	}

	if err := validateNotifications(&settings.Notifications); err != nil {
		return err
	}

	validateKafka(&settings.Kafka)

	if _, err := settings.ThresholdTable(); err != nil {
		return err
	}

	return nil
}

// ThresholdTable builds the limits table: built-in limits with the configured overrides on top.
func (c *Config) ThresholdTable() (*threshold.Table, error) {
	overrides := make(map[reading.MetricKind]reading.Limits, len(c.Limits))

	for name, l := range c.Limits {
		kind, err := reading.ParseMetricKind(name)
		if err != nil {
			return nil, &threshold.ConfigurationError{Metric: reading.MetricKind(name), Reason: "unknown metric"}
		}

		overrides[kind] = reading.Limits{
			Safe:      l.Safe,
			Danger:    l.Danger,
			Unit:      l.Unit,
			Direction: reading.Direction(l.Direction),
		}
	}

	return threshold.NewTable(threshold.Merge(threshold.DefaultLimits(), overrides))
}

// AlertPolicy returns the parsed alert aggregation policy.
func (c *Config) AlertPolicy() alerts.Policy {
	policy, err := alerts.ParsePolicy(c.Alerts.Policy)
	if err != nil {
		return alerts.PolicyReplaceMerge
	}

	return policy
}

func validateAlerts(a *Alerts) error {
	policy, err := alerts.ParsePolicy(a.Policy)
	if err != nil {
		return err
	}

	a.Policy = string(policy)

	if a.HistoryCap < 0 {
		return fmt.Errorf("alerts.history_cap must not be negative, got %d", a.HistoryCap)
	}

	if a.HistoryCap == 0 {
		a.HistoryCap = policy.DefaultCap()
	}

	return nil
}

func validateIncidents(i *Incidents) error {
	fields := []struct {
		name  string
		value *int
		def   int
	}{
		{"incidents.list_limit", &i.ListLimit, DefaultListLimit},
		{"incidents.pending_display", &i.PendingDisplay, DefaultPendingDisplay},
		{"incidents.submitted_history", &i.SubmittedHistory, DefaultSubmittedHistory},
	}

	for _, f := range fields {
		if *f.value < 0 {
			return fmt.Errorf("%s must not be negative, got %d", f.name, *f.value)
		}

		if *f.value == 0 {
			*f.value = f.def
		}
	}

	return nil
}

func validateNotifications(n *Notifications) error {
	if n.MailRelayURL == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(n.MailRelayURL); err != nil {
		return fmt.Errorf("invalid mail relay URI: %w", err)
	}

	return nil
}

func validateKafka(k *Kafka) {
	if k.Topic == "" {
		k.Topic = DefaultKafkaTopic
	}

	if k.GroupID == "" {
		k.GroupID = DefaultKafkaGroupID
	}

	if k.DisconnectAfter <= 0 {
		k.DisconnectAfter = DefaultDisconnectAfter
	}
}
