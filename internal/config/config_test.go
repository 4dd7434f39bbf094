package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/breathe-tracking/internal/alerts"
	"github.com/oshokin/breathe-tracking/internal/domain/reading"
	"github.com/oshokin/breathe-tracking/internal/threshold"
)

// TestValidate checks required fields and format validations for Config.
func TestValidate(t *testing.T) {
	t.Parallel()

	// Missing socket.
	require.ErrorIs(t, Validate(new(Config)), errServerSocketRequired)
	require.ErrorIs(t, Validate(nil), errConfigIsNotSet)

	// Bad socket.
	require.Error(t, Validate(&Config{ServerAddress: "bad:address"}))

	// Bad relay URL.
	require.Error(t, Validate(&Config{
		ServerAddress: "127.0.0.1:0",
		Notifications: Notifications{MailRelayURL: "not a url"},
	}))

	// Unknown policy and log level.
	require.Error(t, Validate(&Config{ServerAddress: "127.0.0.1:0", Alerts: Alerts{Policy: "newest"}}))
	require.Error(t, Validate(&Config{ServerAddress: "127.0.0.1:0", LogLevel: "loud"}))
	require.Error(t, Validate(&Config{ServerAddress: "127.0.0.1:0", Incidents: Incidents{ListLimit: -1}}))
}

// TestValidateDefaults ensures optional fields are filled.
func TestValidateDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{ServerAddress: "127.0.0.1:50051"}
	require.NoError(t, Validate(cfg))

	require.Equal(t, DefaultTimeout, cfg.Timeout)
	require.Equal(t, DefaultStateFilename, cfg.StateFile)
	require.Equal(t, DefaultHTTPAddress, cfg.HTTPAddress)
	require.Equal(t, string(alerts.PolicyReplaceMerge), cfg.Alerts.Policy)
	require.Equal(t, 6, cfg.Alerts.HistoryCap)
	require.Equal(t, 30, cfg.Incidents.ListLimit)
	require.Equal(t, 4, cfg.Incidents.PendingDisplay)
	require.Equal(t, 4, cfg.Incidents.SubmittedHistory)
	require.Equal(t, 30*time.Second, cfg.Kafka.DisconnectAfter)
	require.Equal(t, DefaultKafkaTopic, cfg.Kafka.Topic)

	cfg = &Config{ServerAddress: "127.0.0.1:50051", Alerts: Alerts{Policy: "insert-new-only"}}
	require.NoError(t, Validate(cfg))
	require.Equal(t, 4, cfg.Alerts.HistoryCap)
	require.Equal(t, alerts.PolicyInsertNewOnly, cfg.AlertPolicy())
}

// TestValidateLimits ensures threshold overrides are merged and invalid ones rejected.
func TestValidateLimits(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		ServerAddress: "127.0.0.1:50051",
		Limits: map[string]MetricLimits{
			"co2": {Safe: 1000, Danger: 1500, Unit: "ppm"},
		},
	}
	require.NoError(t, Validate(cfg))

	table, err := cfg.ThresholdTable()
	require.NoError(t, err)

	l, err := table.Limits(reading.CarbonDioxide)
	require.NoError(t, err)
	require.InDelta(t, 1000, l.Safe, 0)

	_, err = table.Limits(reading.Ozone)
	require.NoError(t, err)

	var cfgErr *threshold.ConfigurationError

	cfg.Limits = map[string]MetricLimits{"radon": {Safe: 1, Danger: 2}}
	require.ErrorAs(t, Validate(cfg), &cfgErr)

	cfg.Limits = map[string]MetricLimits{"co2": {Safe: 1500, Danger: 1000}}
	require.ErrorAs(t, Validate(cfg), &cfgErr)
}

// TestSaveLoadRoundtrip ensures settings are persisted and loaded back correctly.
func TestSaveLoadRoundtrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	settings := &Config{
		ServerAddress: "127.0.0.1:50051",
		Timeout:       3 * time.Second,
		Sensor:        Sensor{ID: "SN-01", Location: "Lab 2"},
		Notifications: Notifications{
			AdminEmail:   "admin@example.com",
			MailRelayURL: "https://relay.local/send",
		},
		Kafka: Kafka{Brokers: []string{"localhost:9092"}},
	}

	require.NoError(t, Save(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, settings, loaded)

	// File exists with restricted permissions.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())
}

// TestLoadMissingFile verifies a readable error for a missing file.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read settings")
}
