package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/domain/incident"
	"github.com/oshokin/breathe-tracking/internal/logger"
	"github.com/oshokin/breathe-tracking/internal/service/common"
)

// Options holds the settings shared by every reporter operation.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ServerAddress provides an optional incident server address override.
	ServerAddress string
	// Out receives the command output; stdout when nil.
	Out io.Writer
}

// SubmitOptions describes a report to file.
type SubmitOptions struct {
	Options

	// SensorID and Location default to the configured sensor.
	SensorID string
	Location string
	Title    string
	Message  string
	// Disconnected prefills a sensor disconnection report; Title and Message may stay empty.
	Disconnected bool
	// LastReading is quoted in a disconnection report.
	LastReading string
	// Wait blocks until the incident is resolved.
	Wait bool
}

// ResolveOptions names the incident to resolve.
type ResolveOptions struct {
	Options

	ID string
}

// ListOptions selects the incidents to print.
type ListOptions struct {
	Options

	// SensorID defaults to the configured sensor.
	SensorID string
	Limit    int
	// PendingOnly hides resolved incidents.
	PendingOnly bool
}

var errNoSensor = errors.New("no sensor id given and none configured")

// Submit files an incident report.
func Submit(ctx context.Context, opts *SubmitOptions) error {
	ctx = logger.WithName(ctx, "incident-report")

	return withStore(ctx, &opts.Options, func(cfg *config.Config, store incident.Store) error {
		draft, err := buildDraft(cfg, opts)
		if err != nil {
			return err
		}

		return submit(ctx, store, draft, opts.Wait, output(opts.Out))
	})
}

// Resolve marks an incident as resolved.
func Resolve(ctx context.Context, opts *ResolveOptions) error {
	ctx = logger.WithName(ctx, "incident-report")

	return withStore(ctx, &opts.Options, func(_ *config.Config, store incident.Store) error {
		return resolve(ctx, store, opts.ID, output(opts.Out))
	})
}

// List prints the incidents of a sensor, newest first.
func List(ctx context.Context, opts *ListOptions) error {
	ctx = logger.WithName(ctx, "incident-report")

	return withStore(ctx, &opts.Options, func(cfg *config.Config, store incident.Store) error {
		sensorID := opts.SensorID
		if sensorID == "" {
			sensorID = cfg.Sensor.ID
		}

		if sensorID == "" {
			return errNoSensor
		}

		limit := opts.Limit
		if limit <= 0 {
			limit = cfg.Incidents.ListLimit
		}

		return list(ctx, store, sensorID, limit, opts.PendingOnly, output(opts.Out))
	})
}

// withStore loads the settings and runs fn against the remote incident store.
func withStore(ctx context.Context, opts *Options, fn func(*config.Config, incident.Store) error) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	client, err := common.Dial(ctx, serverAddress, common.WithCallTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("dial incident server: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	return fn(cfg, client)
}

// buildDraft fills the report from the options, the settings and the local actor.
func buildDraft(cfg *config.Config, opts *SubmitOptions) (incident.Draft, error) {
	sensorID := opts.SensorID
	if sensorID == "" {
		sensorID = cfg.Sensor.ID
	}

	if sensorID == "" {
		return incident.Draft{}, errNoSensor
	}

	location := opts.Location
	if location == "" {
		location = cfg.Sensor.Location
	}

	draft := incident.Draft{
		SensorID: sensorID,
		Title:    opts.Title,
		Message:  opts.Message,
		Location: location,
	}

	if opts.Disconnected {
		prefilled := incident.DisconnectionDraft(sensorID, location, opts.LastReading)

		if strings.TrimSpace(draft.Title) == "" {
			draft.Title = prefilled.Title
		}

		if strings.TrimSpace(draft.Message) == "" {
			draft.Message = prefilled.Message
		}
	}

	if err := draft.Validate(); err != nil {
		return incident.Draft{}, err
	}

	actor, err := common.DetectActor()
	if err != nil {
		return incident.Draft{}, err
	}

	draft.Message = signMessage(draft.Message, actor)

	return draft, nil
}

func signMessage(message string, actor common.Actor) string {
	return strings.TrimRight(message, "\n") + "\n\nReported by " + actor.String()
}

func output(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}

	return w
}
