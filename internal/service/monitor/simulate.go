package monitor

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/oshokin/breathe-tracking/internal/config"
	"github.com/oshokin/breathe-tracking/internal/feed/kafka"
	"github.com/oshokin/breathe-tracking/internal/logger"
)

// SimulateOptions controls the reading simulator.
type SimulateOptions struct {
	ConfigPath string
	// SensorID overrides the configured sensor.
	SensorID string
	// Interval is the pause between samples.
	Interval time.Duration
	// Count stops after that many samples; zero runs until canceled.
	Count int
	// Seed makes the walk reproducible; zero picks a random seed.
	Seed uint64
}

// DefaultSimulateInterval is the pause between simulated samples.
const DefaultSimulateInterval = 2 * time.Second

// Simulate publishes a random walk of sensor samples to the configured topic.
func Simulate(ctx context.Context, opts *SimulateOptions) error {
	ctx = logger.WithName(ctx, "breathe-simulator")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	sensorID := cfg.Sensor.ID
	if opts.SensorID != "" {
		sensorID = opts.SensorID
	}

	if sensorID == "" {
		return errNoSensor
	}

	writer, err := kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return fmt.Errorf("create producer: %w", err)
	}

	defer func() {
		_ = writer.Close()
	}()

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultSimulateInterval
	}

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	walk := newWalker(sensorID, cfg.Sensor.Location, seed, clockwork.NewRealClock())

	logger.InfoKV(ctx, "Simulating sensor", "topic", cfg.Kafka.Topic, "interval", interval, "seed", seed)

	return walk.run(ctx, interval, opts.Count, func(ctx context.Context, s kafka.Sample) error {
		return writer.Publish(ctx, s)
	})
}

// walker produces plausible, slowly drifting samples.
type walker struct {
	sensorID string
	location string
	rng      *rand.Rand
	clock    clockwork.Clock

	ozone, co2, temperature, battery, rssi float64
}

func newWalker(sensorID, location string, seed uint64, clock clockwork.Clock) *walker {
	return &walker{
		sensorID:    sensorID,
		location:    location,
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		clock:       clock,
		ozone:       0.3,
		co2:         650,
		temperature: 22,
		battery:     100,
		rssi:        -65,
	}
}

// next advances the walk by one step.
func (w *walker) next() kafka.Sample {
	w.ozone = clamp(w.ozone+w.rng.NormFloat64()*0.05, 0, 1.5)
	w.co2 = clamp(w.co2+w.rng.NormFloat64()*40, 350, 2500)
	w.temperature = clamp(w.temperature+w.rng.NormFloat64()*0.3, -10, 45)
	w.battery = clamp(w.battery-w.rng.Float64()*0.2, 0, 100)
	w.rssi = clamp(w.rssi+w.rng.NormFloat64()*2, -100, -40)

	ozone := round(w.ozone, 3)
	co2 := math.Round(w.co2)
	temperature := round(w.temperature, 1)
	battery := math.Round(w.battery)
	rssi := math.Round(w.rssi)

	return kafka.Sample{
		SensorID:    w.sensorID,
		Ozone:       &ozone,
		CO2:         &co2,
		Temperature: &temperature,
		Battery:     &battery,
		RSSI:        &rssi,
		Location:    w.location,
		ObservedAt:  w.clock.Now().UTC(),
	}
}

func (w *walker) run(ctx context.Context, interval time.Duration, count int, publish func(context.Context, kafka.Sample) error) error {
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; count <= 0 || sent < count; sent++ {
		if err := publish(ctx, w.next()); err != nil {
			return fmt.Errorf("publish sample: %w", err)
		}

		if count > 0 && sent+1 == count {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}

	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))

	return math.Round(v*p) / p
}
