package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/oshokin/breathe-tracking/internal/domain/reading"
)

// ErrMissingSensorID is returned for samples without a sensor id.
var ErrMissingSensorID = errors.New("sample has no sensor id")

// Sample is the JSON payload of one sensor message.
// Absent metrics are not part of the sample.
type Sample struct {
	SensorID    string    `json:"sensor_id"`
	Ozone       *float64  `json:"ozone,omitempty"`
	CO2         *float64  `json:"co2,omitempty"`
	CO          *float64  `json:"co,omitempty"`
	NO2         *float64  `json:"no2,omitempty"`
	SO2         *float64  `json:"so2,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Battery     *float64  `json:"battery,omitempty"`
	RSSI        *float64  `json:"rssi,omitempty"`
	Location    string    `json:"location,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Readings returns one reading per metric present in the sample.
// A sample without a timestamp is stamped with fallback.
func (s Sample) Readings(fallback time.Time) []reading.Reading {
	observedAt := s.ObservedAt
	if observedAt.IsZero() {
		observedAt = fallback
	}

	fields := []struct {
		kind  reading.MetricKind
		value *float64
	}{
		{reading.Ozone, s.Ozone},
		{reading.CarbonDioxide, s.CO2},
		{reading.CarbonMonoxide, s.CO},
		{reading.NitrogenOxide, s.NO2},
		{reading.SulfurDioxide, s.SO2},
		{reading.Temperature, s.Temperature},
		{reading.Battery, s.Battery},
		{reading.Signal, s.RSSI},
	}

	readings := make([]reading.Reading, 0, len(fields))

	for _, f := range fields {
		if f.value == nil {
			continue
		}

		readings = append(readings, reading.Reading{
			Kind:       f.kind,
			Value:      *f.value,
			ObservedAt: observedAt,
		})
	}

	return readings
}

// decodeMessage parses the sample carried by msg.
func decodeMessage(msg kafkago.Message) (Sample, error) {
	var s Sample
	if err := json.Unmarshal(msg.Value, &s); err != nil {
		return Sample{}, fmt.Errorf("decode sample at offset %d: %w", msg.Offset, err)
	}

	if s.SensorID == "" {
		s.SensorID = string(msg.Key)
	}

	if s.SensorID == "" {
		return Sample{}, fmt.Errorf("decode sample at offset %d: %w", msg.Offset, ErrMissingSensorID)
	}

	if s.ObservedAt.IsZero() {
		s.ObservedAt = msg.Time
	}

	return s, nil
}

// serializeToMessage marshals a sample into a Kafka message keyed by sensor.
func serializeToMessage(s Sample) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize sample: %w", err)
	}

	return kafkago.Message{
		Key:   []byte(s.SensorID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "observed_at", Value: []byte(s.ObservedAt.Format(time.RFC3339))},
		},
	}, nil
}
