// Package kafka reads sensor readings from a Kafka topic.
//
// Each message carries one JSON sample of a sensor. Samples of the
// configured sensor are handed to a Sink as readings, and a watchdog
// reports the sensor disconnected after a period of silence.
package kafka
