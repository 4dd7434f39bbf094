// Package reading contains the sensor-side domain types: metric kinds,
// single readings, per-metric limits and the classification levels.
package reading
