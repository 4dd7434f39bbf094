// Package threshold classifies sensor values against per-metric limits.
//
// Comparisons are strict: a value exactly on a threshold does not violate it.
// Everything here is pure; the only failure path is a ConfigurationError for
// an invalid limits table or an unknown metric.
package threshold
