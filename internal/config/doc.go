// Package config defines the settings shared by the breathe-tracking binaries
// and provides helpers to load, validate and save them in YAML format.
//
// Validate fills defaults for every optional field, so a loaded Config is
// ready to use. Threshold overrides are checked against the built-in limits
// table and reported as a threshold.ConfigurationError.
package config
