// Package server runs the incident-server process: the incident store served
// over gRPC, persisted to PostgreSQL when a database URL is configured and to
// a JSON file otherwise.
package server
