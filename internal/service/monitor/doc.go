// Package monitor runs the breathe-monitor process: one dashboard session of a
// sensor fed from Kafka, tracking incidents on the remote incident server and
// exposing the session over HTTP. It also hosts the reading simulator.
package monitor
