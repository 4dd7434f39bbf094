// Package reporter implements the incident-report command line operations.
//
// Submit files a report and can wait for an administrator to resolve it,
// Resolve closes an incident and List prints the incidents of a sensor.
package reporter
