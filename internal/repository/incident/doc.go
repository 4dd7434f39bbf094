// Package incident implements persistence for incidents.
//
// FileRepository keeps every incident in one JSON file written through
// protojson; PostgresRepository stores them in a table through the pgx
// database/sql driver. Both satisfy Repository, which the incident store
// service depends on.
package incident
