// Package incidents implements the incident store on top of a repository.
//
// Besides CRUD it keeps in-memory watchers: document watchers get the
// current state on registration and every change afterwards, sensor watchers
// get the refreshed list after every change of one of the sensor's incidents.
// Mutations and their fan-out are serialized, so watchers observe changes in
// the order they were applied.
package incidents
