// Package incident contains the incident domain types.
//
// An Incident is a problem report (user submitted or generated on sensor
// disconnection) owned by the remote incident store. Clients only observe
// its status moving from PENDING to RESOLVED; Clone helpers keep the store's
// internal copies from leaking.
package incident
